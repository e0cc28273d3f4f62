package tools

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// UnmarshalYamlAndBuildDefault 解析 yaml 并按 default tag 补默认值
func UnmarshalYamlAndBuildDefault(in []byte, dest interface{}) error {
	if err := yaml.Unmarshal(in, dest); err != nil {
		return err
	}

	return BuildDefault(dest)
}

// UnmarshalJsonAndBuildDefault 解析 json 并按 default tag 补默认值
func UnmarshalJsonAndBuildDefault(in []byte, dest interface{}) error {
	if err := json.Unmarshal(in, dest); err != nil {
		return err
	}

	return BuildDefault(dest)
}

// BuildDefault 递归给零值字段赋 default tag 声明的默认值
func BuildDefault(dest interface{}) error {
	return setFieldDefaultValue(reflect.ValueOf(dest), "")
}

// setFieldDefaultValue 根据字段 default tag 赋默认值
func setFieldDefaultValue(field reflect.Value, tag string) error {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return nil
		}
		field = field.Elem()
	}

	switch field.Kind() {
	case reflect.Struct:
		valType := field.Type()
		for i := 0; i < valType.NumField(); i++ {
			innerField, innerTypeField := field.Field(i), valType.Field(i)
			if !innerField.CanSet() {
				continue
			}

			if err := setFieldDefaultValue(innerField,
				innerTypeField.Tag.Get("default")); err != nil {
				return err
			}
		}
	case reflect.Slice:
		if field.IsZero() && tag != "" {
			// 切片按逗号分割，例如: `default:"a,b,c"`
			values, indexValType := strings.Split(tag, ","), field.Type().Elem()
			field.Set(reflect.MakeSlice(reflect.SliceOf(indexValType), len(values), len(values)))
			for i := 0; i < len(values); i++ {
				if err := setScalarDefaultValue(values[i], field.Index(i)); err != nil {
					return err
				}
			}
		}
	default:
		if field.IsZero() && tag != "" {
			return setScalarDefaultValue(tag, field)
		}
	}

	return nil
}

// setScalarDefaultValue 通过反射给标量字段赋值
func setScalarDefaultValue(defaultValue string, field reflect.Value) error {
	if _, ok := field.Interface().(time.Duration); ok {
		val, err := time.ParseDuration(defaultValue)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(val))

		return nil
	}

	switch field.Kind() {
	case reflect.Bool:
		val, err := strconv.ParseBool(defaultValue)
		if err != nil {
			return err
		}
		field.SetBool(val)
	case reflect.String:
		field.SetString(defaultValue)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		val, err := strconv.ParseInt(defaultValue, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(val)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		val, err := strconv.ParseUint(defaultValue, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(val)
	case reflect.Float32, reflect.Float64:
		val, err := strconv.ParseFloat(defaultValue, 64)
		if err != nil {
			return err
		}
		field.SetFloat(val)
	}

	return nil
}

// Hash32 快速获取 32 位hash
func Hash32(source string) string {
	h := fnv.New32a()
	if _, err := h.Write([]byte(source)); err != nil {
		panic(err)
	}

	return fmt.Sprintf("%x", h.Sum32())
}
