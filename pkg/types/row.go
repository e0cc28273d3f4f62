package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type (
	// Row 一行表数据，字段名到值的映射
	// 持久化后的行携带 _id 字段作为远端行标识
	Row map[string]interface{}

	// RowUpdate 单行的字段级更新数据 格式: {"column": "value"}
	RowUpdate map[string]interface{}
)

const RowIDField = "_id" // 远端行标识字段

func (r Row) ID() string {
	return ToString(r[RowIDField])
}

func (r Row) Copy() Row {
	newRow := make(Row, len(r))
	for key, value := range r {
		newRow[key] = value
	}

	return newRow
}

// CopyRows 拷贝行切片
// 同一个表同时作为源表和目标表时，必须各持一份拷贝，防止内存修改互相影响
func CopyRows(rows []Row) []Row {
	newRows := make([]Row, len(rows))
	for i, row := range rows {
		newRows[i] = row.Copy()
	}

	return newRows
}

// ToString 值转字符串
// 单选类型字段通常为对象，优先取 name 属性
func ToString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case map[string]interface{}:
		if name, ok := v["name"]; ok {
			return ToString(name)
		}
	}

	return fmt.Sprint(value)
}

// ToNumber 尽力将值转为数值，字符串去掉千分位分隔符后解析
func ToNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if s == "" {
			return 0, false
		}
		if num, err := strconv.ParseFloat(s, 64); err == nil {
			return num, true
		}
	}

	return 0, false
}

// IsBlank 判断值是否为空（nil 或空白字符串）
func IsBlank(value interface{}) bool {
	if value == nil {
		return true
	}

	return strings.TrimSpace(ToString(value)) == ""
}

var dateOnlyPattern = regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}$`)

// ParseDate 尽力将值解析为日期，仅支持 YYYY-M-D / YYYY-MM-DD
// 携带时间的字符串先去掉 T 或空格之后的时间部分
func ParseDate(value interface{}) (time.Time, bool) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if index := strings.IndexByte(s, 'T'); index >= 0 {
		s = s[:index]
	}
	if index := strings.IndexByte(s, ' '); index >= 0 {
		s = s[:index]
	}
	if !dateOnlyPattern.MatchString(s) {
		return time.Time{}, false
	}

	parsed, err := time.Parse("2006-1-2", s)
	if err != nil {
		return time.Time{}, false
	}

	return parsed, true
}

// 时间解析格式表，按顺序尝试
var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"2006年01月02日 15:04:05",
	"2006年01月02日 15:04",
	"2006年01月02日",
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006.01.02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

// ParseDateTime 按格式表逐个尝试解析时间值
func ParseDateTime(value interface{}) (time.Time, bool) {
	if value == nil {
		return time.Time{}, false
	}
	if t, ok := value.(time.Time); ok {
		return t, true
	}

	s, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, true
		}
	}

	return time.Time{}, false
}

// CompositeKey 组合主键，按序拼接字段值，缺失字段为空字符串
func CompositeKey(row Row, keyFields []string) string {
	parts := make([]string, len(keyFields))
	for i, field := range keyFields {
		parts[i] = ToString(row[field])
	}

	return strings.Join(parts, CompositeKeySeparator)
}
