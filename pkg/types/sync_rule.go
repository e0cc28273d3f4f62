package types

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type (
	// SyncRule 同步规则
	// 单字段映射 (SourceFields/TargetFields + Aggregation) 和
	// 多字段映射 (MultiFieldMappings) 两种形态，二者互斥
	SyncRule struct {
		SourceTable        string         `json:"source_table" yaml:"source_table"`                             // 源表名
		TargetTable        string         `json:"target_table" yaml:"target_table"`                             // 目标表名
		SourceKeys         []string       `json:"source_keys,omitempty" yaml:"source_keys,omitempty"`           // 源表组合主键字段，有序
		TargetKeys         []string       `json:"target_keys,omitempty" yaml:"target_keys,omitempty"`           // 目标表组合主键字段，有序
		SourceFields       []string       `json:"source_fields,omitempty" yaml:"source_fields,omitempty"`       // 源字段列表
		TargetFields       []string       `json:"target_fields,omitempty" yaml:"target_fields,omitempty"`       // 目标字段列表，与源字段按位置配对
		Aggregation        string         `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`           // 聚合模式
		Factor             float64        `json:"factor,omitempty" yaml:"factor,omitempty"`                     // 数值系数，默认 1
		Conditions         []Condition    `json:"conditions,omitempty" yaml:"conditions,omitempty"`             // 过滤条件 (and)
		ExcludeConditions  []Condition    `json:"exclude_conditions,omitempty" yaml:"exclude_conditions,omitempty"` // 排除条件，命中则剔除
		AllowInsert        bool           `json:"allow_insert,omitempty" yaml:"allow_insert,omitempty"`         // 目标表无匹配行时是否插入
		ClearBeforeSync    bool           `json:"clear_before_sync,omitempty" yaml:"clear_before_sync,omitempty"` // 同步前清空; 与 AllowInsert 同时为真时删除整表
		ShouldRun          *bool          `json:"should_run,omitempty" yaml:"should_run,omitempty"`             // 是否启用，默认启用
		LatestConfig       *LatestConfig  `json:"latest_config,omitempty" yaml:"latest_config,omitempty"`       // latest 聚合配置
		MultiFieldMappings []FieldMapping `json:"multi_field_mappings,omitempty" yaml:"multi_field_mappings,omitempty"`
	}

	innerSyncRule SyncRule

	// FieldMapping 多字段映射规则中的单个字段映射，各自携带聚合与条件
	FieldMapping struct {
		SourceField       string              `json:"source_field" yaml:"source_field"`
		TargetField       string              `json:"target_field" yaml:"target_field"`
		Aggregation       string              `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
		Conditions        []Condition         `json:"conditions,omitempty" yaml:"conditions,omitempty"`
		ExcludeConditions []Condition         `json:"exclude_conditions,omitempty" yaml:"exclude_conditions,omitempty"`
		Factor            float64             `json:"factor,omitempty" yaml:"factor,omitempty"`
		ConcatFields      []string            `json:"concat_fields,omitempty" yaml:"concat_fields,omitempty"`           // conditional_concat 的字段/常量列表
		MathExpression    string              `json:"math_expression,omitempty" yaml:"math_expression,omitempty"`       // math_expression 的算式
		ReplaceMappings   []StringReplacement `json:"replace_mappings,omitempty" yaml:"replace_mappings,omitempty"`     // string_replace 的替换表，按序执行
		LatestConfig      *LatestConfig       `json:"latest_config,omitempty" yaml:"latest_config,omitempty"`
	}

	// Condition 过滤条件，value 为字面量或单个 {变量} 引用
	Condition struct {
		Field string      `json:"field" yaml:"field"`
		Op    string      `json:"op" yaml:"op"`
		Value interface{} `json:"value" yaml:"value"`
	}

	// LatestConfig latest 聚合的时间字段配置
	LatestConfig struct {
		TimeField          string   `json:"time_field,omitempty" yaml:"time_field,omitempty"`
		SortOrder          string   `json:"sort_order,omitempty" yaml:"sort_order,omitempty"` // asc|desc 默认 desc
		FallbackTimeFields []string `json:"fallback_time_fields,omitempty" yaml:"fallback_time_fields,omitempty"`
	}

	// StringReplacement 一条字面量替换
	StringReplacement struct {
		Old string `json:"old" yaml:"old"`
		New string `json:"new" yaml:"new"`
	}
)

// UnmarshalJSON 重写 json 解析方法，补默认值并校验规则形态
func (sr *SyncRule) UnmarshalJSON(bytes []byte) error {
	innerSr := (*innerSyncRule)(sr)
	if err := json.Unmarshal(bytes, innerSr); err != nil {
		return err
	}

	if innerSr.SourceTable == "" || innerSr.TargetTable == "" {
		return errors.Errorf("rule requires source_table and target_table, current: %s -> %s",
			innerSr.SourceTable, innerSr.TargetTable)
	}

	// 单字段映射和多字段映射互斥
	if len(innerSr.MultiFieldMappings) > 0 &&
		(len(innerSr.SourceFields) > 0 || len(innerSr.TargetFields) > 0) {
		return errors.Errorf("rule %s -> %s can not mix multi_field_mappings with source_fields/target_fields",
			innerSr.SourceTable, innerSr.TargetTable)
	}

	if innerSr.Factor == 0 {
		innerSr.Factor = 1
	}
	for i := range innerSr.MultiFieldMappings {
		if innerSr.MultiFieldMappings[i].Factor == 0 {
			innerSr.MultiFieldMappings[i].Factor = 1
		}
	}

	return nil
}

// Enabled 规则是否启用，未配置 should_run 默认启用
func (sr *SyncRule) Enabled() bool {
	return sr.ShouldRun == nil || *sr.ShouldRun
}

// IsMultiMapping 是否为多字段映射规则
func (sr *SyncRule) IsMultiMapping() bool {
	return len(sr.MultiFieldMappings) > 0
}

// SourceKeyOf 计算源行的组合主键，未配置主键时归入单一分组
func (sr *SyncRule) SourceKeyOf(row Row) string {
	if len(sr.SourceKeys) == 0 {
		return AllGroupKey
	}

	return CompositeKey(row, sr.SourceKeys)
}

// TargetKeyOf 计算目标行的组合主键
func (sr *SyncRule) TargetKeyOf(row Row) string {
	if len(sr.TargetKeys) == 0 {
		return AllGroupKey
	}

	return CompositeKey(row, sr.TargetKeys)
}

type (
	// RuleSet 一次同步运行的规则集文档
	RuleSet struct {
		SyncRules      []*SyncRule    `json:"sync_rules" yaml:"sync_rules"`
		DataDictionary DataDictionary `json:"data_dictionary,omitempty" yaml:"data_dictionary,omitempty"`
	}

	// DataDictionary 外部数据字典
	// 既用于条件值的变量替换，也提供 latest 聚合的默认配置
	DataDictionary map[string]interface{}
)

// LatestDefaults 取数据字典中 latest 聚合的全局默认配置
func (d DataDictionary) LatestDefaults() *LatestConfig {
	conf := &LatestConfig{}
	raw, ok := d[DictionaryLatestConfigKey].(map[string]interface{})
	if !ok {
		return conf
	}

	conf.TimeField = ToString(raw["default_time_field"])
	conf.SortOrder = ToString(raw["default_sort_order"])
	if fields, ok := raw["fallback_time_fields"].([]interface{}); ok {
		for _, field := range fields {
			conf.FallbackTimeFields = append(conf.FallbackTimeFields, ToString(field))
		}
	}

	return conf
}
