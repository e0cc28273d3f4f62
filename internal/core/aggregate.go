package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chenyu-w/seasync/pkg/types"
	"go.uber.org/zap"
)

// aggregator 聚合计算器，把一组同键源行归并为目标字段值
type aggregator struct {
	dict   types.DataDictionary
	logger *zap.Logger
}

// firstPart 聚合的分隔符集合
var firstPartSeparators = []string{",", "，", ";", "；", "|", "/", "\\"}

// PrepareRowData 单字段映射路径的行数据准备，用于更新或插入
// 支持 broadcast / sum / latest，其余模式取第一行原值
func (a *aggregator) PrepareRowData(rows []types.Row, rule *types.SyncRule) (types.RowUpdate, bool) {
	update := make(types.RowUpdate)
	if len(rows) == 0 {
		return update, false
	}

	switch rule.Aggregation {
	case types.AggregationBroadcast:
		sourceRow := a.selectBroadcastRow(rows, rule.SourceFields)
		for i, sourceField := range rule.SourceFields {
			if i < len(rule.TargetFields) {
				update[rule.TargetFields[i]] = sourceRow[sourceField]
			}
		}
	case types.AggregationSum:
		var total float64
		for _, row := range rows {
			value, ok := types.ToNumber(row[rule.SourceFields[0]])
			if !ok && !types.IsBlank(row[rule.SourceFields[0]]) {
				a.logger.Warn("无法转换为数值", zap.String("field", rule.SourceFields[0]),
					zap.Any("value", row[rule.SourceFields[0]]))
			}
			total += value
		}
		if len(rule.TargetFields) > 0 {
			update[rule.TargetFields[0]] = total * rule.Factor
		}
	case types.AggregationLatest:
		latestRow := a.latestRecord(rows, rule.LatestConfig)
		if latestRow != nil {
			for i, sourceField := range rule.SourceFields {
				if i < len(rule.TargetFields) {
					update[rule.TargetFields[i]] = latestRow[sourceField]
				}
			}
		}
	default:
		sourceRow := rows[0]
		for i, sourceField := range rule.SourceFields {
			if i < len(rule.TargetFields) {
				value := sourceRow[sourceField]
				if num, ok := types.ToNumber(value); ok && rule.Factor != 1 {
					update[rule.TargetFields[i]] = num * rule.Factor
				} else {
					update[rule.TargetFields[i]] = value
				}
			}
		}
	}

	return update, len(update) > 0
}

// selectBroadcastRow 广播模式选行
// 优先选所有请求字段都非空的行，其次选包含任一字段的行，最后兜底第一行
func (a *aggregator) selectBroadcastRow(rows []types.Row, sourceFields []string) types.Row {
	for _, row := range rows {
		complete := true
		for _, field := range sourceFields {
			if value, ok := row[field]; !ok || types.IsBlank(value) {
				complete = false
				break
			}
		}
		if complete {
			return row
		}
	}

	for _, row := range rows {
		for _, field := range sourceFields {
			if _, ok := row[field]; ok {
				return row
			}
		}
	}

	return rows[0]
}

// CalculateMappingValue 多字段映射路径的单字段值计算
// 先按映射自己的条件过滤，再按聚合模式归并；无匹配行时 sum 返回 0 其余返回 nil
func (a *aggregator) CalculateMappingValue(rows []types.Row, mapping *types.FieldMapping,
	eval *conditionEvaluator) interface{} {

	filtered := rows
	if len(mapping.Conditions) > 0 || len(mapping.ExcludeConditions) > 0 {
		filtered = make([]types.Row, 0, len(rows))
		for _, row := range rows {
			if eval.Matches(row, mapping.Conditions, mapping.ExcludeConditions) {
				filtered = append(filtered, row)
			}
		}
	}

	if len(filtered) == 0 {
		if mapping.Aggregation == types.AggregationSum {
			return float64(0)
		}
		return nil
	}

	switch mapping.Aggregation {
	case types.AggregationSum:
		var total float64
		for _, row := range filtered {
			value, ok := types.ToNumber(row[mapping.SourceField])
			if !ok && !types.IsBlank(row[mapping.SourceField]) {
				a.logger.Warn("无法转换为数值", zap.String("field", mapping.SourceField),
					zap.Any("value", row[mapping.SourceField]))
			}
			total += value
		}
		return total * mapping.Factor
	case types.AggregationLatest:
		// 返回最后一个非空值
		for i := len(filtered) - 1; i >= 0; i-- {
			if value := filtered[i][mapping.SourceField]; !types.IsBlank(value) {
				return value
			}
		}
		return nil
	case types.AggregationFirstPart:
		return firstPart(filtered[0][mapping.SourceField])
	case types.AggregationConditionalConcat:
		var parts []string
		for _, field := range mapping.ConcatFields {
			// 字段存在时取字段值，否则作为常量拼接
			value, ok := filtered[0][field]
			if !ok {
				value = field
			}
			if !types.IsBlank(value) {
				parts = append(parts, types.ToString(value))
			}
		}
		return strings.Join(parts, "")
	case types.AggregationYearIf:
		if parsed, ok := a.parseMappingDate(filtered[0], mapping); ok {
			return parsed.Year()
		}
		return nil
	case types.AggregationMonthIf:
		if parsed, ok := a.parseMappingDate(filtered[0], mapping); ok {
			return fmt.Sprintf("%d月", int(parsed.Month()))
		}
		return ""
	case types.AggregationDateYearMonth:
		if parsed, ok := a.parseMappingDate(filtered[0], mapping); ok {
			return fmt.Sprintf("%d%02d", parsed.Year(), int(parsed.Month()))
		}
		return ""
	case types.AggregationMathExpression:
		if mapping.MathExpression != "" {
			result, err := evaluateMathExpression(mapping.MathExpression, filtered[0])
			if err != nil {
				a.logger.Warn("数学表达式计算失败", zap.String("expression", mapping.MathExpression),
					zap.Error(err))
				return float64(0)
			}
			return result * mapping.Factor
		}
		return float64(0)
	case types.AggregationStringReplace:
		result := types.ToString(filtered[0][mapping.SourceField])
		for _, replacement := range mapping.ReplaceMappings {
			result = strings.ReplaceAll(result, replacement.Old, replacement.New)
		}
		return result
	}

	// 默认返回第一行原值
	return filtered[0][mapping.SourceField]
}

func (a *aggregator) parseMappingDate(row types.Row, mapping *types.FieldMapping) (time.Time, bool) {
	value := row[mapping.SourceField]
	if types.IsBlank(value) {
		return time.Time{}, false
	}

	parsed, ok := types.ParseDateTime(value)
	if !ok {
		a.logger.Warn("解析日期失败", zap.String("field", mapping.SourceField), zap.Any("value", value))
	}

	return parsed, ok
}

// latestRecord 按时间字段取最新记录
// 时间字段解析顺序: 规则配置的主字段 -> 规则回退字段 -> 数据字典默认配置；
// 所有字段都解析不出时间时回退到第一行
func (a *aggregator) latestRecord(rows []types.Row, ruleConfig *types.LatestConfig) types.Row {
	if len(rows) == 0 {
		return nil
	}

	defaults := a.dict.LatestDefaults()
	timeField, sortOrder, fallbacks := defaults.TimeField, defaults.SortOrder, defaults.FallbackTimeFields
	if ruleConfig != nil {
		if ruleConfig.TimeField != "" {
			timeField = ruleConfig.TimeField
		}
		if ruleConfig.SortOrder != "" {
			sortOrder = ruleConfig.SortOrder
		}
		if len(ruleConfig.FallbackTimeFields) > 0 {
			fallbacks = ruleConfig.FallbackTimeFields
		}
	}
	if sortOrder == "" {
		sortOrder = types.SortOrderDesc
	}

	var fieldsToTry []string
	if timeField != "" {
		fieldsToTry = append(fieldsToTry, timeField)
	}
	fieldsToTry = append(fieldsToTry, fallbacks...)

	type timedRow struct {
		row    types.Row
		parsed time.Time
	}

	for _, field := range fieldsToTry {
		var valid []timedRow
		for _, row := range rows {
			if types.IsBlank(row[field]) {
				continue
			}
			if parsed, ok := types.ParseDateTime(row[field]); ok {
				valid = append(valid, timedRow{row: row, parsed: parsed})
			}
		}

		if len(valid) > 0 {
			sort.SliceStable(valid, func(i, j int) bool {
				if sortOrder == types.SortOrderDesc {
					return valid[i].parsed.After(valid[j].parsed)
				}
				return valid[i].parsed.Before(valid[j].parsed)
			})
			return valid[0].row
		}
	}

	a.logger.Warn("无法找到有效时间字段，使用第一条记录")

	return rows[0]
}

// firstPart 取首个分隔符之前的内容并去掉首尾空白
func firstPart(value interface{}) string {
	strValue := types.ToString(value)
	if strValue == "" {
		return ""
	}

	firstIndex := len(strValue)
	for _, sep := range firstPartSeparators {
		if index := strings.Index(strValue, sep); index != -1 && index < firstIndex {
			firstIndex = index
		}
	}
	if firstIndex < len(strValue) {
		return strings.TrimSpace(strValue[:firstIndex])
	}

	return strValue
}
