package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/chenyu-w/seasync/pkg/types"
	"go.uber.org/zap"
)

// diffEpsilon 数值对比容差，差值小于该值视为未变化
const diffEpsilon = 0.001

// processRule 处理单个同步规则，生成目标表的更新和插入操作
func (e *Engine) processRule(rule *types.SyncRule) error {
	sourceRows := e.sourceData[rule.SourceTable]
	targetRows := e.targetData[rule.TargetTable]

	var filtered []types.Row
	for _, row := range sourceRows {
		if e.eval.Matches(row, rule.Conditions, rule.ExcludeConditions) {
			filtered = append(filtered, row)
		}
	}
	e.logger.Info("规则源数据过滤完成",
		zap.String("source_table", rule.SourceTable),
		zap.String("target_table", rule.TargetTable),
		zap.Int("matched", len(filtered)), zap.Int("total", len(sourceRows)))

	// 多字段映射未配置主键的一侧按行索引配对，源和目标的第 i 行互相对应
	var groupKeys []string
	var groups, targetGroups map[string][]types.Row
	sourceIndexed := rule.IsMultiMapping() && len(rule.SourceKeys) == 0
	if sourceIndexed {
		groupKeys, groups = groupRowsByIndex(filtered)
	} else {
		groupKeys, groups = groupRowsByKey(filtered, rule.SourceKeyOf)
	}
	if rule.IsMultiMapping() && len(rule.TargetKeys) == 0 {
		_, targetGroups = groupRowsByIndex(targetRows)
	} else {
		_, targetGroups = groupRowsByKey(targetRows, rule.TargetKeyOf)
	}

	// 清空后允许插入的规则跳过更新，全部按新行插入
	skipUpdates := rule.ClearBeforeSync && rule.AllowInsert

	var updateRows []types.Row
	var updates []types.RowUpdate
	var inserts []types.RowUpdate
	for _, key := range groupKeys {
		rows := groups[key]

		var rowData types.RowUpdate
		if rule.IsMultiMapping() {
			rowData = e.buildMultiMappingData(rows, rule)
		} else {
			var ok bool
			rowData, ok = e.agg.PrepareRowData(rows, rule)
			if !ok {
				continue
			}
		}
		if len(rowData) == 0 {
			continue
		}

		matched := targetGroups[key]
		if len(matched) > 0 && !skipUpdates {
			for _, target := range matched {
				if update := diffRowData(target, rowData); update != nil {
					updateRows = append(updateRows, target)
					updates = append(updates, update)
				}
			}
		} else if rule.AllowInsert {
			// broadcast 无目标主键时只更新现有行，目标表将被整体清空时不受此限制
			if rule.Aggregation == types.AggregationBroadcast && len(rule.TargetKeys) == 0 &&
				len(targetRows) > 0 && !skipUpdates {
				continue
			}
			insertKeys := rule.TargetKeys
			if sourceIndexed {
				insertKeys = nil
			}
			inserts = append(inserts, buildInsertRow(key, insertKeys, rowData))
		}
	}

	if len(updates) > 0 {
		e.appendOperation(rule.TargetTable, types.NewUpdateOperation(updateRows, updates))
	}
	if len(inserts) > 0 {
		e.appendOperation(rule.TargetTable, types.NewInsertOperation(inserts))
	}
	e.logger.Info("规则处理完成",
		zap.String("target_table", rule.TargetTable),
		zap.Int("updates", len(updates)), zap.Int("inserts", len(inserts)))

	return nil
}

// buildMultiMappingData 按多字段映射逐列计算目标值
func (e *Engine) buildMultiMappingData(rows []types.Row, rule *types.SyncRule) types.RowUpdate {
	rowData := make(types.RowUpdate)
	for i := range rule.MultiFieldMappings {
		mapping := &rule.MultiFieldMappings[i]
		value := e.agg.CalculateMappingValue(rows, mapping, e.eval)
		if value != nil {
			rowData[mapping.TargetField] = value
		}
	}

	return rowData
}

// groupRowsByKey 按复合键分组，返回键的出现顺序和分组结果
func groupRowsByKey(rows []types.Row, keyOf func(types.Row) string) ([]string, map[string][]types.Row) {
	var keys []string
	groups := make(map[string][]types.Row)
	for _, row := range rows {
		key := keyOf(row)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], row)
	}

	return keys, groups
}

// groupRowsByIndex 按行索引分组，每行各自成组
func groupRowsByIndex(rows []types.Row) ([]string, map[string][]types.Row) {
	keys := make([]string, len(rows))
	groups := make(map[string][]types.Row, len(rows))
	for i, row := range rows {
		key := strconv.Itoa(i)
		keys[i] = key
		groups[key] = []types.Row{row}
	}

	return keys, groups
}

// diffRowData 对比目标行当前值和期望值，只有存在变化的字段才进入更新
// 没有任何变化时返回 nil
func diffRowData(target types.Row, rowData types.RowUpdate) types.RowUpdate {
	update := make(types.RowUpdate)
	for field, value := range rowData {
		if valueChanged(target[field], value) {
			update[field] = value
		}
	}
	if len(update) == 0 {
		return nil
	}

	return update
}

// valueChanged 判断字段值是否变化，两侧都是数值时按容差比较
func valueChanged(old, new interface{}) bool {
	if types.IsBlank(old) && types.IsBlank(new) {
		return false
	}

	oldNum, oldOk := types.ToNumber(old)
	newNum, newOk := types.ToNumber(new)
	if oldOk && newOk {
		return math.Abs(oldNum-newNum) > diffEpsilon
	}

	return types.ToString(old) != types.ToString(new)
}

// buildInsertRow 用分组键还原目标键字段，再合并聚合结果
func buildInsertRow(key string, targetKeys []string, rowData types.RowUpdate) types.RowUpdate {
	row := make(types.RowUpdate, len(rowData)+len(targetKeys))
	if key != types.AllGroupKey && len(targetKeys) > 0 {
		parts := strings.Split(key, types.CompositeKeySeparator)
		if len(parts) == len(targetKeys) {
			for i, field := range targetKeys {
				row[field] = parts[i]
			}
		}
	}
	for field, value := range rowData {
		row[field] = value
	}

	return row
}
