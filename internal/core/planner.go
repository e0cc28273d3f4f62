package core

import (
	"github.com/chenyu-w/seasync/pkg/types"
	"go.uber.org/zap"
)

// clearedValue 字段清空后写入的值，统计类目标字段清零
var clearedValue = func(field string) interface{} { return 0 }

// prepareClearOperations 汇总所有规则的清空诉求，按表生成清空操作
// 同一张表被多个规则引用时只清一次，整表删除优先于字段清空
func (e *Engine) prepareClearOperations(rules []*types.SyncRule) {
	var planTables []string
	for _, rule := range rules {
		if !rule.ClearBeforeSync {
			continue
		}

		plan, ok := e.plans[rule.TargetTable]
		if !ok {
			plan = new(types.TablePlan)
			e.plans[rule.TargetTable] = plan
			planTables = append(planTables, rule.TargetTable)
		}

		// 允许插入的清空规则会重建所有行，直接删除整表
		if rule.AllowInsert {
			plan.MarkDeleteAll()
		} else {
			plan.AddClearFields(ruleTargetFields(rule)...)
		}
	}

	for _, table := range planTables {
		plan := e.plans[table]
		rows := e.targetData[table]

		if plan.DeleteRows() {
			if len(rows) == 0 {
				continue
			}
			e.pushFrontOperation(table, types.NewDeleteAllOperation(rows))
			e.logger.Info("计划删除目标表全部行",
				zap.String("table", table), zap.Int("rows", len(rows)))
			continue
		}

		fields := plan.ClearFields()
		if len(fields) == 0 {
			continue
		}

		var clearRows []types.Row
		var updates []types.RowUpdate
		for _, row := range rows {
			update := make(types.RowUpdate)
			for _, field := range fields {
				// 只清空行里存在且尚未是清空值的字段
				if _, ok := row[field]; !ok {
					continue
				}
				value := clearedValue(field)
				if valueChanged(row[field], value) {
					update[field] = value
				}
			}
			if len(update) > 0 {
				clearRows = append(clearRows, row)
				updates = append(updates, update)
			}
		}
		if len(updates) == 0 {
			continue
		}

		e.pushFrontOperation(table, types.NewClearOperation(clearRows, updates, fields))
		e.logger.Info("计划清空目标表字段", zap.String("table", table),
			zap.Strings("fields", fields), zap.Int("rows", len(updates)))
	}
}

// ruleTargetFields 规则写入目标表的全部字段
func ruleTargetFields(rule *types.SyncRule) []string {
	if rule.IsMultiMapping() {
		fields := make([]string, 0, len(rule.MultiFieldMappings))
		for i := range rule.MultiFieldMappings {
			fields = append(fields, rule.MultiFieldMappings[i].TargetField)
		}
		return fields
	}

	return rule.TargetFields
}
