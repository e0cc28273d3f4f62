package types

type (
	// BatchOperation 针对单个目标表的一次批量变更，按 Type 区分变体
	// 同一个表的操作队列严格有序: 清空/删除 -> 更新 -> 插入
	BatchOperation struct {
		Type    string      `json:"type"`
		Rows    []Row       `json:"rows,omitempty"`    // delete_all/clear/update: 受影响的目标行
		Updates []RowUpdate `json:"updates,omitempty"` // clear/update: 与 Rows 按位置配对的更新数据
		Fields  []string    `json:"fields,omitempty"`  // clear: 被清空的字段
		Data    []RowUpdate `json:"data,omitempty"`    // insert: 待插入的行数据
	}

	// TablePlan 单个目标表的清空决策记录
	// 一旦任何规则决定删除整表，后续规则不能降级为只清空字段
	TablePlan struct {
		deleteRows  bool
		clearFields []string
		fieldSet    map[string]struct{}
	}
)

func NewDeleteAllOperation(rows []Row) *BatchOperation {
	return &BatchOperation{Type: OperationDeleteAll, Rows: rows}
}

func NewClearOperation(rows []Row, updates []RowUpdate, fields []string) *BatchOperation {
	return &BatchOperation{Type: OperationClear, Rows: rows, Updates: updates, Fields: fields}
}

func NewUpdateOperation(rows []Row, updates []RowUpdate) *BatchOperation {
	return &BatchOperation{Type: OperationUpdate, Rows: rows, Updates: updates}
}

func NewInsertOperation(data []RowUpdate) *BatchOperation {
	return &BatchOperation{Type: OperationInsert, Data: data}
}

// MarkDeleteAll 标记整表删除，粘性决策，覆盖已有的字段清空计划
func (p *TablePlan) MarkDeleteAll() {
	p.deleteRows = true
	p.clearFields, p.fieldSet = nil, nil
}

// AddClearFields 追加待清空字段，整表删除已生效时忽略
func (p *TablePlan) AddClearFields(fields ...string) {
	if p.deleteRows {
		return
	}
	if p.fieldSet == nil {
		p.fieldSet = make(map[string]struct{})
	}

	for _, field := range fields {
		if _, ok := p.fieldSet[field]; !ok {
			p.fieldSet[field] = struct{}{}
			p.clearFields = append(p.clearFields, field)
		}
	}
}

// DeleteRows 是否删除整表
func (p *TablePlan) DeleteRows() bool {
	return p.deleteRows
}

// ClearFields 待清空字段，按加入顺序
func (p *TablePlan) ClearFields() []string {
	return p.clearFields
}
