package types

import (
	"testing"

	"github.com/pkg/errors"
)

func TestTablePlan(t *testing.T) {
	plan := new(TablePlan)

	plan.AddClearFields("收入合计", "支出合计", "收入合计")
	if fields := plan.ClearFields(); len(fields) != 2 {
		t.Fatalf("fields not deduplicated: %v", fields)
	}
	if plan.DeleteRows() {
		t.Fatal("delete should not be marked")
	}

	plan.MarkDeleteAll()
	if !plan.DeleteRows() || plan.ClearFields() != nil {
		t.Fatal("delete all should override field clearing")
	}

	// 整表删除生效后字段清空请求被忽略
	plan.AddClearFields("金额")
	if plan.ClearFields() != nil {
		t.Fatal("clear fields after delete all should be ignored")
	}
}

func TestIsRowIDsNotExist(t *testing.T) {
	if !IsRowIDsNotExist(ErrRowIDsNotExist) {
		t.Fatal("sentinel not detected")
	}
	// 远端错误信息按子串匹配
	wrapped := errors.New("deleted: row ids not exist, please reload")
	if !IsRowIDsNotExist(wrapped) {
		t.Fatal("substring match failed")
	}
	if IsRowIDsNotExist(nil) || IsRowIDsNotExist(errors.New("boom")) {
		t.Fatal("false positive")
	}
}
