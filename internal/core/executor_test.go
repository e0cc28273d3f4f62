package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/chenyu-w/seasync/pkg/types"
	"github.com/pkg/errors"
)

// fakeAdapter 内存表适配器，记录每次批量调用供断言
type fakeAdapter struct {
	mu            sync.Mutex
	rows          map[string][]types.Row
	modifyErrs    []error // 每次 ModifyRows 调用依次消费
	appendErrs    []error
	modifyBatches []int
	deleteBatches []int
	modifiedIDs   []string
	lastUpdates   []types.RowUpdate
	appended      []types.RowUpdate
}

func (f *fakeAdapter) GetRows(ctx context.Context, table, view string) ([]types.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[table], nil
}

func (f *fakeAdapter) AppendRow(ctx context.Context, table string, data types.RowUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.appendErrs) > 0 {
		err := f.appendErrs[0]
		f.appendErrs = f.appendErrs[1:]
		if err != nil {
			return err
		}
	}
	f.appended = append(f.appended, data)

	return nil
}

func (f *fakeAdapter) ModifyRows(ctx context.Context, table string,
	rows []types.Row, updates []types.RowUpdate) error {

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.modifyErrs) > 0 {
		err := f.modifyErrs[0]
		f.modifyErrs = f.modifyErrs[1:]
		if err != nil {
			return err
		}
	}

	f.modifyBatches = append(f.modifyBatches, len(rows))
	for _, row := range rows {
		f.modifiedIDs = append(f.modifiedIDs, row.ID())
	}
	f.lastUpdates = append(f.lastUpdates, updates...)

	return nil
}

func (f *fakeAdapter) BatchDeleteRows(ctx context.Context, table string, rowIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteBatches = append(f.deleteBatches, len(rowIDs))

	return nil
}

func (f *fakeAdapter) TestConnection(ctx context.Context) error {
	return nil
}

func TestEngine_ExecuteModify_Batching(t *testing.T) {
	fake := &fakeAdapter{rows: map[string][]types.Row{}}
	e := newTestEngine(fake)

	rows := make([]types.Row, 1500)
	updates := make([]types.RowUpdate, 1500)
	for i := range rows {
		rows[i] = types.Row{types.RowIDField: fmt.Sprintf("r%d", i)}
		updates[i] = types.RowUpdate{"数量": i}
	}
	op := types.NewUpdateOperation(rows, updates)

	rematched := false
	if err := e.executeModify(context.Background(), "t", op, &rematched); err != nil {
		t.Fatal(err)
	}
	// 单行探测后 1500 行按 500 一批，探测行随首批重发
	want := []int{1, 500, 500, 500}
	if len(fake.modifyBatches) != len(want) {
		t.Fatalf("got batches %v, want %v", fake.modifyBatches, want)
	}
	for i, size := range want {
		if fake.modifyBatches[i] != size {
			t.Fatalf("got batches %v, want %v", fake.modifyBatches, want)
		}
	}
}

func TestEngine_ExecuteModify_RematchOnStaleRowIDs(t *testing.T) {
	fake := &fakeAdapter{
		rows: map[string][]types.Row{
			"t": {{types.RowIDField: "n1", "合同编号": "HT-01"}},
		},
		modifyErrs: []error{types.ErrRowIDsNotExist},
	}
	e := newTestEngine(fake)

	op := types.NewUpdateOperation(
		[]types.Row{
			{types.RowIDField: "old1", "合同编号": "HT-01"},
			{types.RowIDField: "old2", "合同编号": "HT-99"},
		},
		[]types.RowUpdate{{"金额": 100}, {"金额": 200}},
	)

	rematched := false
	if err := e.executeModify(context.Background(), "t", op, &rematched); err != nil {
		t.Fatal(err)
	}
	if !rematched {
		t.Fatal("rematch flag not set")
	}
	// HT-01 换用新行标识，HT-99 匹配不到被丢弃；探测后按批次重发
	if len(fake.modifiedIDs) == 0 {
		t.Fatal("no rows modified")
	}
	for _, id := range fake.modifiedIDs {
		if id != "n1" {
			t.Fatalf("got modified ids %v", fake.modifiedIDs)
		}
	}
	for _, update := range fake.lastUpdates {
		if update["金额"] != 100 {
			t.Fatalf("got updates %v", fake.lastUpdates)
		}
	}
}

func TestEngine_ExecuteModify_SecondStaleFails(t *testing.T) {
	fake := &fakeAdapter{
		rows: map[string][]types.Row{
			"t": {{types.RowIDField: "n1", "合同编号": "HT-01"}},
		},
		modifyErrs: []error{types.ErrRowIDsNotExist, types.ErrRowIDsNotExist},
	}
	e := newTestEngine(fake)

	op := types.NewUpdateOperation(
		[]types.Row{{types.RowIDField: "old1", "合同编号": "HT-01"}},
		[]types.RowUpdate{{"金额": 100}},
	)

	// 每个操作最多重匹配一次，再次失效直接报错
	rematched := false
	err := e.executeModify(context.Background(), "t", op, &rematched)
	if !types.IsRowIDsNotExist(err) {
		t.Fatalf("got %v", err)
	}
}

func TestEngine_ExecuteDeleteAll_Batching(t *testing.T) {
	fake := &fakeAdapter{rows: map[string][]types.Row{}}
	e := newTestEngine(fake)

	rows := make([]types.Row, 600)
	for i := range rows {
		rows[i] = types.Row{types.RowIDField: fmt.Sprintf("r%d", i)}
	}
	op := types.NewDeleteAllOperation(rows)

	if err := e.executeDeleteAll(context.Background(), "t", op); err != nil {
		t.Fatal(err)
	}
	if len(fake.deleteBatches) != 2 || fake.deleteBatches[0] != 500 || fake.deleteBatches[1] != 100 {
		t.Fatalf("got batches %v", fake.deleteBatches)
	}
}

func TestEngine_ExecuteInsert_AggregatesFailures(t *testing.T) {
	fake := &fakeAdapter{
		rows:       map[string][]types.Row{},
		appendErrs: []error{nil, errors.New("boom"), nil},
	}
	e := newTestEngine(fake)

	op := types.NewInsertOperation([]types.RowUpdate{
		{"编号": "A"}, {"编号": "B"}, {"编号": "C"},
	})

	err := e.executeInsert(context.Background(), "t", op)
	if err == nil {
		t.Fatal("expected aggregated insert error")
	}
	// 失败后继续插入剩余行
	if len(fake.appended) != 2 {
		t.Fatalf("got %d appended rows, want 2", len(fake.appended))
	}
}

func TestEngine_WithRetry(t *testing.T) {
	e := newTestEngine(nil)

	calls := 0
	err := e.withRetry(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	if err == nil || calls != e.conf.MaxRetries {
		t.Fatalf("got err %v after %d calls", err, calls)
	}

	calls = 0
	err = e.withRetry(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("got err %v after %d calls", err, calls)
	}
}

func TestBatchSizes(t *testing.T) {
	tests := []struct {
		total, modify, del int
	}{
		{50, 50, 100},
		{100, 50, 100},
		{300, 200, 300},
		{2000, 500, 500},
		{5000, 1000, 800},
	}

	for _, tt := range tests {
		if got := modifyBatchSize(tt.total); got != tt.modify {
			t.Fatalf("modifyBatchSize(%d) got %d, want %d", tt.total, got, tt.modify)
		}
		if got := deleteBatchSize(tt.total); got != tt.del {
			t.Fatalf("deleteBatchSize(%d) got %d, want %d", tt.total, got, tt.del)
		}
	}
}
