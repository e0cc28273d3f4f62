package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenyu-w/seasync/pkg/tools/logs"
	"github.com/chenyu-w/seasync/pkg/types"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// executeOperations 按表并发执行操作队列，单表内严格串行
func (e *Engine) executeOperations(ctx context.Context) {
	if len(e.opTables) == 0 {
		e.logger.Info("没有需要执行的操作")
		return
	}

	poolSize := e.conf.MaxConcurrentTables
	if poolSize > len(e.opTables) {
		poolSize = len(e.opTables)
	}

	var failedTables int32
	wg := new(sync.WaitGroup)
	pool, err := ants.NewPoolWithFunc(poolSize, func(i interface{}) {
		defer wg.Done()
		table := i.(string)
		if err := e.executeTableOperations(ctx, table); err != nil {
			atomic.AddInt32(&failedTables, 1)
			e.logger.Error("表操作执行失败", append(logs.ParseErr(err),
				zap.String("table", table))...)
		}
	})
	if err != nil {
		e.logger.Error("创建执行协程池失败", logs.ParseErr(errors.WithStack(err))...)
		return
	}
	defer pool.Release()

	for _, table := range e.opTables {
		wg.Add(1)
		if err := pool.Invoke(table); err != nil {
			wg.Done()
			e.logger.Error("提交表操作失败", append(logs.ParseErr(errors.WithStack(err)),
				zap.String("table", table))...)
		}
	}
	wg.Wait()

	e.logger.Info("所有表操作执行完成",
		zap.Int("tables", len(e.opTables)), zap.Int32("failed_tables", failedTables))
}

// executeTableOperations 执行单个表的操作队列，失败的操作记录后继续后续操作
func (e *Engine) executeTableOperations(ctx context.Context, table string) error {
	ops := e.operations[table]

	var failed int
	for _, op := range ops {
		if err := e.executeOperation(ctx, table, op); err != nil {
			failed++
			e.logger.Error("批量操作失败", append(logs.ParseErr(err),
				zap.String("table", table), zap.String("type", op.Type))...)
		}
	}
	if failed > 0 {
		return errors.Errorf("%d/%d operations failed on table %s", failed, len(ops), table)
	}

	return nil
}

func (e *Engine) executeOperation(ctx context.Context, table string, op *types.BatchOperation) error {
	switch op.Type {
	case types.OperationDeleteAll:
		return e.executeDeleteAll(ctx, table, op)
	case types.OperationClear, types.OperationUpdate:
		rematched := false
		return e.withRetry(ctx, op.Type+":"+table, func(ctx context.Context) error {
			return e.executeModify(ctx, table, op, &rematched)
		})
	case types.OperationInsert:
		return e.withRetry(ctx, op.Type+":"+table, func(ctx context.Context) error {
			return e.executeInsert(ctx, table, op)
		})
	default:
		return errors.Errorf("unknown operation type: %s", op.Type)
	}
}

// executeDeleteAll 分批删除整表行，不重试
// 单批失败只记录并继续，最终返回聚合结果
func (e *Engine) executeDeleteAll(ctx context.Context, table string, op *types.BatchOperation) error {
	rowIDs := make([]string, 0, len(op.Rows))
	for _, row := range op.Rows {
		if id := row.ID(); id != "" {
			rowIDs = append(rowIDs, id)
		}
	}
	if len(rowIDs) == 0 {
		return nil
	}

	size := deleteBatchSize(len(rowIDs))
	var failed int
	for start := 0; start < len(rowIDs); start += size {
		end := start + size
		if end > len(rowIDs) {
			end = len(rowIDs)
		}

		batch := rowIDs[start:end]
		if err := e.adapter.BatchDeleteRows(ctx, table, batch); err != nil {
			failed += len(batch)
			e.logger.Error("删除批次失败", append(logs.ParseErr(err),
				zap.String("table", table), zap.Int("batch_size", len(batch)))...)
		}
		if end < len(rowIDs) {
			e.sleepBatchInterval(ctx)
		}
	}

	if _, err := e.reloadTable(ctx, table); err != nil {
		e.logger.Warn("删除后刷新目标表失败", append(logs.ParseErr(err),
			zap.String("table", table))...)
	}
	if failed > 0 {
		return errors.Errorf("failed to delete %d/%d rows from table %s", failed, len(rowIDs), table)
	}
	e.logger.Info("整表删除完成", zap.String("table", table), zap.Int("rows", len(rowIDs)))

	return nil
}

// executeModify 分批修改目标行
// 先用单行探测行标识是否失效，失效时整表重载并按业务键重新匹配，每个操作最多重匹配一次
func (e *Engine) executeModify(ctx context.Context, table string,
	op *types.BatchOperation, rematched *bool) error {

	rows, updates := op.Rows, op.Updates
	if len(rows) == 0 {
		return nil
	}

	if err := e.adapter.ModifyRows(ctx, table, rows[:1], updates[:1]); err != nil {
		if !types.IsRowIDsNotExist(err) || *rematched {
			return err
		}
		*rematched = true
		e.logger.Warn("行标识失效，重新加载目标表后按业务键匹配", zap.String("table", table))

		var rerr error
		rows, updates, rerr = e.rematchRows(ctx, table, rows, updates)
		if rerr != nil {
			return rerr
		}
		op.Rows, op.Updates = rows, updates
		if len(rows) == 0 {
			e.logger.Warn("重新匹配后没有可修改的行", zap.String("table", table))
			return nil
		}
		if err := e.adapter.ModifyRows(ctx, table, rows[:1], updates[:1]); err != nil {
			return err
		}
	}
	// 探测行随首批再次下发，更新幂等
	size := modifyBatchSize(len(rows))
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}

		if err := e.adapter.ModifyRows(ctx, table, rows[start:end], updates[start:end]); err != nil {
			return err
		}
		if end < len(rows) {
			e.sleepBatchInterval(ctx)
		}
	}
	e.logger.Info("批量修改完成", zap.String("table", table),
		zap.String("type", op.Type), zap.Int("rows", len(op.Rows)))

	return nil
}

// executeInsert 逐行插入，失败的行记录后继续，返回聚合结果
// 重试会重新插入已成功的行，依赖上游先清空目标表
func (e *Engine) executeInsert(ctx context.Context, table string, op *types.BatchOperation) error {
	var failed int
	for _, data := range op.Data {
		if err := e.adapter.AppendRow(ctx, table, data); err != nil {
			failed++
			e.logger.Error("插入行失败", append(logs.ParseErr(err),
				zap.String("table", table))...)
		}
	}

	if _, err := e.reloadTable(ctx, table); err != nil {
		e.logger.Warn("插入后刷新目标表失败", append(logs.ParseErr(err),
			zap.String("table", table))...)
	}
	if failed > 0 {
		return errors.Errorf("failed to insert %d/%d rows into table %s", failed, len(op.Data), table)
	}
	e.logger.Info("批量插入完成", zap.String("table", table), zap.Int("rows", len(op.Data)))

	return nil
}

// reloadTable 重新拉取目标表快照
func (e *Engine) reloadTable(ctx context.Context, table string) ([]types.Row, error) {
	rows, err := e.adapter.GetRows(ctx, table, e.conf.DefaultView)
	if err != nil {
		return nil, err
	}

	e.mux.Lock()
	e.targetData[table] = types.CopyRows(rows)
	e.mux.Unlock()

	return rows, nil
}

// rematchRows 重载目标表后按业务键重新配对，匹配不到的行连同更新一起丢弃
func (e *Engine) rematchRows(ctx context.Context, table string,
	rows []types.Row, updates []types.RowUpdate) ([]types.Row, []types.RowUpdate, error) {

	fresh, err := e.reloadTable(ctx, table)
	if err != nil {
		return nil, nil, err
	}

	matchedRows := make([]types.Row, 0, len(rows))
	matchedUpdates := make([]types.RowUpdate, 0, len(updates))
	for i, row := range rows {
		match := matchByBusinessKeys(row, fresh, e.conf.RematchKeyFields)
		if match == nil {
			continue
		}
		matchedRows = append(matchedRows, match)
		matchedUpdates = append(matchedUpdates, updates[i])
	}
	e.logger.Info("业务键重新匹配完成", zap.String("table", table),
		zap.Int("matched", len(matchedRows)), zap.Int("dropped", len(rows)-len(matchedRows)))

	return matchedRows, matchedUpdates, nil
}

func matchByBusinessKeys(stale types.Row, fresh []types.Row, keyFields []string) types.Row {
	for _, candidate := range fresh {
		if rowsMatch(stale, candidate, keyFields) {
			return candidate
		}
	}

	return nil
}

// rowsMatch 业务键匹配，只比较旧行里非空的键字段，至少命中一个才算匹配
func rowsMatch(stale, candidate types.Row, keyFields []string) bool {
	var matched bool
	for _, field := range keyFields {
		value := stale[field]
		if types.IsBlank(value) {
			continue
		}
		if types.ToString(value) != types.ToString(candidate[field]) {
			return false
		}
		matched = true
	}

	return matched
}

// withRetry 固定次数重试，间隔按 2^attempt 秒递增
func (e *Engine) withRetry(ctx context.Context, name string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= e.conf.MaxRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == e.conf.MaxRetries {
			break
		}

		delay := time.Duration(1<<uint(attempt)) * time.Second
		e.logger.Warn("操作失败，等待重试", append(logs.ParseErr(err),
			zap.String("operation", name), zap.Int("attempt", attempt),
			zap.Duration("delay", delay))...)
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-time.After(delay):
		}
	}

	return err
}

func (e *Engine) sleepBatchInterval(ctx context.Context) {
	if e.conf.BatchInterval <= 0 {
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(e.conf.BatchInterval):
	}
}

// modifyBatchSize 按总行数选择修改批次大小
func modifyBatchSize(total int) int {
	switch {
	case total <= 100:
		return 50
	case total <= 500:
		return 200
	case total <= 2000:
		return 500
	default:
		return 1000
	}
}

// deleteBatchSize 按总行数选择删除批次大小
func deleteBatchSize(total int) int {
	switch {
	case total <= 100:
		return 100
	case total <= 500:
		return 300
	case total <= 2000:
		return 500
	default:
		return 800
	}
}
