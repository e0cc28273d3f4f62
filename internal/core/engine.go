package core

import (
	"context"
	"sync"

	"github.com/chenyu-w/seasync/pkg/configs"
	"github.com/chenyu-w/seasync/pkg/tools/logs"
	"github.com/chenyu-w/seasync/pkg/types"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Engine 同步引擎，每次运行构造一个新实例
// 源数据和目标数据各持一份快照，同一张表在不同规则里同时作为源表和目标表时互不影响
type Engine struct {
	adapter types.TableAdapter
	conf    *configs.EngineConfig
	logger  *zap.Logger
	dict    types.DataDictionary
	eval    *conditionEvaluator
	agg     *aggregator

	mux        sync.Mutex
	sourceData map[string][]types.Row
	targetData map[string][]types.Row
	operations map[string][]*types.BatchOperation
	opTables   []string // 操作队列的表顺序
	plans      map[string]*types.TablePlan
}

// 源表名为以下名称时，从数据字典构造虚拟表
var dictionaryTableNames = map[string]struct{}{
	"config": {}, "data_dictionary": {}, "json_config": {},
}

func NewEngine(adapter types.TableAdapter, conf *configs.EngineConfig, logger *zap.Logger) *Engine {
	if conf == nil {
		conf = configs.NewEngineConfig()
	}
	if logger == nil {
		logger = zap.L()
	}

	return &Engine{
		adapter: adapter, conf: conf, logger: logger,
		sourceData: make(map[string][]types.Row),
		targetData: make(map[string][]types.Row),
		operations: make(map[string][]*types.BatchOperation),
		plans:      make(map[string]*types.TablePlan),
	}
}

// Run 执行一次完整同步: 加载快照 -> 准备操作 -> 并发执行各表操作队列
// 只有不可恢复的初始化错误会向上传播，规则和操作级错误只记录日志
func (e *Engine) Run(ctx context.Context, set *types.RuleSet) error {
	defer e.reset()

	e.dict = set.DataDictionary
	if e.dict == nil {
		e.dict = make(types.DataDictionary)
	}
	e.eval = &conditionEvaluator{dict: e.dict}
	e.agg = &aggregator{dict: e.dict, logger: e.logger}

	var enabled []*types.SyncRule
	for _, rule := range set.SyncRules {
		if rule.Enabled() {
			enabled = append(enabled, rule)
		}
	}
	e.logger.Info("已启用的同步规则",
		zap.Int("enabled", len(enabled)), zap.Int("total", len(set.SyncRules)))
	if len(enabled) == 0 {
		e.logger.Warn("没有启用的同步规则")
		return nil
	}

	if err := e.loadAllData(ctx, enabled); err != nil {
		return err
	}
	e.prepareOperations(enabled)
	e.executeOperations(ctx)

	return nil
}

// loadAllData 并发加载所有被规则引用的表，加载并发受配置限制
func (e *Engine) loadAllData(ctx context.Context, rules []*types.SyncRule) error {
	tableSet := make(map[string]struct{})
	var tables []string
	for _, rule := range rules {
		for _, table := range []string{rule.SourceTable, rule.TargetTable} {
			if _, ok := tableSet[table]; !ok {
				tableSet[table] = struct{}{}
				tables = append(tables, table)
			}
		}
	}
	e.logger.Info("开始加载表数据", zap.Int("tables", len(tables)))

	poolSize := e.conf.MaxConcurrentLoads
	if poolSize > len(tables) {
		poolSize = len(tables)
	}

	wg := new(sync.WaitGroup)
	pool, err := ants.NewPoolWithFunc(poolSize, func(i interface{}) {
		defer wg.Done()
		e.loadTable(ctx, i.(string))
	})
	if err != nil {
		return errors.WithStack(err)
	}
	defer pool.Release()

	for _, table := range tables {
		wg.Add(1)
		if err := pool.Invoke(table); err != nil {
			wg.Done()
			return errors.WithStack(err)
		}
	}
	wg.Wait()

	var totalRows int
	for _, rows := range e.sourceData {
		totalRows += len(rows)
	}
	e.logger.Info("所有数据加载完成", zap.Int("total_rows", totalRows))

	return nil
}

// loadTable 加载单个表，加载失败按空表处理，不中断运行
func (e *Engine) loadTable(ctx context.Context, table string) {
	var rows []types.Row
	if _, ok := dictionaryTableNames[table]; ok {
		rows = e.buildDictionaryRows()
		e.logger.Info("从数据字典创建虚拟表", zap.String("table", table), zap.Int("rows", len(rows)))
	} else {
		var err error
		rows, err = e.adapter.GetRows(ctx, table, e.conf.DefaultView)
		if err != nil {
			e.logger.Error("加载表失败，按空表处理", append(logs.ParseErr(err),
				zap.String("table", table))...)
			rows = nil
		} else {
			e.logger.Info("加载表完成", zap.String("table", table), zap.Int("rows", len(rows)))
		}
	}

	e.mux.Lock()
	defer e.mux.Unlock()
	e.sourceData[table] = types.CopyRows(rows)
	e.targetData[table] = types.CopyRows(rows)
}

// buildDictionaryRows 把数据字典的键值对转为虚拟表行
// 键名同时作为列名，方便规则直接引用
func (e *Engine) buildDictionaryRows() []types.Row {
	if len(e.dict) == 0 {
		e.logger.Warn("数据字典为空，无法创建虚拟表")
		return nil
	}

	rows := make([]types.Row, 0, len(e.dict))
	for key, value := range e.dict {
		rows = append(rows, types.Row{"键名": key, "键值": value, key: value})
	}

	return rows
}

// prepareOperations 构建所有批量操作，先清空后同步
func (e *Engine) prepareOperations(rules []*types.SyncRule) {
	e.prepareClearOperations(rules)

	for _, rule := range rules {
		e.processRuleSafely(rule)
	}

	var totalOps int
	for _, ops := range e.operations {
		totalOps += len(ops)
	}
	e.logger.Info("操作准备完成", zap.Int("operations", totalOps))
}

// processRuleSafely 单个规则的错误和 panic 不影响其他规则
func (e *Engine) processRuleSafely(rule *types.SyncRule) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("处理规则失败",
				zap.String("source_table", rule.SourceTable),
				zap.String("target_table", rule.TargetTable),
				zap.Error(errors.Errorf("recover: %v", r)))
		}
	}()

	if err := e.processRule(rule); err != nil {
		e.logger.Error("处理规则失败", append(logs.ParseErr(err),
			zap.String("source_table", rule.SourceTable),
			zap.String("target_table", rule.TargetTable))...)
	}
}

// appendOperation 追加操作到表队列尾部
func (e *Engine) appendOperation(table string, op *types.BatchOperation) {
	if _, ok := e.operations[table]; !ok {
		e.opTables = append(e.opTables, table)
	}
	e.operations[table] = append(e.operations[table], op)
}

// pushFrontOperation 插入操作到表队列头部，清空/删除操作必须先于更新执行
func (e *Engine) pushFrontOperation(table string, op *types.BatchOperation) {
	if _, ok := e.operations[table]; !ok {
		e.opTables = append(e.opTables, table)
	}
	e.operations[table] = append([]*types.BatchOperation{op}, e.operations[table]...)
}

// reset 运行结束释放本次快照和操作队列
func (e *Engine) reset() {
	e.sourceData = make(map[string][]types.Row)
	e.targetData = make(map[string][]types.Row)
	e.operations = make(map[string][]*types.BatchOperation)
	e.plans = make(map[string]*types.TablePlan)
	e.opTables = nil
}
