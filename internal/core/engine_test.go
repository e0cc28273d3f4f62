package core

import (
	"context"
	"testing"

	"github.com/chenyu-w/seasync/pkg/configs"
	"github.com/chenyu-w/seasync/pkg/types"
	"go.uber.org/zap"
)

func TestEngine_Run(t *testing.T) {
	fake := &fakeAdapter{rows: map[string][]types.Row{
		"工时表": {
			{types.RowIDField: "s1", "项目": "X", "工时": 3},
			{types.RowIDField: "s2", "项目": "X", "工时": 5},
		},
		"汇总表": {
			{types.RowIDField: "t1", "项目": "X", "总工时": 1},
		},
	}}

	conf := configs.NewEngineConfig()
	conf.BatchInterval = 0
	conf.MaxRetries = 1
	e := NewEngine(fake, conf, zap.NewNop())

	set := &types.RuleSet{SyncRules: []*types.SyncRule{{
		SourceTable: "工时表", TargetTable: "汇总表",
		SourceKeys: []string{"项目"}, TargetKeys: []string{"项目"},
		SourceFields: []string{"工时"}, TargetFields: []string{"总工时"},
		Aggregation: types.AggregationSum, Factor: 1,
	}}}

	if err := e.Run(context.Background(), set); err != nil {
		t.Fatal(err)
	}
	// 探测行随首批重发，两次调用都只命中 t1
	if len(fake.modifiedIDs) != 2 || fake.modifiedIDs[0] != "t1" || fake.modifiedIDs[1] != "t1" {
		t.Fatalf("got modified ids %v", fake.modifiedIDs)
	}
	if fake.lastUpdates[0]["总工时"].(float64) != 8 {
		t.Fatalf("got %v, want 8", fake.lastUpdates[0]["总工时"])
	}
}

func TestEngine_Run_DisabledRules(t *testing.T) {
	fake := &fakeAdapter{rows: map[string][]types.Row{}}
	e := newTestEngine(fake)

	disabled := false
	set := &types.RuleSet{SyncRules: []*types.SyncRule{{
		SourceTable: "a", TargetTable: "b", Factor: 1, ShouldRun: &disabled,
	}}}

	if err := e.Run(context.Background(), set); err != nil {
		t.Fatal(err)
	}
	if len(fake.modifyBatches) != 0 || len(fake.deleteBatches) != 0 {
		t.Fatal("disabled rules should not touch the adapter")
	}
}

func TestEngine_BuildDictionaryRows(t *testing.T) {
	e := newTestEngine(nil)
	e.dict = types.DataDictionary{"汇率": "7.2"}

	rows := e.buildDictionaryRows()
	if len(rows) != 1 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0]["键名"] != "汇率" || rows[0]["键值"] != "7.2" || rows[0]["汇率"] != "7.2" {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestEngine_Run_DictionarySourceTable(t *testing.T) {
	fake := &fakeAdapter{rows: map[string][]types.Row{
		"报表": {{types.RowIDField: "t1", "当前汇率": 6.8}},
	}}

	conf := configs.NewEngineConfig()
	conf.BatchInterval = 0
	conf.MaxRetries = 1
	e := NewEngine(fake, conf, zap.NewNop())

	// config 虚拟表直接从数据字典构造，不请求远端
	set := &types.RuleSet{
		DataDictionary: types.DataDictionary{"汇率": 7.2},
		SyncRules: []*types.SyncRule{{
			SourceTable: "config", TargetTable: "报表",
			SourceFields: []string{"汇率"}, TargetFields: []string{"当前汇率"},
			Aggregation: types.AggregationBroadcast, Factor: 1,
			Conditions: []types.Condition{{Field: "键名", Op: "=", Value: "汇率"}},
		}},
	}

	if err := e.Run(context.Background(), set); err != nil {
		t.Fatal(err)
	}
	if len(fake.lastUpdates) == 0 || fake.lastUpdates[0]["当前汇率"].(float64) != 7.2 {
		t.Fatalf("got updates %v", fake.lastUpdates)
	}
}
