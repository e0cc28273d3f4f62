package configs

import (
	"io/ioutil"
	"time"

	"github.com/chenyu-w/seasync/pkg/core/adapters"
	"github.com/chenyu-w/seasync/pkg/core/triggers"
	"github.com/chenyu-w/seasync/pkg/tools"
	"github.com/chenyu-w/seasync/pkg/types"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type (
	// Config 服务配置
	Config struct {
		Engine    *EngineConfig           `json:"engine" yaml:"engine"`                         // 引擎参数
		Adapter   *adapters.AdapterConfig `json:"adapter" yaml:"adapter"`                       // 远端表存储连接
		Redis     *RedisConfig            `json:"redis,omitempty" yaml:"redis,omitempty"`       // 可选，跨进程运行锁
		Triggers  []*TriggerConfig        `json:"triggers,omitempty" yaml:"triggers,omitempty"` // 触发器，为空时单次运行
		RulesFile string                  `json:"rules_file" yaml:"rules_file" default:"config/sync_rules.json"`
	}

	// EngineConfig 同步引擎参数
	EngineConfig struct {
		MaxConcurrentLoads  int           `json:"max_concurrent_loads" yaml:"max_concurrent_loads" default:"10"`    // 表加载并发上限
		MaxConcurrentTables int           `json:"max_concurrent_tables" yaml:"max_concurrent_tables" default:"3"`   // 表操作执行并发上限
		MaxRetries          int           `json:"max_retries" yaml:"max_retries" default:"3"`                       // 更新/插入重试次数
		BatchInterval       time.Duration `json:"batch_interval" yaml:"batch_interval" default:"200ms"`             // 批次之间的限速间隔
		DefaultView         string        `json:"default_view" yaml:"default_view" default:"默认视图"`               // 读取行数据的默认视图
		RematchKeyFields    []string      `json:"rematch_key_fields" yaml:"rematch_key_fields" default:"合同编号,预算编号,项目编号,项目名称"` // 行标识失效后重匹配的业务主键
	}

	RedisConfig struct {
		Addr       string        `json:"addr" yaml:"addr" default:"localhost:6379"`
		DB         int           `json:"db,omitempty" yaml:"db,omitempty"`
		Password   string        `json:"password,omitempty" yaml:"password,omitempty"`
		LockExpiry time.Duration `json:"lock_expiry,omitempty" yaml:"lock_expiry,omitempty" default:"10m"` // 运行锁过期时间
	}

	// TriggerConfig 触发器配置，params 按 name 解析为对应触发器的配置类型
	TriggerConfig struct {
		Name   string      `json:"name" yaml:"name" default:"web"`
		Params interface{} `json:"params" yaml:"params"`
	}

	innerTriggerConfig TriggerConfig
)

func (c *TriggerConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var innerConfig innerTriggerConfig
	if err := unmarshal(&innerConfig); err != nil {
		return err
	}
	configConstructor := triggers.GetTriggerConfigConstructor(innerConfig.Name)
	if configConstructor == nil {
		return errors.Errorf("undefined trigger type %s", innerConfig.Name)
	}

	params := configConstructor()
	paramsData, err := yaml.Marshal(innerConfig.Params)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(paramsData, params); err != nil {
		return err
	}
	if err := tools.BuildDefault(params); err != nil {
		return err
	}
	c.Name, c.Params = innerConfig.Name, params

	return nil
}

// NewEngineConfig 全默认值的引擎配置
func NewEngineConfig() *EngineConfig {
	conf := &EngineConfig{}
	if err := tools.BuildDefault(conf); err != nil {
		panic(err)
	}

	return conf
}

// Load 读取并解析服务配置文件
func Load(path string) (*Config, error) {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	conf := &Config{}
	if err := tools.UnmarshalYamlAndBuildDefault(content, conf); err != nil {
		return nil, errors.WithStack(err)
	}

	if conf.Engine == nil {
		conf.Engine = NewEngineConfig()
	}
	if conf.Adapter == nil {
		return nil, errors.New("config requires adapter")
	}

	return conf, nil
}

// LoadRuleSet 读取并解析同步规则集文档
func LoadRuleSet(path string) (*types.RuleSet, error) {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	set := &types.RuleSet{}
	if err := tools.UnmarshalJsonAndBuildDefault(content, set); err != nil {
		return nil, errors.WithStack(err)
	}
	if len(set.SyncRules) == 0 {
		return nil, errors.Errorf("no sync rules found in %s", path)
	}

	return set, nil
}
