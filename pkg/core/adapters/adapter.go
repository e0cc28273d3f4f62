package adapters

import (
	"github.com/chenyu-w/seasync/pkg/types"
	"github.com/pkg/errors"
)

type (
	// AdapterConfig 远端表存储连接配置
	AdapterConfig struct {
		Type      string `json:"type" yaml:"type" default:"seatable"`            // seatable|mysql|es
		ServerURL string `json:"server_url,omitempty" yaml:"server_url,omitempty"` // seatable 服务地址 / es 地址
		APIToken  string `json:"api_token,omitempty" yaml:"api_token,omitempty"`   // seatable base 的 api token
		DSN       string `json:"dsn,omitempty" yaml:"dsn,omitempty"`               // mysql 连接串
		Username  string `json:"username,omitempty" yaml:"username,omitempty"`
		Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	}

	// AdapterConstructor 适配器构造函数
	AdapterConstructor func(conf *AdapterConfig) (types.TableAdapter, error)
)

var _adapterConstructors = make(map[string]AdapterConstructor) // 适配器构造函数 映射表

func init() {
	SetAdapterConstructor(types.AdapterTypeSeaTable, NewSeaTableAdapter)
	SetAdapterConstructor(types.AdapterTypeMysql, NewMysqlAdapter)
	SetAdapterConstructor(types.AdapterTypeElasticSearch, NewElasticSearchAdapter)
}

// SetAdapterConstructor 注册适配器构造函数
func SetAdapterConstructor(name string, fn AdapterConstructor) {
	_adapterConstructors[name] = fn
}

// New 按配置类型构造适配器
func New(conf *AdapterConfig) (types.TableAdapter, error) {
	constructor, ok := _adapterConstructors[conf.Type]
	if !ok {
		return nil, errors.Errorf("undefined adapter type %s", conf.Type)
	}

	return constructor(conf)
}
