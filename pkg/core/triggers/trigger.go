package triggers

import (
	"context"
	"sync"

	"github.com/chenyu-w/seasync/pkg/types"
	"github.com/pkg/errors"
)

// TriggerConstructor 触发器构造函数
type TriggerConstructor func(conf interface{}, wg *sync.WaitGroup, ctx context.Context) (types.Trigger, error)

// 触发器构造函数集合
var (
	_triggers       = make(map[string]TriggerConstructor)
	_triggerConfigs = make(map[string]func() interface{})
)

var configAssertErr = errors.New("trigger config assert failed")

// ErrTriggerClosed 触发器已关闭，消费循环收到后直接退出
var ErrTriggerClosed = errors.New("trigger closed")

func init() {
	RegisterTriggerConstructor(types.TriggerTypeWeb, NewHttpTriggerFunc)
	RegisterTriggerConfigConstructor(types.TriggerTypeWeb, NewHttpTriggerConfigFunc)
	RegisterTriggerConstructor(types.TriggerTypeKafka, NewKafkaTriggerFunc)
	RegisterTriggerConfigConstructor(types.TriggerTypeKafka, NewKafkaTriggerConfigFunc)
}

// RegisterTriggerConstructor 注册触发器构造函数
func RegisterTriggerConstructor(name string, fn TriggerConstructor) {
	_triggers[name] = fn
}

// GetTriggerConstructor 获取触发器构造函数
func GetTriggerConstructor(name string) TriggerConstructor {
	return _triggers[name]
}

// RegisterTriggerConfigConstructor 注册触发器配置构造函数
func RegisterTriggerConfigConstructor(name string, fn func() interface{}) {
	_triggerConfigs[name] = fn
}

// GetTriggerConfigConstructor 获取触发器配置构造函数
func GetTriggerConfigConstructor(name string) func() interface{} {
	return _triggerConfigs[name]
}
