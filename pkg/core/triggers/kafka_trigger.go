package triggers

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenyu-w/seasync/pkg/types"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

type (
	// KafkaTrigger kafka 触发器，消费消息触发同步运行
	KafkaTrigger struct {
		conf   *KafkaTriggerConfig
		kr     *kafka.Reader
		ctx    context.Context
		closed int32
	}

	KafkaTriggerConfig struct {
		Brokers        []string      `json:"brokers" yaml:"brokers" default:"localhost:9092"`
		Username       string        `json:"username,omitempty" yaml:"username,omitempty"`
		Password       string        `json:"password,omitempty" yaml:"password,omitempty"`
		Group          string        `json:"group" yaml:"group" default:"seasync"`
		Topic          string        `json:"topic" yaml:"topic" default:"sync-requests"`
		MinBytes       int           `json:"min_bytes,omitempty" yaml:"min_bytes,omitempty" default:"10240"`
		MaxBytes       int           `json:"max_bytes,omitempty" yaml:"max_bytes,omitempty" default:"10485760"`
		MaxWait        time.Duration `json:"max_wait,omitempty" yaml:"max_wait,omitempty" default:"1s"`
		CommitInterval time.Duration `json:"commit_interval,omitempty" yaml:"commit_interval,omitempty" default:"1s"`
	}
)

func NewKafkaTriggerFunc(conf interface{}, wg *sync.WaitGroup, ctx context.Context) (types.Trigger, error) {
	config, ok := conf.(*KafkaTriggerConfig)
	if !ok {
		return nil, configAssertErr
	}

	var dialer *kafka.Dialer
	if config.Username != "" && config.Password != "" {
		dialer = &kafka.Dialer{SASLMechanism: plain.Mechanism{
			Username: config.Username, Password: config.Password,
		}}
	}

	return &KafkaTrigger{
		conf: config, ctx: ctx,
		kr: kafka.NewReader(kafka.ReaderConfig{
			Brokers: config.Brokers, GroupID: config.Group, Topic: config.Topic,
			MinBytes: config.MinBytes, MaxBytes: config.MaxBytes,
			MaxWait: config.MaxWait, CommitInterval: config.CommitInterval,
			Dialer: dialer,
		}),
	}, nil
}

func NewKafkaTriggerConfigFunc() interface{} {
	return &KafkaTriggerConfig{}
}

func (k *KafkaTrigger) Read() (*types.RunRequest, error) {
	message, err := k.kr.FetchMessage(k.ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	request := new(types.RunRequest)
	// 空消息体触发默认规则文件的运行
	if len(message.Value) > 0 {
		if err := json.Unmarshal(message.Value, request); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	request.Source = message

	return request, nil
}

func (k *KafkaTrigger) Complete(req *types.RunRequest) error {
	message, ok := req.Source.(kafka.Message)
	if !ok {
		return nil
	}

	return errors.WithStack(k.kr.CommitMessages(k.ctx, message))
}

func (k *KafkaTrigger) Close() error {
	if atomic.CompareAndSwapInt32(&k.closed, 0, 1) {
		return k.kr.Close()
	}

	return nil
}
