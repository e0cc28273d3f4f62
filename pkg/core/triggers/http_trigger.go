package triggers

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenyu-w/seasync/pkg/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type (
	// HttpTrigger web 触发器，POST 请求触发一次同步运行
	HttpTrigger struct {
		conf     *HttpTriggerConfig
		srv      *http.Server
		wg       *sync.WaitGroup
		ctx      context.Context
		requests chan *types.RunRequest
		closed   int32
	}

	HttpTriggerConfig struct {
		Listen          string        `json:"listen" yaml:"listen" default:":8199"`                                        // 监听地址
		PushPath        string        `json:"push_path" yaml:"push_path" default:"/sync"`                                  // 触发请求路径
		PreRequestsLen  int32         `json:"pre_requests_len,omitempty" yaml:"pre_requests_len,omitempty" default:"10"`   // 请求管道缓冲长度
		PushTimeout     time.Duration `json:"push_timeout,omitempty" yaml:"push_timeout,omitempty" default:"1s"`           // 入队超时时间
	}
)

func NewHttpTriggerFunc(conf interface{}, wg *sync.WaitGroup, ctx context.Context) (types.Trigger, error) {
	config, ok := conf.(*HttpTriggerConfig)
	if !ok {
		return nil, configAssertErr
	}
	trigger := &HttpTrigger{
		requests: make(chan *types.RunRequest, config.PreRequestsLen),
		wg:       wg, ctx: ctx, conf: config,
	}

	engine := gin.Default()
	engine.POST(trigger.conf.PushPath, trigger.httpAcceptHandle)
	trigger.srv = &http.Server{Addr: trigger.conf.Listen, Handler: engine}
	wg.Add(1)
	go trigger.listen()

	return trigger, nil
}

func NewHttpTriggerConfigFunc() interface{} {
	return &HttpTriggerConfig{}
}

func (h *HttpTrigger) httpAcceptHandle(ctx *gin.Context) {
	request := new(types.RunRequest)
	// 请求体可为空，只触发默认规则文件的运行
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(request); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{
				"code": http.StatusBadRequest, "message": err.Error(),
			})
			return
		}
	}

	timeout, cancelFunc := context.WithTimeout(ctx.Request.Context(), h.conf.PushTimeout)
	defer cancelFunc()

	select {
	case <-h.ctx.Done():
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code": http.StatusInternalServerError, "message": "service closed",
		})
	case h.requests <- request:
		ctx.JSON(http.StatusAccepted, gin.H{
			"code": http.StatusAccepted,
		})
	case <-timeout.Done():
		ctx.JSON(http.StatusRequestTimeout, gin.H{
			"code": http.StatusRequestTimeout, "message": "timeout",
		})
	}
}

func (h *HttpTrigger) listen() {
	defer h.wg.Done()

	if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zap.L().Error("web 触发器监听失败", zap.Error(err))
	}
}

func (h *HttpTrigger) Read() (*types.RunRequest, error) {
	select {
	case <-h.ctx.Done():
		return nil, ErrTriggerClosed
	case request, ok := <-h.requests:
		if !ok {
			return nil, ErrTriggerClosed
		}
		return request, nil
	}
}

func (h *HttpTrigger) Complete(req *types.RunRequest) error {
	return nil
}

func (h *HttpTrigger) Close() error {
	if atomic.CompareAndSwapInt32(&h.closed, 0, 1) {
		timeout, cancelFunc := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancelFunc()

		return h.srv.Shutdown(timeout)
	}

	return nil
}
