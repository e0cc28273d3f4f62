package triggers

import (
	"context"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Runner 触发器消费循环的守护执行器
// 拦截消费循环的 panic 并重新拉起，短时间内频繁崩溃则整体停止
type Runner struct {
	wg                  *sync.WaitGroup
	ctx                 context.Context
	cancelFunc          context.CancelFunc
	timePeriodFailedNum int32
	panicChan           chan struct{}
}

const failedNumCheckInterval = 300 * time.Second
const maxFailedNum = 10

func NewRunner(parent context.Context) *Runner {
	ctx, cancelFunc := context.WithCancel(parent)

	r := &Runner{
		wg: new(sync.WaitGroup), ctx: ctx, cancelFunc: cancelFunc,
		panicChan: make(chan struct{}, maxFailedNum),
	}

	r.wg.Add(1)
	go r.listenPeriodFailedNum()

	return r
}

// RunWorker 单独拉起协程执行函数，拦截 panic 后重新启动
// 执行函数一般都是阻塞的消费循环
func (r *Runner) RunWorker(fns ...func(ctx context.Context)) {
	for _, fn := range fns {
		r.wg.Add(1)
		go r.runWorkerFunc(fn)
	}
}

func (r *Runner) runWorkerFunc(fn func(ctx context.Context)) {
	defer r.runWorkerRecover(fn)
	fn(r.ctx)
}

// runWorkerRecover RunWorker 运行时 panic 处理方法
func (r *Runner) runWorkerRecover(fn func(ctx context.Context)) {
	defer r.wg.Done()

	if err := recover(); err != nil {
		funcName := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
		zap.L().Error("trigger run worker recover:", zap.String("func", funcName),
			zap.Error(errors.WithStack(errors.Errorf("%v", err))))

		select {
		case r.panicChan <- struct{}{}:
			r.RunWorker(fn)
		default:
			// Stop 流程中管道可能已满，任务直接放弃
			return
		}
	}
}

func (r *Runner) listenPeriodFailedNum() {
	defer r.wg.Done()
	ticker := time.NewTicker(failedNumCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// 定时检查时间段内 panic 是否超过最大限制，未超过则清零
			if atomic.LoadInt32(&r.timePeriodFailedNum) >= maxFailedNum {
				r.cancelFunc()
				return
			}
			atomic.StoreInt32(&r.timePeriodFailedNum, 0)
		case <-r.panicChan:
			if atomic.AddInt32(&r.timePeriodFailedNum, 1) >= maxFailedNum {
				r.cancelFunc()
				return
			}
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
}
