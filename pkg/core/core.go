package core

import (
	"context"
	"sync"

	engine "github.com/chenyu-w/seasync/internal/core"
	"github.com/chenyu-w/seasync/pkg/configs"
	"github.com/chenyu-w/seasync/pkg/core/triggers"
	"github.com/chenyu-w/seasync/pkg/tools"
	"github.com/chenyu-w/seasync/pkg/tools/logs"
	"github.com/chenyu-w/seasync/pkg/types"
	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Service 同步服务，串联配置、适配器、触发器和同步引擎
// 配置了触发器时常驻消费运行请求，否则执行单次同步后退出
type Service struct {
	conf       *configs.Config
	adapter    types.TableAdapter
	logger     *zap.Logger
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         *sync.WaitGroup
	runner     *triggers.Runner
	ts         []types.Trigger
	redisCli   *redis.Client
	rs         *redsync.Redsync
	runMux     sync.Mutex // 同进程内的运行互斥，跨进程靠 redis 锁
}

const runLockKey = "seasync:run:lock"

func NewService(conf *configs.Config, adapter types.TableAdapter, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.L()
	}

	ctx, cancelFunc := context.WithCancel(context.Background())
	s := &Service{
		conf: conf, adapter: adapter, logger: logger,
		ctx: ctx, cancelFunc: cancelFunc, wg: new(sync.WaitGroup),
	}

	if conf.Redis != nil {
		s.redisCli = redis.NewClient(&redis.Options{
			Addr: conf.Redis.Addr, DB: conf.Redis.DB,
			Password: conf.Redis.Password,
		})
		s.rs = redsync.New(goredis.NewPool(s.redisCli))
	}

	for _, tc := range conf.Triggers {
		constructor := triggers.GetTriggerConstructor(tc.Name)
		if constructor == nil {
			cancelFunc()
			return nil, errors.Errorf("undefined trigger type %s", tc.Name)
		}
		trigger, err := constructor(tc.Params, s.wg, ctx)
		if err != nil {
			cancelFunc()
			return nil, err
		}
		s.ts = append(s.ts, trigger)
	}

	return s, nil
}

// Run 服务主入口，有触发器时阻塞直到 Stop
func (s *Service) Run() error {
	if len(s.ts) == 0 {
		defer s.cancelFunc()
		return s.runOnce(s.ctx, &types.RunRequest{})
	}

	s.runner = triggers.NewRunner(s.ctx)
	for _, trigger := range s.ts {
		s.runner.RunWorker(s.listen(trigger))
	}
	s.logger.Info("同步服务已启动", zap.Int("triggers", len(s.ts)))
	<-s.ctx.Done()

	return nil
}

// listen 单个触发器的消费循环, 交由 runners.Runner 守护执行
func (s *Service) listen(trigger types.Trigger) func(ctx context.Context) {
	return func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				req, err := trigger.Read()
				if errors.Is(err, triggers.ErrTriggerClosed) || errors.Is(err, context.Canceled) {
					s.logger.Info("触发器已关闭")
					return
				} else if err != nil {
					s.logger.Error("读取运行请求失败", logs.ParseErr(err)...)
					continue
				}

				if err := s.runOnce(ctx, req); err != nil {
					s.logger.Error("同步运行失败", logs.ParseErr(err)...)
				}
				// 同步运行幂等，失败的请求同样提交回执，避免坏请求反复投递
				if err := trigger.Complete(req); err != nil {
					s.logger.Error("提交运行请求失败", logs.ParseErr(err)...)
				}
			}
		}
	}
}

// runOnce 执行一次完整同步，请求可以覆盖默认的规则文件
func (s *Service) runOnce(ctx context.Context, req *types.RunRequest) error {
	s.runMux.Lock()
	defer s.runMux.Unlock()

	rulesFile := req.RulesFile
	if rulesFile == "" {
		rulesFile = s.conf.RulesFile
	}
	set, err := configs.LoadRuleSet(rulesFile)
	if err != nil {
		return err
	}

	if s.rs != nil {
		// 不同规则文件的运行互不阻塞，按文件维度加锁
		lockKey := runLockKey + ":" + tools.Hash32(rulesFile)
		mutex := s.rs.NewMutex(lockKey, redsync.WithExpiry(s.conf.Redis.LockExpiry))
		if err := mutex.LockContext(ctx); err != nil {
			return errors.WithStack(err)
		}
		defer func() {
			if _, err := mutex.Unlock(); err != nil {
				s.logger.Error("redis 解锁失败", zap.Error(err), zap.String("key", lockKey))
			}
		}()
	}

	s.logger.Info("开始同步", zap.String("rules_file", rulesFile),
		zap.Int("rules", len(set.SyncRules)))
	eng := engine.NewEngine(s.adapter, s.conf.Engine, s.logger)

	return eng.Run(ctx, set)
}

// Stop 关闭触发器并等待消费循环退出
func (s *Service) Stop() {
	s.cancelFunc()
	for _, trigger := range s.ts {
		if err := trigger.Close(); err != nil {
			s.logger.Error("关闭触发器失败", logs.ParseErr(err)...)
		}
	}
	if s.runner != nil {
		s.runner.Stop()
	}
	s.wg.Wait()
	if s.redisCli != nil {
		if err := s.redisCli.Close(); err != nil {
			s.logger.Error("关闭 redis 连接失败", zap.Error(err))
		}
	}
}
