package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"livescore/internal/livescore/api"
	"livescore/internal/livescore/bridge"
	"livescore/internal/livescore/bus"
	"livescore/internal/livescore/fetcher"
	"livescore/internal/livescore/helper"
	"livescore/internal/livescore/hub"
	"livescore/internal/livescore/model"
	"livescore/internal/livescore/monitor"
	"livescore/internal/livescore/notifier"
	"livescore/internal/livescore/processor"
	"livescore/internal/livescore/reconciler"
	"livescore/internal/livescore/scheduler"
	"livescore/internal/livescore/store"
	"livescore/internal/livescore/validator"
	"livescore/internal/middleware/logger"
	"livescore/pkg/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, *configPath)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "livescore:", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled or the HTTP
// server fails. Components started before a failing step are stopped on return.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func(log *zap.Logger) {
		_ = log.Sync()
	}(log)

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	log.Info("Starting livescore service...", zap.String("config", configPath))
	defer log.Info("Livescore service stopped")

	// 1) 存储：mongo 或内存
	var (
		matches store.MatchStore
		jobs    store.JobStore
	)
	switch cfg.Store.Driver {
	case "memory":
		matches, jobs = store.NewMemoryMatchStore(), store.NewMemoryJobStore()
	default:
		stores, err := helper.ConnectMongo(ctx,
			cfg.Mongo.Host,
			cfg.Mongo.DBName,
			cfg.Mongo.Username,
			cfg.Mongo.Password,
			cfg.Mongo.AuthSource,
		)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := stores.Close(closeCtx); err != nil {
				log.Warn("Mongo disconnect failed", zap.Error(err))
			}
		}()
		matches, jobs = store.NewMongoMatchStore(stores.Matches), store.NewMongoJobStore(stores.CrawlJobs)
	}

	// 2) 消息总线：redis 或进程内
	var b bus.Bus
	switch cfg.Bus.Driver {
	case "memory":
		b = bus.NewLocal(cfg.Bus.Buffer)
	default:
		rb := bus.NewRedis(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rb.Close() }()
		if err := rb.Ping(ctx); err != nil {
			return fmt.Errorf("redis %s unreachable: %w", cfg.Redis.Addr, err)
		}
		b = rb
	}

	// 3) 实时推送：hub + bridge
	h := hub.New(log.Named("hub"))
	h.SendTimeout = cfg.Hub.SendTimeout
	br := bridge.New(log.Named("bridge"), b, h)
	if err := br.Start(ctx); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}
	defer br.Stop()

	// 4) 抓取流水线
	f, err := fetcher.New(cfg.Fetcher, log.Named("fetcher"))
	if err != nil {
		return err
	}
	if c, ok := f.(interface{ Close() }); ok {
		defer c.Close()
	}
	svc := reconciler.NewService(log.Named("reconciler"), matches)
	proc := processor.NewProcessor(log.Named("processor"),
		f,
		validator.New(log.Named("validator")),
		svc,
		notifier.New(log.Named("notifier"), b),
	)
	proc.RefreshLimit = cfg.Scheduler.RefreshLimit

	// 5) 定时任务
	mon := monitor.NewJobMonitor(log.Named("monitor"), jobs, monitor.NewMetrics())
	worker := scheduler.New(log.Named("scheduler"), mon)
	worker.HardTimeout = cfg.Scheduler.HardTimeout
	worker.SoftTimeout = cfg.Scheduler.SoftTimeout
	worker.MaxAttempts = cfg.Scheduler.MaxAttempts
	worker.RetryBase = cfg.Scheduler.RetryBase

	tasks := []struct {
		name string
		cfg  config.TaskConfig
		run  func(context.Context) (model.CrawlResult, error)
	}{
		{"crawl_live_scores", cfg.Scheduler.LiveScores, proc.RefreshMatches},
		{"crawl_match_events", cfg.Scheduler.MatchEvents, proc.RefreshEvents},
		{"crawl_daily_fixtures", cfg.Scheduler.Fixtures, func(ctx context.Context) (model.CrawlResult, error) {
			return proc.SyncFixtures(ctx, cfg.Scheduler.DaysAhead)
		}},
	}
	for _, t := range tasks {
		if t.cfg.Disabled {
			log.Info("Task disabled", zap.String("task", t.name))
			continue
		}
		params := map[string]any{"spec": t.cfg.Spec}
		if t.name == "crawl_daily_fixtures" {
			params["days_ahead"] = cfg.Scheduler.DaysAhead
		}
		if err := worker.Add(scheduler.Task{Name: t.name, Spec: t.cfg.Spec, Params: params, Run: t.run}); err != nil {
			return err
		}
	}

	var runner api.TaskRunner
	if !cfg.Scheduler.Disabled {
		worker.Start(ctx)
		defer worker.Stop()
		runner = worker
	}

	// 6) HTTP API
	srv := &api.Server{
		Log:            log.Named("api"),
		Matches:        svc,
		Hub:            h,
		Monitor:        mon,
		Tasks:          runner,
		PProf:          cfg.Server.PProf,
		OriginPatterns: cfg.Server.WSOrigins,
	}
	r := srv.Router()
	_ = r.SetTrustedProxies(nil)

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	httpSrv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// 升级后的 /ws 连接不受 Shutdown 管理，随 ctx 一起结束
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("Livescore service is running", zap.String("address", ln.Addr().String()))
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		log.Error("HTTP server failed", zap.Error(err))
	}
	log.Info("Shutting down...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(serr))
	}
	// 其余组件由 defer 按启动的逆序停止
	return err
}
