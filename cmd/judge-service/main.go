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

	"github.com/Majnu04/doflow-sub001/internal/common/cache"
	"github.com/Majnu04/doflow-sub001/internal/common/db"
	commonmw "github.com/Majnu04/doflow-sub001/internal/common/http/middleware"
	"github.com/Majnu04/doflow-sub001/internal/common/mq"
	"github.com/Majnu04/doflow-sub001/internal/common/storage"
	"github.com/Majnu04/doflow-sub001/internal/judge/controller"
	"github.com/Majnu04/doflow-sub001/internal/judge/harness"
	"github.com/Majnu04/doflow-sub001/internal/judge/pool"
	"github.com/Majnu04/doflow-sub001/internal/judge/repository"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/config"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/engine"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/initproc"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/language"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/observer"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/runner"
	"github.com/Majnu04/doflow-sub001/internal/judge/service"
	"github.com/Majnu04/doflow-sub001/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	initproc.MaybeReexec()

	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()
	mysqlDB, err := db.NewMySQLWithConfig(ctx, &appCfg.Database)
	if err != nil {
		logger.Error(ctx, "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()
	checks := map[string]controller.HealthCheck{"mysql": mysqlDB.Ping}

	// Interfaces stay nil when a dependency is disabled so repositories fall back cleanly.
	var cacheClient cache.Cache
	if appCfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCacheWithConfig(ctx, &appCfg.Redis)
		if err != nil {
			logger.Error(ctx, "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = redisCache.Close()
		}()
		cacheClient = redisCache
		checks["redis"] = redisCache.Ping
	} else {
		logger.Warn(ctx, "redis disabled, caching and run rate limit are off")
	}

	var archive service.Archiver
	if appCfg.Archive.Enabled {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(ctx, "init minio failed", zap.Error(err))
			return
		}
		if err := objStorage.EnsureBucket(ctx, appCfg.Archive.Bucket); err != nil {
			logger.Error(ctx, "ensure archive bucket failed", zap.String("bucket", appCfg.Archive.Bucket), zap.Error(err))
			return
		}
		archive = repository.NewArtifactArchive(objStorage, appCfg.Archive.Bucket)
	}

	var events repository.StatusEventPublisher
	if len(appCfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka.toMQConfig())
		if err != nil {
			logger.Error(ctx, "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = producer.Close()
		}()
		events = repository.NewMQStatusEventPublisher(producer, appCfg.Status.FinalTopic)
		checks["kafka"] = producer.Ping
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observer.NewPrometheus(reg)
	if err != nil {
		logger.Error(ctx, "init metrics failed", zap.Error(err))
		return
	}

	languages := language.NewDefaultRegistry()
	if err := languages.Configure(appCfg.Language.Languages); err != nil {
		logger.Error(ctx, "configure languages failed", zap.Error(err))
		return
	}

	executor, err := buildExecutor(appCfg, metrics)
	if err != nil {
		logger.Error(ctx, "init executor failed", zap.Error(err))
		return
	}

	svcCfg := service.Config{
		Executor:          executor,
		Languages:         languages,
		Problems:          repository.NewProblemRepository(mysqlDB, cacheClient),
		Submissions:       repository.NewSubmissionRepository(mysqlDB, cacheClient),
		Events:            events,
		Archive:           archive,
		MaxCodeBytes:      appCfg.Judge.MaxCodeBytes,
		MaxTestCases:      appCfg.Judge.MaxTestCases,
		MaxInputBytes:     appCfg.Judge.MaxInputBytes,
		SideEffectTimeout: appCfg.Status.Timeout,
	}
	if cacheClient != nil {
		svcCfg.Status = repository.NewStatusRepository(cacheClient, appCfg.Status.TTL)
	}
	if cacheClient != nil && appCfg.Judge.RunLimit.Max > 0 {
		svcCfg.Limiter = repository.NewRunLimiter(cacheClient, appCfg.Judge.RunLimit.Max, appCfg.Judge.RunLimit.Window, appCfg.Status.Timeout)
	}
	judgeSvc, err := service.NewService(svcCfg)
	if err != nil {
		logger.Error(ctx, "init judge service failed", zap.Error(err))
		return
	}

	httpServer := buildHTTPServer(appCfg, judgeSvc, controller.NewHealthController(checks, languages.IDs), reg)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.Strings("languages", languages.IDs()),
			zap.Int("slots", appCfg.Worker.PoolSize),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	// In-flight submissions finish and persist before the listener is torn down.
	timeout := defaultShutdownTimeout
	if appCfg.Judge.SubmissionBudget > timeout {
		timeout = appCfg.Judge.SubmissionBudget
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(stopCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
}

func buildExecutor(appCfg *AppConfig, metrics *observer.Prometheus) (*harness.Harness, error) {
	if err := os.MkdirAll(appCfg.Judge.WorkRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create work root failed: %w", err)
	}
	profiles := config.NewLocalRepository(appCfg.Language.Profiles)
	engCfg := appCfg.Sandbox.toEngineConfig()
	if engCfg.HelperPath == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve sandbox helper failed: %w", err)
		}
		engCfg.HelperPath = self
		engCfg.HelperArgs = []string{initproc.ReexecArg}
	}
	eng, err := engine.NewEngine(engCfg, profiles)
	if err != nil {
		return nil, err
	}
	jobRunner, err := runner.NewRunnerWithObserver(appCfg.toRunnerConfig(), eng, profiles, metrics)
	if err != nil {
		return nil, err
	}
	slots := pool.New(appCfg.Worker.toPoolConfig(), metrics)
	return harness.New(appCfg.Judge.toHarnessConfig(), jobRunner, slots)
}

func buildHTTPServer(appCfg *AppConfig, svc controller.JudgeService, health *controller.HealthController, reg *prometheus.Registry) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddlewareWithConfig(commonmw.TraceContextConfig{
		AllowUserIDHeader: !appCfg.Auth.Enabled,
		WriteUserIDHeader: true,
	}))
	router.Use(requestLogger())

	router.GET("/healthz", health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1/submissions")
	if appCfg.Auth.Enabled {
		authCfg := appCfg.Auth.toMiddlewareConfig()
		api.Use(commonmw.AuthMiddleware(commonmw.NewTokenVerifier(authCfg.Secret, authCfg.Issuer)))
	}
	judgeController := controller.NewJudgeController(svc)
	api.POST("/run", judgeController.Run)
	api.POST("/submit", judgeController.Submit)
	api.GET("/:id", judgeController.GetSubmission)

	return &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
