package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Guardian/internal/auth"
	"Guardian/internal/dispatch"
	handlers "Guardian/internal/handler"
	"Guardian/internal/location"
	"Guardian/internal/models"
	"Guardian/internal/notify"
	"Guardian/internal/otp"
	"Guardian/internal/presence"
	"Guardian/internal/store"
	"Guardian/pkg/cache"
	"Guardian/pkg/config"
	"Guardian/pkg/grpcx"
	"Guardian/pkg/logger"
	"Guardian/pkg/metrics"
	"Guardian/pkg/middleware"
	"Guardian/pkg/notification"
	"Guardian/pkg/scheduler"
	"Guardian/pkg/sse"
	"Guardian/pkg/util"
	"Guardian/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		fmt.Printf("load config failed: %v\n", err)
		os.Exit(1)
	}
	cfg := config.GlobalConfig

	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		fmt.Printf("init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	db, err := util.InitDatabase(cfg.DBDriver, cfg.DSN, cfg.Mode == gin.DebugMode)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	users := store.NewUserStore(db)
	ensureAdminExists(users)

	codeCache, err := cache.NewCache(cache.Config{
		Type: cfg.CacheType,
		Redis: cache.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: "guardian:",
		},
	})
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer codeCache.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	hub := websocket.NewHub(websocket.LoadConfigFromEnv())
	defer hub.Close()
	stream := sse.NewHub(30 * time.Second)
	notifier := notify.Multi{notify.NewHubNotifier(hub, m), notify.NewStreamNotifier(stream)}

	registry := presence.NewRegistry(notifier)
	listener := presence.NewHubListener(registry, hub, m)
	listener.AutoSubscribe = map[string][]string{
		models.RoleOfficer: {notify.TopicSOS, notify.TopicOfficerStatus},
		models.RoleAdmin:   {notify.TopicSOS, notify.TopicOfficerStatus, notify.TopicOfficerLocations, notify.TopicIncidents},
	}
	hub.SetListener(listener)

	tracker := location.NewTracker(
		location.WithStore(store.NewLocationStore(db)),
		location.WithFreshness(cfg.LocationFreshness),
		location.WithMetrics(m),
	)
	ctx := context.Background()
	if n, err := tracker.Load(ctx); err != nil {
		logger.Warn("warm officer locations failed", zap.Error(err))
	} else {
		logger.Info("officer locations loaded", zap.Int("count", n))
	}

	dispatcher := dispatch.New(store.NewAlertStore(db), tracker, notifier,
		dispatch.WithRadius(cfg.AlertRadiusKm),
		dispatch.WithCacheSize(cfg.AlertCacheSize),
		dispatch.WithMetrics(m),
	)

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpire)
	if err != nil {
		return err
	}
	codes := otp.NewStore(codeCache, otp.WithValidity(cfg.OTPValidity), otp.WithMetrics(m))
	login := auth.NewLoginService(users, codes, notification.LogSMS{RevealCode: cfg.Mode != gin.ReleaseMode}, tokens)

	otpLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:       cfg.OTPRate,
		AddHeaders: true,
	}, nil).WithObserver(middleware.NewPrometheusObserver(reg))

	gin.SetMode(cfg.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	handlers.NewHandlers(handlers.Deps{
		DB:         db,
		Dispatcher: dispatcher,
		Tracker:    tracker,
		Presence:   registry,
		Login:      login,
		Tokens:     tokens,
		Hub:        hub,
		Notifier:   notifier,
		Metrics:    m,
		OTPLimiter: otpLimiter,
		Stream:     stream,
		APIPrefix:  cfg.APIPrefix,
	}).Register(engine)

	// background jobs
	cr := scheduler.NewCron(time.UTC)
	if _, err := cr.Add("prune-locations", cfg.LocationPruneSchedule, scheduler.FuncJob(func(ctx context.Context) {
		removed, err := tracker.Prune(ctx, time.Now().Add(-cfg.LocationRetention))
		if err != nil {
			logger.Warn("prune locations failed", zap.Error(err))
			return
		}
		logger.Info("officer locations pruned", zap.Int("removed", removed))
	})); err != nil {
		return fmt.Errorf("schedule prune: %w", err)
	}
	cr.Start()
	defer cr.Stop()

	jobs := scheduler.New()
	jobs.Every("refresh-gauges", 30*time.Second, true, scheduler.FuncJob(func(context.Context) {
		m.SetOfficersOnline(len(registry.OnlineOfficers()))
		m.SetAlertsInFlight(dispatcher.InFlight())
		m.SetLocationsTracked(tracker.Len())
	}))
	defer jobs.Stop()

	var grpcServer *grpcx.Server
	if cfg.GRPCAddr != "" {
		grpcServer = grpcx.NewServer(grpcx.ServerConfig{Addr: cfg.GRPCAddr, UnaryTimeout: 5 * time.Second})
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		grpcServer.SetServing("", true)
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("grpc server stopped", zap.Error(err))
			}
		}()
		logger.Info("grpc health server listening", zap.String("addr", cfg.GRPCAddr))
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if grpcServer != nil {
		grpcServer.SetServing("", false)
		grpcServer.Stop(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}

// ensureAdminExists 按环境变量创建初始管理员，便于首次登录
func ensureAdminExists(users *store.UserStore) {
	nationalID := util.GetEnv("ADMIN_NATIONAL_ID")
	if nationalID == "" {
		return
	}
	ctx := context.Background()
	if _, err := users.FindByNationalID(ctx, nationalID); err == nil {
		return
	}
	admin := &models.User{
		ID:         util.GetEnvOr("ADMIN_ID", "admin"),
		Name:       util.GetEnvOr("ADMIN_NAME", "Administrator"),
		Phone:      util.GetEnv("ADMIN_PHONE"),
		Role:       models.RoleAdmin,
		NationalID: nationalID,
	}
	if err := users.Save(ctx, admin); err != nil {
		logger.Warn("create admin failed", zap.Error(err))
		return
	}
	logger.Info("admin account created", zap.String("id", admin.ID))
}
