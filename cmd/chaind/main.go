package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/powchain/internal/auth"
	"github.com/jmerrifield20/powchain/internal/chain/audit"
	"github.com/jmerrifield20/powchain/internal/chain/handler"
	"github.com/jmerrifield20/powchain/internal/chain/service"
	"github.com/jmerrifield20/powchain/internal/ledger"
	"github.com/jmerrifield20/powchain/internal/pow"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("chaind exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("chaind")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("node.port", 8080)
	viper.SetDefault("node.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("node.rate_limit_rps", 20)
	viper.SetDefault("chain.difficulty", 2)
	viper.SetDefault("chain.block_reward", 10)
	viper.SetDefault("chain.clock", "counter")
	viper.SetDefault("chain.max_pending", 10000)
	viper.SetDefault("mining.workers", 1)
	viper.SetDefault("mining.max_attempts", 0)
	viper.SetDefault("mining.timeout", "60s")
	viper.SetDefault("mining.auto_interval", "0s")
	viper.SetDefault("mining.miner_address", "")
	viper.SetDefault("audit.interval", "1m")
	viper.SetDefault("auth.operator_secret", "")
	viper.SetDefault("auth.issuer", "chaind")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Miner + Ledger ───────────────────────────────────────────────────────
	clock, ok := ledger.ClockByName(viper.GetString("chain.clock"))
	if !ok {
		return fmt.Errorf("unknown chain.clock %q (want counter or unix)", viper.GetString("chain.clock"))
	}

	miner := pow.NewMiner(
		pow.WithWorkers(viper.GetInt("mining.workers")),
		pow.WithMaxAttempts(viper.GetUint64("mining.max_attempts")),
		pow.WithLogger(logger),
		pow.WithObserver(handler.RecordMining),
	)

	difficulty := viper.GetInt("chain.difficulty")
	chain, err := ledger.New(ctx, miner, difficulty,
		ledger.WithClock(clock),
		ledger.WithLogger(logger),
		ledger.WithAppendHook(handler.RecordBlockAppended),
	)
	if err != nil {
		return fmt.Errorf("create genesis block: %w", err)
	}
	tip, _ := chain.Tip(ctx)
	logger.Info("genesis block mined",
		zap.Int("difficulty", difficulty),
		zap.String("digest", tip.String()),
		zap.Int("workers", miner.Workers()),
	)

	// ── Service ──────────────────────────────────────────────────────────────
	svc := service.New(chain, service.Config{
		BlockReward:   viper.GetInt64("chain.block_reward"),
		MaxPending:    viper.GetInt("chain.max_pending"),
		MiningTimeout: viper.GetDuration("mining.timeout"),
	}, logger)
	svc.SetPendingRecord(handler.SetPendingGauge)

	// ── Operator tokens ──────────────────────────────────────────────────────
	var tokens *auth.TokenIssuer
	if secret := viper.GetString("auth.operator_secret"); secret != "" {
		tokens, err = auth.NewTokenIssuer(secret, viper.GetString("auth.issuer"), 0)
		if err != nil {
			return fmt.Errorf("token issuer: %w", err)
		}
		logger.Info("operator token auth enabled")
	} else {
		logger.Warn("auth.operator_secret not set, write endpoints are open")
	}

	// ── Handlers ─────────────────────────────────────────────────────────────
	chainHandler := handler.NewChainHandler(svc, logger)
	chainHandler.SetDefaultMiner(viper.GetString("mining.miner_address"))
	txHandler := handler.NewTransactionHandler(svc, logger)

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS
	corsOrigins := viper.GetStringSlice("node.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", handler.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", handler.RequestIDHeader},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.Use(handler.SecurityHeaders())
	router.Use(handler.BodyLimit(1 << 20))

	// Per-IP rate limiting
	if rps := viper.GetInt("node.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(ctx, rps, rps*2))
	}

	router.Use(handler.RequestID())
	router.Use(handler.PrometheusMiddleware())
	router.Use(handler.RequestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	chainHandler.Register(v1, tokens)
	txHandler.Register(v1, tokens)

	// ── Background: chain audit ──────────────────────────────────────────────
	auditor := audit.New(chain, audit.Config{Interval: viper.GetDuration("audit.interval")}, logger)
	auditor.SetMetricsRecord(handler.RecordAudit)
	auditor.Run(ctx)
	auditQuit := make(chan os.Signal, 1)
	go auditor.Start(auditQuit)

	// ── Background: auto-mining ──────────────────────────────────────────────
	if interval := viper.GetDuration("mining.auto_interval"); interval > 0 {
		addr := viper.GetString("mining.miner_address")
		if addr == "" {
			return errors.New("mining.auto_interval requires mining.miner_address")
		}
		go svc.AutoMine(ctx, interval, addr)
		logger.Info("auto-mining enabled", zap.Duration("interval", interval), zap.String("miner", addr))
	}

	httpPort := viper.GetInt("node.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("chaind HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutting down chaind...")
	auditQuit <- syscall.SIGTERM

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("chaind stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
