package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"lab_lending_tool/db"
	"lab_lending_tool/logger"
	"lab_lending_tool/session"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	WA     *webauthn.WebAuthn
	Config Config

	Tokens   *session.Tokens
	Refresh  *session.RefreshStore
	Passkeys *session.PasskeyStore
	Idem     *session.IdempotencyStore
	Imports  *session.ImportStore
	Dash     *session.DashboardCache
}

// Config 从环境变量读取
type Config struct {
	Env               string
	Port              string
	RedisAddr         string
	RedisPwd          string
	WebOrigin         string
	RPID              string
	RPOrigins         []string
	JWTSecret         string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	PasskeyTTL        time.Duration
	ImportTTL         time.Duration
	DashboardTTL      time.Duration
	CollectionWindow  time.Duration
	SweepEvery        time.Duration
	LowStockThreshold int
	BootstrapRollNo   string
	BootstrapPassword string
}

func MustNew() *App {
	a, err := New(loadConfig())
	if err != nil {
		zap.L().Fatal("startup failed", zap.Error(err))
	}
	return a
}

func New(cfg Config) (*App, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	// --- DB: Postgres ---
	dbConn, err := db.ConnectDB()
	if err != nil {
		return nil, err
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	// --- WebAuthn RP ---
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Lab Components Passkeys",
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn: %w", err)
	}

	// --- Gin ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logger.RequestID(), logger.RequestLogger())
	useCORS(r, cfg.WebOrigin)
	if err := RegisterValidators(); err != nil {
		return nil, err
	}

	return &App{
		Router: r, DB: dbConn, RDB: rdb, WA: wa, Config: cfg,
		Tokens:   session.NewTokens(cfg.JWTSecret, cfg.AccessTTL),
		Refresh:  session.NewRefreshStore(rdb, cfg.RefreshTTL),
		Passkeys: session.NewPasskeyStore(rdb, cfg.PasskeyTTL),
		Idem:     session.NewIdempotencyStore(rdb, 24*time.Hour),
		Imports:  session.NewImportStore(rdb, cfg.ImportTTL),
		Dash:     session.NewDashboardCache(rdb, cfg.DashboardTTL),
	}, nil
}

func (a *App) Close() {
	_ = a.RDB.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func get(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getInt(k string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil && n > 0 {
		return n
	}
	return def
}

// EnvName 在 logger 初始化前就要用
func EnvName() string { return get("APP_ENV", "development") }

func loadConfig() Config {
	var origins []string
	for _, o := range strings.Split(get("RP_ORIGINS", "http://localhost:5173"), ",") {
		if s := strings.TrimSpace(o); s != "" {
			origins = append(origins, s)
		}
	}
	return Config{
		Env:               EnvName(),
		Port:              get("PORT", "3001"),
		RedisAddr:         get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:          os.Getenv("REDIS_PASSWORD"),
		WebOrigin:         get("WEB_ORIGIN", "http://localhost:5173"),
		RPID:              get("RP_ID", "localhost"),
		RPOrigins:         origins,
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AccessTTL:         time.Duration(getInt("ACCESS_TOKEN_TTL_MINUTES", 15)) * time.Minute,
		RefreshTTL:        time.Duration(getInt("REFRESH_TOKEN_TTL_HOURS", 7*24)) * time.Hour,
		PasskeyTTL:        5 * time.Minute,
		ImportTTL:         30 * time.Minute,
		DashboardTTL:      time.Minute,
		CollectionWindow:  time.Duration(getInt("COLLECTION_WINDOW_HOURS", 48)) * time.Hour,
		SweepEvery:        time.Duration(getInt("CLOSE_SWEEP_MINUTES", 10)) * time.Minute,
		LowStockThreshold: getInt("LOW_STOCK_THRESHOLD", 5),
		BootstrapRollNo:   os.Getenv("BOOTSTRAP_ADMIN_ROLLNO"),
		BootstrapPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
	}
}
