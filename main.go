package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"lab_lending_tool/app"
	"lab_lending_tool/config"
	"lab_lending_tool/db"
	"lab_lending_tool/logger"
	"lab_lending_tool/routes"
	"lab_lending_tool/session"
	"lab_lending_tool/worker"

	"go.uber.org/zap"
)

func main() {
	envErr := config.LoadEnv()
	flush := logger.Init(app.EnvName())
	defer flush()
	if envErr != nil {
		zap.L().Info("no env file loaded, using process environment", zap.Error(envErr))
	}

	application := app.MustNew()
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := db.NewRepo(application.DB)
	app.BootstrapFirstAdmin(ctx, application.Config, repo)
	routes.RegisterRoutes(application.Router, application)

	// 48 小时未领取自动关闭
	cfg := application.Config
	closer := worker.NewCloser(repo, session.NewLock(application.RDB, "collection-sweep", 5*time.Minute), cfg.CollectionWindow, cfg.SweepEvery)
	closer.OnClosed = func(ctx context.Context, _ int) { application.Dash.Invalidate(ctx) }
	go closer.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zap.L().Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zap.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("graceful shutdown failed", zap.Error(err))
	}
}
