package app

import (
	"context"
	"errors"

	"lab_lending_tool/db"
	"lab_lending_tool/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BootstrapFirstAdmin 没有管理员时按 BOOTSTRAP_ADMIN_* 建一个
func BootstrapFirstAdmin(ctx context.Context, cfg Config, repo *db.Repo) {
	if cfg.BootstrapRollNo == "" || cfg.BootstrapPassword == "" {
		return
	}
	n, err := repo.CountAdmins(ctx)
	if err != nil {
		zap.L().Error("bootstrap: count admins failed", zap.Error(err))
		return
	}
	if n > 0 {
		return
	}

	u := &models.User{
		ID:       uuid.NewString(),
		RollNo:   cfg.BootstrapRollNo,
		Name:     "Administrator",
		Email:    cfg.BootstrapRollNo + "@bootstrap.local",
		IsAdmin:  true,
		IsActive: true,
	}
	if err := u.SetPassword(cfg.BootstrapPassword); err != nil {
		zap.L().Error("bootstrap: hash password failed", zap.Error(err))
		return
	}
	if err := repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			zap.L().Warn("bootstrap: roll number already taken by a non-admin user", zap.String("roll_no", cfg.BootstrapRollNo))
			return
		}
		zap.L().Error("bootstrap: create admin failed", zap.Error(err))
		return
	}
	zap.L().Info("bootstrap: first admin created", zap.String("roll_no", u.RollNo))
}
