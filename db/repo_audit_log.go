package db

import (
	"context"
	"fmt"
	"strings"

	"lab_lending_tool/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func lockForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// logAction 在调用方事务里写审计
func logAction(tx *gorm.DB, actor Actor, action, targetID string, reason *string) error {
	if reason != nil {
		if s := strings.TrimSpace(*reason); s == "" {
			reason = nil
		} else {
			reason = &s
		}
	}
	entry := &models.AuditLog{
		ActorRollNo: actor.RollNo,
		Action:      action,
		TargetID:    targetID,
		Reason:      reason,
	}
	if actor.ID != "" {
		id := actor.ID
		entry.ActorID = &id
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

type AuditQuery struct {
	Action   string
	ActorID  string
	TargetID string
	Page     int
	Size     int
}

type AuditPage struct {
	Items []models.AuditLog `json:"items"`
	Total int64             `json:"total"`
}

func (r *Repo) ListAuditLogs(ctx context.Context, q AuditQuery) (AuditPage, error) {
	page, size := clampPage(q.Page, q.Size)
	tx := r.DB.WithContext(ctx).Model(&models.AuditLog{})
	if q.Action != "" {
		tx = tx.Where("action = ?", q.Action)
	}
	if q.ActorID != "" {
		tx = tx.Where("actor_id = ?", q.ActorID)
	}
	if q.TargetID != "" {
		tx = tx.Where("target_id = ?", q.TargetID)
	}
	var out AuditPage
	if err := tx.Count(&out.Total).Error; err != nil {
		return AuditPage{}, err
	}
	if err := tx.Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&out.Items).Error; err != nil {
		return AuditPage{}, err
	}
	return out, nil
}
