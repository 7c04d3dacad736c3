package db

import (
	"context"
	"time"

	"lab_lending_tool/ledger"
	"lab_lending_tool/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (r *Repo) GetReIssue(ctx context.Context, id string) (*models.ReIssue, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	var ri models.ReIssue
	if err := r.DB.WithContext(ctx).First(&ri, "id = ?", id).Error; err != nil {
		return nil, normalize(err)
	}
	return &ri, nil
}

func (r *Repo) ListReIssues(ctx context.Context, requestRef string) ([]models.ReIssue, error) {
	req, err := r.GetRequest(ctx, requestRef)
	if err != nil {
		return nil, err
	}
	return req.ReIssued, nil
}

// ListPendingReIssues 管理员待审列表
func (r *Repo) ListPendingReIssues(ctx context.Context) ([]models.ReIssue, error) {
	var out []models.ReIssue
	err := r.DB.WithContext(ctx).Where("status = ?", models.ReIssuePending).Order("re_issued_date").Find(&out).Error
	return out, err
}

// CreateReIssue files an extension request. Only the borrower may ask.
func (r *Repo) CreateReIssue(ctx context.Context, requestRef string, days int, description string, actor Actor, now time.Time) (*models.ReIssue, error) {
	var created models.ReIssue
	_, err := r.withLockedRequest(ctx, requestRef, func(tx *gorm.DB, req *models.Request) error {
		if req.UserID != actor.ID {
			return ErrForbidden
		}
		ri, err := ledger.RequestReIssue(req, uuid.NewString(), days, description, now)
		if err != nil {
			return err
		}
		if err := tx.Create(ri).Error; err != nil {
			return mapReIssueDup(err)
		}
		created = *ri
		return saveRequestState(tx, req)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// ReviewReIssue approves or rejects a pending extension.
func (r *Repo) ReviewReIssue(ctx context.Context, id string, in ledger.ReviewInput, actor Actor, now time.Time) (*models.ReIssue, *models.Request, error) {
	ri, err := r.GetReIssue(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	var reviewed models.ReIssue
	req, err := r.withLockedRequest(ctx, ri.RequestID, func(tx *gorm.DB, req *models.Request) error {
		out, err := ledger.ReviewReIssue(req, id, in, now)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.ReIssue{}).Where("id = ?", out.ID).Updates(map[string]any{
			"status":               out.Status,
			"admin_approved_days":  out.AdminApprovedDays,
			"admin_return_message": out.AdminReturnMessage,
			"reviewed_date":        out.ReviewedDate,
		}).Error; err != nil {
			return err
		}
		reviewed = *out
		if err := saveRequestState(tx, req); err != nil {
			return err
		}
		reason := string(out.Status)
		if out.AdminReturnMessage != "" {
			reason += ": " + out.AdminReturnMessage
		}
		return logAction(tx, actor, models.ActionReIssueReview, out.ID, &reason)
	})
	if err != nil {
		return nil, nil, err
	}
	return &reviewed, req, nil
}
