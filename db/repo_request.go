package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lab_lending_tool/inventory"
	"lab_lending_tool/ledger"
	"lab_lending_tool/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewRequestCode 对外展示用的短编号
func NewRequestCode() string {
	return "REQ-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// byRef 接受 uuid 或 REQ- 编号
func byRef(tx *gorm.DB, ref string) *gorm.DB {
	ref = strings.TrimSpace(ref)
	if _, err := uuid.Parse(ref); err == nil {
		return tx.Where("id = ?", ref)
	}
	return tx.Where("code = ?", strings.ToUpper(ref))
}

func withDetails(tx *gorm.DB) *gorm.DB {
	byID := func(db *gorm.DB) *gorm.DB { return db.Order("id") }
	return tx.
		Preload("User").
		Preload("RequestedProducts", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("RequestedProducts.Product").
		Preload("Issued", byID).
		Preload("Issued.Product").
		Preload("Issued.Returns", byID).
		Preload("ReIssued", func(db *gorm.DB) *gorm.DB { return db.Order("re_issued_date") })
}

func (r *Repo) CreateRequest(ctx context.Context, user *models.User, in ledger.NewRequestInput, now time.Time) (*models.Request, error) {
	if err := ledger.ValidateNewRequest(in, user.IsFaculty); err != nil {
		return nil, err
	}
	req := ledger.BuildRequest(uuid.NewString(), NewRequestCode(), user.ID, in, now)

	ids := make([]string, 0, len(req.RequestedProducts))
	for _, l := range req.RequestedProducts {
		if !validID(l.ProductID) {
			return nil, ErrUnknownProduct
		}
		ids = append(ids, l.ProductID)
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Product{}).Where("id IN ?", ids).Count(&n).Error; err != nil {
			return err
		}
		if int(n) != len(ids) {
			return ErrUnknownProduct
		}
		return tx.Create(req).Error
	})
	if err != nil {
		return nil, err
	}
	return r.GetRequest(ctx, req.ID)
}

func (r *Repo) GetRequest(ctx context.Context, ref string) (*models.Request, error) {
	var req models.Request
	if err := byRef(withDetails(r.DB.WithContext(ctx)), ref).First(&req).Error; err != nil {
		return nil, normalize(err)
	}
	return &req, nil
}

type RequestQuery struct {
	Status string
	UserID string
	Q      string // 编号或学号
	From   *time.Time
	To     *time.Time
	Page   int
	Size   int
}

type RequestPage struct {
	Items []models.Request `json:"items"`
	Total int64            `json:"total"`
}

func (q RequestQuery) apply(tx *gorm.DB) (*gorm.DB, error) {
	if q.Status != "" {
		st, ok := ledger.NormalizeStatus(q.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ledger.ErrInvalidTransition, q.Status)
		}
		tx = tx.Where(models.RequestTable+".status = ?", st)
	}
	if q.UserID != "" {
		tx = tx.Where(models.RequestTable+".user_id = ?", q.UserID)
	}
	if s := strings.TrimSpace(q.Q); s != "" {
		like := "%" + strings.ToUpper(s) + "%"
		tx = tx.Where("("+models.RequestTable+".code LIKE ? OR "+models.RequestTable+".user_id IN (?))",
			like, tx.Session(&gorm.Session{NewDB: true}).Model(&models.User{}).Select("id").Where("roll_no LIKE ?", like))
	}
	if q.From != nil {
		tx = tx.Where(models.RequestTable+".request_date >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where(models.RequestTable+".request_date < ?", *q.To)
	}
	return tx, nil
}

func (r *Repo) ListRequests(ctx context.Context, q RequestQuery) (RequestPage, error) {
	page, size := clampPage(q.Page, q.Size)
	tx, err := q.apply(r.DB.WithContext(ctx).Model(&models.Request{}))
	if err != nil {
		return RequestPage{}, err
	}
	var out RequestPage
	if err := tx.Count(&out.Total).Error; err != nil {
		return RequestPage{}, err
	}
	if err := withDetails(tx).Order("request_date DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&out.Items).Error; err != nil {
		return RequestPage{}, err
	}
	return out, nil
}

// RequestsForStats loads every matching request with details, unpaged.
func (r *Repo) RequestsForStats(ctx context.Context, q RequestQuery) ([]models.Request, error) {
	tx, err := q.apply(r.DB.WithContext(ctx).Model(&models.Request{}))
	if err != nil {
		return nil, err
	}
	var out []models.Request
	err = withDetails(tx).Order("request_date").Find(&out).Error
	return out, err
}

// withLockedRequest 锁住申请行再加载子表，所有对同一申请的修改都串行
func (r *Repo) withLockedRequest(ctx context.Context, ref string, fn func(tx *gorm.DB, req *models.Request) error) (*models.Request, error) {
	var req models.Request
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := byRef(lockForUpdate(tx), ref).First(&req).Error; err != nil {
			return normalize(err)
		}
		if err := loadChildren(tx, &req); err != nil {
			return err
		}
		return fn(tx, &req)
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func loadChildren(tx *gorm.DB, req *models.Request) error {
	if err := tx.Preload("Product").Where("request_id = ?", req.ID).Order("position").
		Find(&req.RequestedProducts).Error; err != nil {
		return err
	}
	if err := tx.Preload("Product").
		Preload("Returns", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("request_id = ?", req.ID).Order("id").
		Find(&req.Issued).Error; err != nil {
		return err
	}
	return tx.Where("request_id = ?", req.ID).Order("re_issued_date").Find(&req.ReIssued).Error
}

func saveRequestState(tx *gorm.DB, req *models.Request) error {
	return tx.Model(&models.Request{}).Where("id = ?", req.ID).Updates(map[string]any{
		"status":              req.Status,
		"admin_approved_days": req.AdminApprovedDays,
		"admin_message":       req.AdminMessage,
		"approved_date":       req.ApprovedDate,
		"collection_date":     req.CollectionDate,
		"collected_date":      req.CollectedDate,
		"all_returned_date":   req.AllReturnedDate,
		"closed_date":         req.ClosedDate,
		"updated_at":          time.Now(),
	}).Error
}

func saveProductCounts(tx *gorm.DB, p *models.Product) error {
	return tx.Model(&models.Product{}).Where("id = ?", p.ID).Updates(map[string]any{
		"in_stock":         p.InStock,
		"damaged_quantity": p.DamagedQuantity,
		"updated_at":       time.Now(),
	}).Error
}

// ApproveRequest issues stock against a pending request.
func (r *Repo) ApproveRequest(ctx context.Context, ref string, in ledger.ApproveInput, actor Actor, now time.Time) (*models.Request, error) {
	return r.withLockedRequest(ctx, ref, func(tx *gorm.DB, req *models.Request) error {
		ids := make([]string, 0, len(in.Lines))
		for _, l := range ledger.MergeLines(in.Lines) {
			ids = append(ids, l.ProductID)
		}
		products, err := lockProducts(tx, ids)
		if err != nil {
			return err
		}
		stock := make(map[string]int, len(products))
		for id, p := range products {
			stock[id] = p.InStock
		}
		if err := ledger.Approve(req, in, stock, now); err != nil {
			return err
		}
		for i := range req.Issued {
			p := products[req.Issued[i].ProductID]
			p.InStock -= req.Issued[i].IssuedQuantity
			if err := saveProductCounts(tx, p); err != nil {
				return err
			}
		}
		if err := tx.Create(&req.Issued).Error; err != nil {
			return err
		}
		for i := range req.Issued {
			req.Issued[i].Product = products[req.Issued[i].ProductID]
		}
		if err := saveRequestState(tx, req); err != nil {
			return err
		}
		return logAction(tx, actor, models.ActionApprove, req.ID, &req.AdminMessage)
	})
}

func (r *Repo) RejectRequest(ctx context.Context, ref, message string, actor Actor, now time.Time) (*models.Request, error) {
	return r.withLockedRequest(ctx, ref, func(tx *gorm.DB, req *models.Request) error {
		if err := ledger.Reject(req, message, now); err != nil {
			return err
		}
		if err := saveRequestState(tx, req); err != nil {
			return err
		}
		return logAction(tx, actor, models.ActionReject, req.ID, &message)
	})
}

func (r *Repo) CollectRequest(ctx context.Context, ref string, actor Actor, now time.Time) (*models.Request, error) {
	return r.withLockedRequest(ctx, ref, func(tx *gorm.DB, req *models.Request) error {
		if err := ledger.Collect(req, now); err != nil {
			return err
		}
		if err := saveRequestState(tx, req); err != nil {
			return err
		}
		return logAction(tx, actor, models.ActionCollect, req.ID, nil)
	})
}

// ReturnSubmission 按 productId 或 productName 指定归还的元件
type ReturnSubmission struct {
	ProductID   string
	ProductName string
	ledger.ReturnInput
}

func resolveIssuedProduct(req *models.Request, sub ReturnSubmission) (string, error) {
	if sub.ProductID != "" {
		return sub.ProductID, nil
	}
	key := inventory.NameKey(sub.ProductName)
	if key == "" {
		return "", ledger.ErrProductNotIssued
	}
	for _, iss := range req.Issued {
		if iss.Product != nil && iss.Product.NameKey == key {
			return iss.ProductID, nil
		}
	}
	return "", ledger.ErrProductNotIssued
}

// RecordReturn appends a return event and moves stock in the same
// transaction.
func (r *Repo) RecordReturn(ctx context.Context, ref string, sub ReturnSubmission, actor Actor, now time.Time) (*models.Request, *ledger.ReturnOutcome, error) {
	var out *ledger.ReturnOutcome
	req, err := r.withLockedRequest(ctx, ref, func(tx *gorm.DB, req *models.Request) error {
		productID, err := resolveIssuedProduct(req, sub)
		if err != nil {
			return err
		}
		out, err = ledger.ApplyReturn(req, productID, sub.ReturnInput, actor.ID, now)
		if err != nil {
			return err
		}
		if out.NoOp {
			return nil
		}
		products, err := lockProducts(tx, []string{productID})
		if err != nil {
			return err
		}
		p := products[productID]
		p.InStock += out.Effect.InStockDelta
		p.DamagedQuantity += out.Effect.DamagedDelta
		if p.InStock < 0 {
			return fmt.Errorf("%w: not enough %s in stock for replacement", ledger.ErrInsufficientStock, p.Name)
		}
		if err := saveProductCounts(tx, p); err != nil {
			return err
		}

		ev := &req.Issued[out.IssuanceIndex].Returns[len(req.Issued[out.IssuanceIndex].Returns)-1]
		if err := tx.Create(ev).Error; err != nil {
			return err
		}
		out.Event = *ev
		if out.AutoRejected >= 0 {
			ri := req.ReIssued[out.AutoRejected]
			if err := tx.Model(&models.ReIssue{}).Where("id = ?", ri.ID).Updates(map[string]any{
				"status":               ri.Status,
				"admin_return_message": ri.AdminReturnMessage,
				"reviewed_date":        ri.ReviewedDate,
			}).Error; err != nil {
				return err
			}
		}
		if err := saveRequestState(tx, req); err != nil {
			return err
		}
		reason := fmt.Sprintf("%s returned=%d damaged=%d replaced=%d", p.Name,
			sub.ReturnQuantity, sub.DamagedQuantity, sub.ReplacedQuantity)
		return logAction(tx, actor, models.ActionReturn, req.ID, &reason)
	})
	if err != nil {
		return nil, nil, err
	}
	return req, out, nil
}

// StaleRequestIDs lists approved, uncollected requests whose collection
// date is at or before cutoff.
func (r *Repo) StaleRequestIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&models.Request{}).
		Where("status = ? AND collected_date IS NULL AND collection_date <= ?", models.StatusApproved, cutoff).
		Order("collection_date").
		Pluck("id", &ids).Error
	return ids, err
}

// CloseIfStale closes one request when it is still past its window and puts
// the issued units back in stock. It reports whether anything changed.
func (r *Repo) CloseIfStale(ctx context.Context, id string, window time.Duration, actor Actor, now time.Time) (bool, error) {
	closed := false
	_, err := r.withLockedRequest(ctx, id, func(tx *gorm.DB, req *models.Request) error {
		if !ledger.ShouldClose(req, now, window) {
			return nil
		}
		restock, err := ledger.Close(req, now)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(restock))
		for pid := range restock {
			ids = append(ids, pid)
		}
		products, err := lockProducts(tx, ids)
		if err != nil {
			return err
		}
		for pid, n := range restock {
			p := products[pid]
			p.InStock += n
			if err := saveProductCounts(tx, p); err != nil {
				return err
			}
		}
		if err := saveRequestState(tx, req); err != nil {
			return err
		}
		closed = true
		reason := "not collected within window"
		return logAction(tx, actor, models.ActionClose, req.ID, &reason)
	})
	return closed, err
}

// mapReIssueDup 并发插入被部分唯一索引挡住时，按已有待审处理
func mapReIssueDup(err error) error {
	if errors.Is(normalize(err), ErrDuplicate) {
		return ledger.ErrReIssuePending
	}
	return err
}
