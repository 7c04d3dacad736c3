package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lab_lending_tool/models"
	"lab_lending_tool/validation"
)

const (
	MinRequestedDays = 1
	MaxRequestedDays = 30
	MaxApprovedDays  = 60

	// DefaultCollectionWindow 批准后 48 小时内未领取则关闭
	DefaultCollectionWindow = 48 * time.Hour
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyCollected  = errors.New("components already collected")
	ErrNotCollectable    = errors.New("request is not awaiting collection")
)

// Line is one (product, quantity) pair of a request or an issuance.
type Line struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

// NewRequestInput is what a requester submits.
type NewRequestInput struct {
	Lines          []Line
	RequestedDays  int
	ReferenceStaff string
	Description    string
}

// MergeLines sums quantities of repeated products, keeping first-seen order.
func MergeLines(lines []Line) []Line {
	idx := make(map[string]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		id := strings.TrimSpace(l.ProductID)
		if i, ok := idx[id]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[id] = len(out)
		out = append(out, Line{ProductID: id, Quantity: l.Quantity})
	}
	return out
}

// ValidateNewRequest checks a submission. Reference staff is required unless
// the requester is faculty.
func ValidateNewRequest(in NewRequestInput, isFaculty bool) error {
	var ve validation.Errors
	if len(in.Lines) == 0 {
		ve.Add("requestedProducts", "at least one product is required")
	}
	for i, l := range in.Lines {
		if strings.TrimSpace(l.ProductID) == "" {
			ve.Add(fmt.Sprintf("requestedProducts[%d].productId", i), "is required")
		}
		validation.Positive(&ve, fmt.Sprintf("requestedProducts[%d].quantity", i), l.Quantity)
	}
	validation.Range(&ve, "requestedDays", in.RequestedDays, MinRequestedDays, MaxRequestedDays)
	if !isFaculty {
		validation.RequireField(&ve, "referenceStaff", in.ReferenceStaff)
	}
	validation.RequireField(&ve, "description", in.Description)
	return ve.Err()
}

// BuildRequest turns a validated submission into a pending request.
func BuildRequest(id, code, userID string, in NewRequestInput, now time.Time) *models.Request {
	lines := MergeLines(in.Lines)
	req := &models.Request{
		ID:             id,
		Code:           code,
		UserID:         userID,
		RequestedDays:  in.RequestedDays,
		ReferenceStaff: strings.TrimSpace(in.ReferenceStaff),
		Description:    strings.TrimSpace(in.Description),
		Status:         models.StatusPending,
		RequestDate:    now,
	}
	for i, l := range lines {
		req.RequestedProducts = append(req.RequestedProducts, models.RequestedProduct{
			RequestID: id,
			Position:  i,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
		})
	}
	return req
}

// ApproveInput is the admin's issuance decision.
type ApproveInput struct {
	Lines             []Line
	AdminApprovedDays int
	CollectionDate    *time.Time
	Message           string
}

// Approve issues components against a pending request. stock maps product id
// to units currently in stock; every line must fit.
func Approve(req *models.Request, in ApproveInput, stock map[string]int, now time.Time) error {
	if req.Status != models.StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, models.StatusApproved)
	}
	var ve validation.Errors
	lines := MergeLines(in.Lines)
	if len(lines) == 0 {
		ve.Add("issued", "at least one product must be issued")
	}
	for i, l := range lines {
		validation.Positive(&ve, fmt.Sprintf("issued[%d].quantity", i), l.Quantity)
	}
	validation.Range(&ve, "adminApprovedDays", in.AdminApprovedDays, MinRequestedDays, MaxApprovedDays)
	if err := ve.Err(); err != nil {
		return err
	}
	for _, l := range lines {
		if have, ok := stock[l.ProductID]; !ok || have < l.Quantity {
			return fmt.Errorf("%w: product %s has %d, %d requested", ErrInsufficientStock, l.ProductID, have, l.Quantity)
		}
	}
	req.Status = models.StatusApproved

	req.Issued = req.Issued[:0]
	for _, l := range lines {
		req.Issued = append(req.Issued, models.Issuance{
			RequestID:      req.ID,
			ProductID:      l.ProductID,
			IssuedQuantity: l.Quantity,
			CreatedAt:      now,
		})
	}
	req.AdminApprovedDays = in.AdminApprovedDays
	req.AdminMessage = strings.TrimSpace(in.Message)
	approved := now
	req.ApprovedDate = &approved
	collection := now
	if in.CollectionDate != nil && in.CollectionDate.After(now) {
		collection = *in.CollectionDate
	}
	req.CollectionDate = &collection
	return nil
}

// Reject ends a pending request without issuing anything.
func Reject(req *models.Request, message string, now time.Time) error {
	if err := transition(req, models.StatusRejected); err != nil {
		return err
	}
	req.AdminMessage = strings.TrimSpace(message)
	return nil
}

// Collect stamps the physical pick-up of an approved request.
func Collect(req *models.Request, now time.Time) error {
	if req.Status != models.StatusApproved {
		return fmt.Errorf("%w: status %s", ErrNotCollectable, req.Status)
	}
	if req.CollectedDate != nil {
		return ErrAlreadyCollected
	}
	t := now
	req.CollectedDate = &t
	return nil
}

// ShouldClose reports whether an approved request missed its collection
// window.
func ShouldClose(req *models.Request, now time.Time, window time.Duration) bool {
	if req.Status != models.StatusApproved || req.CollectedDate != nil || req.CollectionDate == nil {
		return false
	}
	return !now.Before(req.CollectionDate.Add(window))
}

// Close moves an uncollected request to closed and returns the units that go
// back to stock per product.
func Close(req *models.Request, now time.Time) (map[string]int, error) {
	if req.CollectedDate != nil {
		return nil, fmt.Errorf("%w: components already collected", ErrInvalidTransition)
	}
	if err := transition(req, models.StatusClosed); err != nil {
		return nil, err
	}
	t := now
	req.ClosedDate = &t
	restock := make(map[string]int, len(req.Issued))
	for _, iss := range req.Issued {
		restock[iss.ProductID] += Remaining(iss)
	}
	return restock, nil
}
