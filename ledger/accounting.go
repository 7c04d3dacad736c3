package ledger

import (
	"errors"
	"fmt"
	"time"

	"lab_lending_tool/models"
)

var (
	ErrNotReturnable        = errors.New("request is not accepting returns")
	ErrNotCollected         = errors.New("components have not been collected yet")
	ErrProductNotIssued     = errors.New("product was not issued on this request")
	ErrNegativeQuantity     = errors.New("quantities must be non-negative")
	ErrReturnQuantity       = errors.New("return quantity must be between 0 and the remaining quantity")
	ErrDamagedExceedsReturn = errors.New("damaged quantity cannot exceed return quantity")
	ErrUserDamagedExceeds   = errors.New("user damaged quantity cannot exceed damaged quantity")
	ErrReplacedExceeds      = errors.New("replaced quantity cannot exceed damaged quantity")
)

// AllReturnedMessage is stamped on a pending re-issue that the last return
// made pointless.
const AllReturnedMessage = "all components returned"

func Returned(iss models.Issuance) int {
	n := 0
	for _, r := range iss.Returns {
		n += r.ReturnedQuantity
	}
	return n
}

func Damaged(iss models.Issuance) int {
	n := 0
	for _, r := range iss.Returns {
		n += r.DamagedQuantity
	}
	return n
}

func Replaced(iss models.Issuance) int {
	n := 0
	for _, r := range iss.Returns {
		n += r.ReplacedQuantity
	}
	return n
}

// TotalIssued counts replacements: a replaced unit is a fresh unit handed out.
func TotalIssued(iss models.Issuance) int {
	return iss.IssuedQuantity + Replaced(iss)
}

func Remaining(iss models.Issuance) int {
	return TotalIssued(iss) - Returned(iss)
}

// AllReturned reports whether every issuance of req is fully back.
func AllReturned(req *models.Request) bool {
	if len(req.Issued) == 0 {
		return false
	}
	for _, iss := range req.Issued {
		if Remaining(iss) != 0 {
			return false
		}
	}
	return true
}

// ReturnInput is one return submission against an issuance.
type ReturnInput struct {
	ReturnQuantity      int
	DamagedQuantity     int
	UserDamagedQuantity int
	ReplacedQuantity    int
}

// NotUserDamaged is the share of damage not attributed to the borrower.
func (in ReturnInput) NotUserDamaged() int {
	return in.DamagedQuantity - in.UserDamagedQuantity
}

// ValidateReturn checks in against the current state of iss.
func ValidateReturn(iss models.Issuance, in ReturnInput) error {
	if in.ReturnQuantity < 0 || in.DamagedQuantity < 0 || in.UserDamagedQuantity < 0 || in.ReplacedQuantity < 0 {
		return ErrNegativeQuantity
	}
	if rem := Remaining(iss); in.ReturnQuantity > rem {
		return fmt.Errorf("%w (remaining %d)", ErrReturnQuantity, rem)
	}
	if in.DamagedQuantity > in.ReturnQuantity {
		return ErrDamagedExceedsReturn
	}
	if in.UserDamagedQuantity > in.DamagedQuantity {
		return ErrUserDamagedExceeds
	}
	if in.ReplacedQuantity > in.DamagedQuantity {
		return ErrReplacedExceeds
	}
	return nil
}

// StockEffect is how one return moves product counters.
type StockEffect struct {
	ProductID    string
	InStockDelta int
	DamagedDelta int
}

// EffectOf computes the stock movement of a return: good units go back on
// the shelf, damaged units are retired and replacements leave the shelf.
func EffectOf(productID string, in ReturnInput) StockEffect {
	return StockEffect{
		ProductID:    productID,
		InStockDelta: in.ReturnQuantity - in.DamagedQuantity - in.ReplacedQuantity,
		DamagedDelta: in.DamagedQuantity,
	}
}

// ReturnOutcome describes what ApplyReturn changed.
type ReturnOutcome struct {
	IssuanceIndex int
	Event         models.ReturnEvent
	Effect        StockEffect
	Completed     bool
	// NoOp is set for a zero-quantity submission: it was validated but nothing is recorded.
	NoOp bool
	// AutoRejected holds the index of a pending re-issue closed by completion, or -1.
	AutoRejected int
}

// ApplyReturn appends a return event to the issuance of productID and
// recomputes the request status.
func ApplyReturn(req *models.Request, productID string, in ReturnInput, actorID string, now time.Time) (*ReturnOutcome, error) {
	if req.Status != models.StatusApproved && req.Status != models.StatusReIssued {
		return nil, fmt.Errorf("%w: status %s", ErrNotReturnable, req.Status)
	}
	if req.CollectedDate == nil {
		return nil, ErrNotCollected
	}
	idx := -1
	for i := range req.Issued {
		if req.Issued[i].ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrProductNotIssued
	}
	iss := &req.Issued[idx]
	if err := ValidateReturn(*iss, in); err != nil {
		return nil, err
	}
	if in.ReturnQuantity == 0 {
		return &ReturnOutcome{IssuanceIndex: idx, Effect: StockEffect{ProductID: productID}, NoOp: true, AutoRejected: -1}, nil
	}

	ev := models.ReturnEvent{
		IssuanceID:          iss.ID,
		ReturnedQuantity:    in.ReturnQuantity,
		DamagedQuantity:     in.DamagedQuantity,
		UserDamagedQuantity: in.UserDamagedQuantity,
		ReplacedQuantity:    in.ReplacedQuantity,
		ReturnDate:          now,
		RecordedBy:          actorID,
	}
	iss.Returns = append(iss.Returns, ev)

	out := &ReturnOutcome{
		IssuanceIndex: idx,
		Event:         ev,
		Effect:        EffectOf(productID, in),
		AutoRejected:  -1,
	}
	if AllReturned(req) {
		if err := transition(req, models.StatusReturned); err != nil {
			return nil, err
		}
		t := now
		req.AllReturnedDate = &t
		out.Completed = true
		if i := pendingReIssueIndex(req); i >= 0 {
			ri := &req.ReIssued[i]
			ri.Status = models.ReIssueRejected
			ri.AdminReturnMessage = AllReturnedMessage
			ri.ReviewedDate = &t
			out.AutoRejected = i
		}
	}
	return out, nil
}

// Outstanding sums remaining units per product across the request.
func Outstanding(req *models.Request) map[string]int {
	out := make(map[string]int, len(req.Issued))
	for _, iss := range req.Issued {
		if rem := Remaining(iss); rem > 0 {
			out[iss.ProductID] += rem
		}
	}
	return out
}
