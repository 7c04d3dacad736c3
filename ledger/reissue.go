package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lab_lending_tool/models"
	"lab_lending_tool/validation"
)

var (
	ErrReIssueNotAllowed = errors.New("request is not eligible for re-issue")
	ErrReIssueTooEarly   = errors.New("re-issue opens after half of the approved period")
	ErrReIssuePending    = errors.New("a re-issue request is already pending")
	ErrReIssueNotPending = errors.New("re-issue has already been reviewed")
	ErrReIssueNotFound   = errors.New("re-issue not found")
)

func pendingReIssueIndex(req *models.Request) int {
	for i := range req.ReIssued {
		if req.ReIssued[i].Status == models.ReIssuePending {
			return i
		}
	}
	return -1
}

// PendingReIssue returns the unresolved re-issue of req, if any.
func PendingReIssue(req *models.Request) *models.ReIssue {
	if i := pendingReIssueIndex(req); i >= 0 {
		return &req.ReIssued[i]
	}
	return nil
}

// ReIssueOpensAt is collectedDate + floor(adminApprovedDays/2) days.
func ReIssueOpensAt(req *models.Request) (time.Time, bool) {
	if req.CollectedDate == nil {
		return time.Time{}, false
	}
	return req.CollectedDate.AddDate(0, 0, req.AdminApprovedDays/2), true
}

// CanRequestReIssue checks eligibility at now.
func CanRequestReIssue(req *models.Request, now time.Time) error {
	if PendingReIssue(req) != nil {
		return ErrReIssuePending
	}
	if req.Status != models.StatusApproved {
		return fmt.Errorf("%w: status %s", ErrReIssueNotAllowed, req.Status)
	}
	opens, ok := ReIssueOpensAt(req)
	if !ok {
		return ErrNotCollected
	}
	if now.Before(opens) {
		return fmt.Errorf("%w (opens %s)", ErrReIssueTooEarly, opens.In(IST).Format("2006-01-02 15:04"))
	}
	return nil
}

// RequestReIssue appends a pending re-issue and moves req to reIssued.
func RequestReIssue(req *models.Request, id string, days int, description string, now time.Time) (*models.ReIssue, error) {
	var ve validation.Errors
	validation.Range(&ve, "requestedDays", days, MinRequestedDays, MaxRequestedDays)
	validation.RequireField(&ve, "requestDescription", description)
	if err := ve.Err(); err != nil {
		return nil, err
	}
	if err := CanRequestReIssue(req, now); err != nil {
		return nil, err
	}
	if err := transition(req, models.StatusReIssued); err != nil {
		return nil, err
	}
	req.ReIssued = append(req.ReIssued, models.ReIssue{
		ID:                 id,
		RequestID:          req.ID,
		Status:             models.ReIssuePending,
		RequestedDays:      days,
		RequestDescription: strings.TrimSpace(description),
		ReIssuedDate:       now,
	})
	return &req.ReIssued[len(req.ReIssued)-1], nil
}

// ReviewInput is the admin's decision on a re-issue.
type ReviewInput struct {
	Decision          models.ReIssueStatus
	AdminApprovedDays int
	Message           string
}

// ReviewReIssue resolves the pending re-issue reissueID and returns req to
// approved. Approved days stack onto the loan.
func ReviewReIssue(req *models.Request, reissueID string, in ReviewInput, now time.Time) (*models.ReIssue, error) {
	idx := -1
	for i := range req.ReIssued {
		if req.ReIssued[i].ID == reissueID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrReIssueNotFound
	}
	ri := &req.ReIssued[idx]
	if ri.Status != models.ReIssuePending {
		return nil, ErrReIssueNotPending
	}

	var ve validation.Errors
	switch in.Decision {
	case models.ReIssueApproved:
		validation.Range(&ve, "adminApprovedDays", in.AdminApprovedDays, MinRequestedDays, MaxRequestedDays)
	case models.ReIssueRejected:
		validation.RequireField(&ve, "adminReturnMessage", in.Message)
	default:
		ve.Add("status", "must be approved or rejected")
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}
	if err := transition(req, models.StatusApproved); err != nil {
		return nil, err
	}

	t := now
	ri.Status = in.Decision
	if in.Decision == models.ReIssueApproved {
		ri.AdminApprovedDays = in.AdminApprovedDays
	}
	ri.AdminReturnMessage = strings.TrimSpace(in.Message)
	ri.ReviewedDate = &t
	return ri, nil
}
