// Package ledger holds the request lifecycle and the return/re-issue
// accounting. Everything here is pure: callers load a request with its
// issuances, returns and re-issues, mutate it through these functions and
// persist the result inside their own transaction.
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"lab_lending_tool/models"
)

var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[models.RequestStatus][]models.RequestStatus{
	models.StatusPending:  {models.StatusApproved, models.StatusRejected},
	models.StatusApproved: {models.StatusReturned, models.StatusClosed, models.StatusReIssued},
	models.StatusReIssued: {models.StatusApproved, models.StatusReturned},
}

// NormalizeStatus maps user input onto a canonical status. "accepted" is an
// alias of approved and is never stored.
func NormalizeStatus(s string) (models.RequestStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return models.StatusPending, true
	case string(models.StatusApproved), string(models.StatusAccepted):
		return models.StatusApproved, true
	case "rejected":
		return models.StatusRejected, true
	case "returned":
		return models.StatusReturned, true
	case "closed":
		return models.StatusClosed, true
	case "reissued", "re-issued":
		return models.StatusReIssued, true
	}
	return "", false
}

// NormalizeReIssueStatus does the same for re-issue decisions.
func NormalizeReIssueStatus(s string) (models.ReIssueStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return models.ReIssuePending, true
	case "approved", "accepted":
		return models.ReIssueApproved, true
	case "rejected":
		return models.ReIssueRejected, true
	}
	return "", false
}

func CanTransition(from, to models.RequestStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s models.RequestStatus) bool {
	return len(transitions[s]) == 0
}

func transition(req *models.Request, to models.RequestStatus) error {
	if !CanTransition(req.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, to)
	}
	req.Status = to
	return nil
}

// IsActiveLoan reports whether the request currently has components out.
func IsActiveLoan(req *models.Request) bool {
	return (req.Status == models.StatusApproved || req.Status == models.StatusReIssued) && req.CollectedDate != nil
}
