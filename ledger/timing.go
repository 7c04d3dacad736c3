package ledger

import (
	"time"

	"lab_lending_tool/models"
)

// IST is Indian Standard Time. It has no DST, so a fixed zone is exact and
// does not depend on tzdata being installed.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// LoanState colors calendar entries and list rows.
type LoanState string

const (
	StateOnTime   LoanState = "on-time"
	StateOverdue  LoanState = "overdue"
	StateReturned LoanState = "returned"
)

// CalendarDay truncates t to midnight of its IST calendar day.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.In(IST).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, IST)
}

// DaysBetween is the whole number of IST calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(CalendarDay(b).Sub(CalendarDay(a)).Hours() / 24)
}

// ExtensionDays sums every approved re-issue of req.
func ExtensionDays(req *models.Request) int {
	n := 0
	for _, ri := range req.ReIssued {
		if ri.Status == models.ReIssueApproved {
			n += ri.AdminApprovedDays
		}
	}
	return n
}

// ExpectedReturnDate is collection day + approved days + approved extensions.
// It is undefined until the components are collected.
func ExpectedReturnDate(req *models.Request) (time.Time, bool) {
	if req.CollectedDate == nil {
		return time.Time{}, false
	}
	return CalendarDay(*req.CollectedDate).AddDate(0, 0, req.AdminApprovedDays+ExtensionDays(req)), true
}

// Timing is the derived due-date view of a request.
type Timing struct {
	ExpectedReturnDate time.Time `json:"expectedReturnDate"`
	DelayDays          int       `json:"delayDays"`
	TimeLeftDays       int       `json:"timeLeftDays"`
	State              LoanState `json:"state"`
}

// ComputeTiming derives delay or time left. Returned requests compare the
// all-returned day with the expected day; open ones compare today.
func ComputeTiming(req *models.Request, now time.Time) (Timing, bool) {
	expected, ok := ExpectedReturnDate(req)
	if !ok {
		return Timing{}, false
	}
	t := Timing{ExpectedReturnDate: expected}
	if req.AllReturnedDate != nil {
		if d := DaysBetween(expected, *req.AllReturnedDate); d > 0 {
			t.DelayDays = d
		}
		t.State = StateReturned
		return t, true
	}
	left := DaysBetween(now, expected)
	if left < 0 {
		t.DelayDays = -left
		t.State = StateOverdue
	} else {
		t.TimeLeftDays = left
		t.State = StateOnTime
	}
	return t, true
}
