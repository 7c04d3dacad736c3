package stats

import (
	"sort"
	"time"

	"lab_lending_tool/ledger"
	"lab_lending_tool/models"
)

type EventKind string

const (
	EventCollection EventKind = "collection"
	EventReturn     EventKind = "return"
)

// Event is one calendar entry.
type Event struct {
	Date      time.Time        `json:"date"`
	Kind      EventKind        `json:"kind"`
	RequestID string           `json:"id"`
	Code      string           `json:"requestId"`
	RollNo    string           `json:"rollNo,omitempty"`
	State     ledger.LoanState `json:"state"`
}

// Calendar merges collection and return events of reqs that fall in
// [from, to] by IST calendar day. A zero from or to leaves that side open.
func Calendar(reqs []models.Request, from, to time.Time, now time.Time) []Event {
	var out []Event
	inRange := func(d time.Time) bool {
		if !from.IsZero() && d.Before(ledger.CalendarDay(from)) {
			return false
		}
		if !to.IsZero() && d.After(ledger.CalendarDay(to)) {
			return false
		}
		return true
	}
	add := func(r *models.Request, kind EventKind, at time.Time, state ledger.LoanState) {
		d := ledger.CalendarDay(at)
		if !inRange(d) {
			return
		}
		e := Event{Date: d, Kind: kind, RequestID: r.ID, Code: r.Code, State: state}
		if r.User != nil {
			e.RollNo = r.User.RollNo
		}
		out = append(out, e)
	}

	for i := range reqs {
		r := &reqs[i]
		if r.CollectionDate == nil || r.Status == models.StatusRejected || r.Status == models.StatusPending {
			continue
		}
		timing, collected := ledger.ComputeTiming(r, now)
		if !collected {
			if r.Status == models.StatusClosed {
				continue
			}
			state := ledger.StateOnTime
			if ledger.CalendarDay(now).After(ledger.CalendarDay(*r.CollectionDate)) {
				state = ledger.StateOverdue
			}
			add(r, EventCollection, *r.CollectionDate, state)
			continue
		}

		add(r, EventCollection, *r.CollectedDate, timing.State)
		returnDay := timing.ExpectedReturnDate
		if r.AllReturnedDate != nil {
			returnDay = *r.AllReturnedDate
		}
		add(r, EventReturn, returnDay, timing.State)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
