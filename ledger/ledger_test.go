package ledger

import (
	"errors"
	"testing"
	"time"

	"lab_lending_tool/models"
	"lab_lending_tool/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2025, 3, 10, 10, 0, 0, 0, IST)

func at(days int) time.Time { return day0.AddDate(0, 0, days) }

func ptr(t time.Time) *time.Time { return &t }

func approvedRequest(lines ...models.Issuance) *models.Request {
	return &models.Request{
		ID:                "req-1",
		Code:              "REQ-TEST0001",
		Status:            models.StatusApproved,
		AdminApprovedDays: 10,
		CollectionDate:    ptr(day0),
		CollectedDate:     ptr(day0),
		Issued:            lines,
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]models.RequestStatus{
		"accepted":  models.StatusApproved,
		"Approved":  models.StatusApproved,
		" pending ": models.StatusPending,
		"reIssued":  models.StatusReIssued,
		"closed":    models.StatusClosed,
	}
	for in, want := range cases {
		got, ok := NormalizeStatus(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := NormalizeStatus("lost")
	assert.False(t, ok)
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(models.StatusPending, models.StatusApproved))
	assert.True(t, CanTransition(models.StatusPending, models.StatusRejected))
	assert.True(t, CanTransition(models.StatusApproved, models.StatusReIssued))
	assert.True(t, CanTransition(models.StatusReIssued, models.StatusApproved))
	assert.False(t, CanTransition(models.StatusPending, models.StatusReturned))
	assert.False(t, CanTransition(models.StatusRejected, models.StatusApproved))
	assert.False(t, CanTransition(models.StatusReturned, models.StatusApproved))
	for _, s := range []models.RequestStatus{models.StatusClosed, models.StatusRejected, models.StatusReturned} {
		assert.True(t, IsTerminal(s), s)
	}
}

func TestValidateNewRequest(t *testing.T) {
	in := NewRequestInput{
		Lines:         []Line{{ProductID: "p1", Quantity: 2}},
		RequestedDays: 7,
		Description:   "robotics project",
	}
	err := ValidateNewRequest(in, false)
	var ve *validation.Errors
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "referenceStaff", ve.Fields[0].Field)

	assert.NoError(t, ValidateNewRequest(in, true))

	in.RequestedDays = 31
	assert.Error(t, ValidateNewRequest(in, true))
}

func TestBuildRequestMergesLines(t *testing.T) {
	req := BuildRequest("id", "REQ-1", "u1", NewRequestInput{
		Lines:         []Line{{"p1", 2}, {"p2", 1}, {"p1", 3}},
		RequestedDays: 5,
		Description:   "x",
	}, day0)
	require.Len(t, req.RequestedProducts, 2)
	assert.Equal(t, 5, req.RequestedProducts[0].Quantity)
	assert.Equal(t, 1, req.RequestedProducts[1].Position)
	assert.Equal(t, models.StatusPending, req.Status)
}

func TestApprove(t *testing.T) {
	req := &models.Request{ID: "r", Status: models.StatusPending}
	in := ApproveInput{Lines: []Line{{"p1", 3}}, AdminApprovedDays: 14}

	err := Approve(req, in, map[string]int{"p1": 2}, day0)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, models.StatusPending, req.Status)

	require.NoError(t, Approve(req, in, map[string]int{"p1": 5}, day0))
	assert.Equal(t, models.StatusApproved, req.Status)
	require.Len(t, req.Issued, 1)
	assert.Equal(t, 3, req.Issued[0].IssuedQuantity)
	assert.Equal(t, day0, *req.CollectionDate)

	err = Approve(req, in, map[string]int{"p1": 5}, day0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectOnlyFromPending(t *testing.T) {
	req := &models.Request{Status: models.StatusPending}
	require.NoError(t, Reject(req, "not in stock", day0))
	assert.Equal(t, models.StatusRejected, req.Status)
	assert.ErrorIs(t, Reject(req, "again", day0), ErrInvalidTransition)
}

func TestReturnScenario(t *testing.T) {
	req := approvedRequest(models.Issuance{ID: 1, ProductID: "p1", IssuedQuantity: 10})

	out, err := ApplyReturn(req, "p1", ReturnInput{ReturnQuantity: 4, DamagedQuantity: 2, ReplacedQuantity: 1}, "admin", at(2))
	require.NoError(t, err)

	iss := req.Issued[0]
	assert.Equal(t, 11, TotalIssued(iss))
	assert.Equal(t, 7, Remaining(iss))
	assert.False(t, out.Completed)
	assert.Equal(t, models.StatusApproved, req.Status)
	assert.Equal(t, StockEffect{ProductID: "p1", InStockDelta: 1, DamagedDelta: 2}, out.Effect)
}

func TestReturnValidation(t *testing.T) {
	iss := models.Issuance{ProductID: "p1", IssuedQuantity: 5}
	cases := []struct {
		name string
		in   ReturnInput
		want error
	}{
		{"zero with damage", ReturnInput{DamagedQuantity: 1}, ErrDamagedExceedsReturn},
		{"too many", ReturnInput{ReturnQuantity: 6}, ErrReturnQuantity},
		{"negative", ReturnInput{ReturnQuantity: 1, DamagedQuantity: -1}, ErrNegativeQuantity},
		{"damaged > returned", ReturnInput{ReturnQuantity: 1, DamagedQuantity: 2}, ErrDamagedExceedsReturn},
		{"user damaged > damaged", ReturnInput{ReturnQuantity: 3, DamagedQuantity: 1, UserDamagedQuantity: 2}, ErrUserDamagedExceeds},
		{"replaced > damaged", ReturnInput{ReturnQuantity: 3, DamagedQuantity: 1, ReplacedQuantity: 2}, ErrReplacedExceeds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateReturn(iss, tc.in), tc.want)
		})
	}
	assert.NoError(t, ValidateReturn(iss, ReturnInput{ReturnQuantity: 5, DamagedQuantity: 3, UserDamagedQuantity: 1, ReplacedQuantity: 3}))
}

func TestZeroReturnIsNoOp(t *testing.T) {
	req := approvedRequest(models.Issuance{ID: 1, ProductID: "p1", IssuedQuantity: 2})
	assert.NoError(t, ValidateReturn(req.Issued[0], ReturnInput{}))

	out, err := ApplyReturn(req, "p1", ReturnInput{}, "a", at(1))
	require.NoError(t, err)
	assert.True(t, out.NoOp)
	assert.False(t, out.Completed)
	assert.Empty(t, req.Issued[0].Returns)
	assert.Equal(t, 2, Remaining(req.Issued[0]))
	assert.Equal(t, models.StatusApproved, req.Status)
}

func TestDamageSplit(t *testing.T) {
	in := ReturnInput{ReturnQuantity: 4, DamagedQuantity: 3, UserDamagedQuantity: 1}
	assert.Equal(t, in.DamagedQuantity, in.UserDamagedQuantity+in.NotUserDamaged())
}

func TestRemainingNeverNegative(t *testing.T) {
	req := approvedRequest(models.Issuance{ID: 1, ProductID: "p1", IssuedQuantity: 3})
	inputs := []ReturnInput{
		{ReturnQuantity: 2, DamagedQuantity: 2, ReplacedQuantity: 2},
		{ReturnQuantity: 3},
		{ReturnQuantity: 1},
		{ReturnQuantity: 1},
	}
	for i, in := range inputs {
		_, err := ApplyReturn(req, "p1", in, "a", at(i))
		if err != nil {
			assert.ErrorIs(t, err, ErrNotReturnable)
		}
		assert.GreaterOrEqual(t, Remaining(req.Issued[0]), 0)
	}
	assert.Equal(t, 0, Remaining(req.Issued[0]))
	assert.Equal(t, models.StatusReturned, req.Status)
}

func TestReturnedIffAllRemainingZero(t *testing.T) {
	req := approvedRequest(
		models.Issuance{ID: 1, ProductID: "p1", IssuedQuantity: 2},
		models.Issuance{ID: 2, ProductID: "p2", IssuedQuantity: 1},
	)
	out, err := ApplyReturn(req, "p1", ReturnInput{ReturnQuantity: 2}, "a", at(3))
	require.NoError(t, err)
	assert.False(t, out.Completed)
	assert.Equal(t, models.StatusApproved, req.Status)
	assert.Nil(t, req.AllReturnedDate)

	out, err = ApplyReturn(req, "p2", ReturnInput{ReturnQuantity: 1}, "a", at(4))
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, models.StatusReturned, req.Status)
	assert.Equal(t, at(4), *req.AllReturnedDate)
	assert.True(t, AllReturned(req))
}

func TestReturnRequiresCollection(t *testing.T) {
	req := approvedRequest(models.Issuance{ID: 1, ProductID: "p1", IssuedQuantity: 2})
	req.CollectedDate = nil
	_, err := ApplyReturn(req, "p1", ReturnInput{ReturnQuantity: 1}, "a", at(1))
	assert.ErrorIs(t, err, ErrNotCollected)

	req.CollectedDate = ptr(day0)
	_, err = ApplyReturn(req, "p9", ReturnInput{ReturnQuantity: 1}, "a", at(1))
	assert.ErrorIs(t, err, ErrProductNotIssued)
}

func TestTimingWithExtension(t *testing.T) {
	req := approvedRequest(models.Issuance{ID: 1, ProductID: "p1", IssuedQuantity: 1})
	req.ReIssued = []models.ReIssue{
		{ID: "ri1", Status: models.ReIssueApproved, AdminApprovedDays: 5},
		{ID: "ri2", Status: models.ReIssueRejected, AdminApprovedDays: 9},
	}
	expected, ok := ExpectedReturnDate(req)
	require.True(t, ok)
	assert.Equal(t, CalendarDay(at(15)), expected)

	req.Status = models.StatusReturned
	req.AllReturnedDate = ptr(at(17))
	tm, ok := ComputeTiming(req, at(30))
	require.True(t, ok)
	assert.Equal(t, 2, tm.DelayDays)
	assert.Equal(t, StateReturned, tm.State)
}

func TestTimingOpenLoan(t *testing.T) {
	req := approvedRequest(models.Issuance{ID: 1, ProductID: "p1", IssuedQuantity: 1})

	tm, _ := ComputeTiming(req, at(7))
	assert.Equal(t, StateOnTime, tm.State)
	assert.Equal(t, 3, tm.TimeLeftDays)

	tm, _ = ComputeTiming(req, at(12))
	assert.Equal(t, StateOverdue, tm.State)
	assert.Equal(t, 2, tm.DelayDays)

	req.CollectedDate = nil
	_, ok := ComputeTiming(req, at(1))
	assert.False(t, ok)
}

func TestCalendarDayUsesIST(t *testing.T) {
	// 20:00 UTC is 01:30 the next day in IST.
	utc := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, 2, CalendarDay(utc).Day())
	assert.Equal(t, 1, DaysBetween(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), utc))
}

func TestReIssueWindow(t *testing.T) {
	req := approvedRequest(models.Issuance{ID: 1, ProductID: "p1", IssuedQuantity: 1})
	req.AdminApprovedDays = 11 // opens after floor(11/2) = 5 days

	_, err := RequestReIssue(req, "ri1", 5, "need more time", at(4))
	assert.ErrorIs(t, err, ErrReIssueTooEarly)

	ri, err := RequestReIssue(req, "ri1", 5, "need more time", at(5))
	require.NoError(t, err)
	assert.Equal(t, models.ReIssuePending, ri.Status)
	assert.Equal(t, models.StatusReIssued, req.Status)

	_, err = RequestReIssue(req, "ri2", 3, "again", at(6))
	assert.ErrorIs(t, err, ErrReIssuePending)
}

func TestReIssueReviewStacks(t *testing.T) {
	req := approvedRequest(models.Issuance{ID: 1, ProductID: "p1", IssuedQuantity: 1})
	_, err := RequestReIssue(req, "ri1", 5, "first", at(5))
	require.NoError(t, err)

	ri, err := ReviewReIssue(req, "ri1", ReviewInput{Decision: models.ReIssueApproved, AdminApprovedDays: 4}, at(6))
	require.NoError(t, err)
	assert.Equal(t, 4, ri.AdminApprovedDays)
	assert.Equal(t, models.StatusApproved, req.Status)

	_, err = ReviewReIssue(req, "ri1", ReviewInput{Decision: models.ReIssueRejected, Message: "no"}, at(6))
	assert.ErrorIs(t, err, ErrReIssueNotPending)

	_, err = RequestReIssue(req, "ri2", 3, "second", at(7))
	require.NoError(t, err)
	_, err = ReviewReIssue(req, "ri2", ReviewInput{Decision: models.ReIssueApproved, AdminApprovedDays: 3}, at(8))
	require.NoError(t, err)

	assert.Equal(t, 7, ExtensionDays(req))
	expected, _ := ExpectedReturnDate(req)
	assert.Equal(t, CalendarDay(at(17)), expected)
}

func TestCompletingReturnRejectsPendingReIssue(t *testing.T) {
	req := approvedRequest(models.Issuance{ID: 1, ProductID: "p1", IssuedQuantity: 2})
	_, err := RequestReIssue(req, "ri1", 5, "first", at(5))
	require.NoError(t, err)

	out, err := ApplyReturn(req, "p1", ReturnInput{ReturnQuantity: 2}, "a", at(6))
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, 0, out.AutoRejected)
	assert.Equal(t, models.ReIssueRejected, req.ReIssued[0].Status)
	assert.Equal(t, AllReturnedMessage, req.ReIssued[0].AdminReturnMessage)
	assert.Nil(t, PendingReIssue(req))
}

func TestCollectionTimeout(t *testing.T) {
	req := &models.Request{
		Status:         models.StatusApproved,
		CollectionDate: ptr(day0),
		Issued:         []models.Issuance{{ProductID: "p1", IssuedQuantity: 4}, {ProductID: "p2", IssuedQuantity: 1}},
	}
	assert.False(t, ShouldClose(req, day0.Add(47*time.Hour), DefaultCollectionWindow))
	assert.True(t, ShouldClose(req, day0.Add(48*time.Hour), DefaultCollectionWindow))

	restock, err := Close(req, day0.Add(49*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, req.Status)
	assert.Equal(t, map[string]int{"p1": 4, "p2": 1}, restock)

	collected := approvedRequest()
	assert.False(t, ShouldClose(collected, at(10), DefaultCollectionWindow))
	_, err = Close(collected, at(10))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCollect(t *testing.T) {
	req := &models.Request{Status: models.StatusApproved}
	require.NoError(t, Collect(req, day0))
	assert.ErrorIs(t, Collect(req, day0), ErrAlreadyCollected)

	pending := &models.Request{Status: models.StatusPending}
	assert.ErrorIs(t, Collect(pending, day0), ErrNotCollectable)
}
