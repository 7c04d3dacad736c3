package db_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"lab_lending_tool/db"
	"lab_lending_tool/inventory"
	"lab_lending_tool/ledger"
	"lab_lending_tool/models"
	"lab_lending_tool/validation"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*db.Repo, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{})
	require.NoError(t, err)
	return db.NewRepo(gormDB), mock
}

var admin = db.Actor{ID: "5b0c8f7e-3c41-4a53-9d7e-2f5f3e0d8a11", RollNo: "ADMIN"}

func TestFindUserByRollNo_NotFound(t *testing.T) {
	repo, mock := setupMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_users"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))

	u, err := repo.FindUserByRollNo(context.Background(), "21cs001")
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.Nil(t, u)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProduct_ValidationSkipsDB(t *testing.T) {
	repo, mock := setupMockDB(t)
	_, err := repo.CreateProduct(context.Background(), inventory.ProductInput{Name: "LED", Quantity: 2, InStock: 3}, admin)

	var ve *validation.Errors
	assert.True(t, errors.As(err, &ve))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProduct_Success(t *testing.T) {
	repo, mock := setupMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "lab_products"`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "lab_audit_log"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1"))
	mock.ExpectCommit()

	p, err := repo.CreateProduct(context.Background(), inventory.ProductInput{
		Name: "  Arduino   Uno ", Quantity: 10, DamagedQuantity: 1, InStock: 9,
	}, admin)
	require.NoError(t, err)
	assert.Equal(t, "Arduino Uno", p.Name)
	assert.Equal(t, "arduinouno", p.NameKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProduct_DuplicateName(t *testing.T) {
	repo, mock := setupMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "lab_products"`)).
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_lab_products_name_key" (SQLSTATE 23505)`))
	mock.ExpectRollback()

	_, err := repo.CreateProduct(context.Background(), inventory.ProductInput{Name: "LED", Quantity: 1, InStock: 1}, admin)
	assert.ErrorIs(t, err, db.ErrNameTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProducts(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "lab_products"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_products"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "name_key", "quantity", "damaged_quantity", "in_stock", "created_at", "updated_at"}).
			AddRow("p1", "LED", "led", 10, 1, 4, now, now))

	page, err := repo.ListProducts(context.Background(), db.ProductQuery{Q: "le", LowStock: 5})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 5, page.Items[0].Issued)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var requestCols = []string{"id", "code", "user_id", "status", "requested_days", "admin_approved_days",
	"request_date", "collection_date", "collected_date"}

const (
	reqID  = "0f9f2a3e-8d8c-4c55-9a43-7c1a4c9d3b21"
	prodID = "9a7c3e52-1b4d-4f6e-8a2b-3c5d7e9f1a2b"
	riID   = "c2d4e6f8-0a1b-4c3d-9e5f-7a8b9c0d1e2f"
)

func expectChildren(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_requested_products"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_issuances"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_reissues"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))
}

func TestRejectRequest(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_requests"`)).
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow(reqID, "REQ-1", "u1", "pending", 5, 0, now, nil, nil))
	expectChildren(mock)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "lab_requests"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "lab_audit_log"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1"))
	mock.ExpectCommit()

	req, err := repo.RejectRequest(context.Background(), reqID, "out of stock", admin, now)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, req.Status)
	assert.Equal(t, "out of stock", req.AdminMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectRequest_WrongStatusRollsBack(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_requests"`)).
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow(reqID, "REQ-1", "u1", "returned", 5, 5, now, now, now))
	expectChildren(mock)
	mock.ExpectRollback()

	_, err := repo.RejectRequest(context.Background(), "REQ-1", "", admin, now)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseIfStale_Restocks(t *testing.T) {
	repo, mock := setupMockDB(t)
	mock.MatchExpectationsInOrder(false)
	now := time.Now()
	approvedAt := now.Add(-72 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_requests"`)).
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow(reqID, "REQ-1", "u1", "approved", 5, 5, approvedAt, approvedAt, nil))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_requested_products"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_issuances"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "product_id", "issued_quantity"}).
			AddRow(1, reqID, prodID, 3))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_returns"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))
	productRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "name", "name_key", "quantity", "damaged_quantity", "in_stock"}).
			AddRow(prodID, "LED", "led", 10, 0, 7)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_products"`)).WillReturnRows(productRows())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_products"`)).WillReturnRows(productRows())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_reissues"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "lab_products"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "lab_requests"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "lab_audit_log"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1"))
	mock.ExpectCommit()

	closed, err := repo.CloseIfStale(context.Background(), reqID, ledger.DefaultCollectionWindow, admin, now)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseIfStale_CollectedMeanwhile(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()
	approvedAt := now.Add(-72 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_requests"`)).
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow(reqID, "REQ-1", "u1", "approved", 5, 5, approvedAt, approvedAt, now.Add(-time.Hour)))
	expectChildren(mock)
	mock.ExpectCommit()

	closed, err := repo.CloseIfStale(context.Background(), reqID, ledger.DefaultCollectionWindow, admin, now)
	require.NoError(t, err)
	assert.False(t, closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReIssue_OnlyBorrower(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_requests"`)).
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow(reqID, "REQ-1", "someone-else", "approved", 5, 10, now, now, now.AddDate(0, 0, -6)))
	expectChildren(mock)
	mock.ExpectRollback()

	_, err := repo.CreateReIssue(context.Background(), reqID, 3, "need more time", db.Actor{ID: "u1"}, now)
	assert.ErrorIs(t, err, db.ErrForbidden)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRequestCode(t *testing.T) {
	c := db.NewRequestCode()
	assert.Regexp(t, `^REQ-[0-9A-F]{10}$`, c)
	assert.NotEqual(t, c, db.NewRequestCode())
}

func TestGetProduct_NonUUIDSkipsDB(t *testing.T) {
	repo, mock := setupMockDB(t)
	_, err := repo.GetProduct(context.Background(), "nope")
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = repo.GetReIssue(context.Background(), "abc")
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = repo.UpdateProduct(context.Background(), "1", inventory.ProductInput{Name: "LED", Quantity: 1, InStock: 1}, admin)
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func productRow(damaged, inStock int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "name_key", "quantity", "damaged_quantity", "in_stock"}).
		AddRow(prodID, "LED", "led", 10, damaged, inStock)
}

// expectLoan 期望锁住一张已领取的申请，带一行发放记录和已有的延期
func expectLoan(mock sqlmock.Sqlmock, status string, issued, damaged, inStock int, reissues *sqlmock.Rows) {
	collected := time.Now().AddDate(0, 0, -3)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_requests"`)).
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow(reqID, "REQ-1", "u1", status, 5, 10, collected, collected, collected))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_requested_products"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_issuances"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "product_id", "issued_quantity"}).
			AddRow(1, reqID, prodID, issued))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_products"`)).WillReturnRows(productRow(damaged, inStock))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_returns"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))
	if reissues == nil {
		reissues = sqlmock.NewRows([]string{})
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_reissues"`)).WillReturnRows(reissues)
}

func TestRecordReturn_DamageAndReplacement(t *testing.T) {
	repo, mock := setupMockDB(t)
	mock.MatchExpectationsInOrder(false)
	now := time.Now()

	expectLoan(mock, "approved", 5, 0, 5, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_products"`)).WillReturnRows(productRow(0, 5))
	// 4 还回：2 损坏（换新 1 个），好的 2 个回库，换新的 1 个出库
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "lab_products"`)).
		WithArgs(2, 6, sqlmock.AnyArg(), prodID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "lab_returns"`)).
		WithArgs(1, 4, 2, 1, 1, sqlmock.AnyArg(), admin.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "lab_requests"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "lab_audit_log"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1"))
	mock.ExpectCommit()

	req, out, err := repo.RecordReturn(context.Background(), reqID, db.ReturnSubmission{
		ProductID: prodID,
		ReturnInput: ledger.ReturnInput{
			ReturnQuantity: 4, DamagedQuantity: 2, UserDamagedQuantity: 1, ReplacedQuantity: 1,
		},
	}, admin, now)
	require.NoError(t, err)
	assert.Equal(t, ledger.StockEffect{ProductID: prodID, InStockDelta: 1, DamagedDelta: 2}, out.Effect)
	assert.EqualValues(t, 7, out.Event.ID)
	assert.False(t, out.Completed)
	assert.Equal(t, models.StatusApproved, req.Status)
	assert.Equal(t, 2, ledger.Remaining(req.Issued[0]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordReturn_ReplacementShortfallRollsBack(t *testing.T) {
	repo, mock := setupMockDB(t)
	mock.MatchExpectationsInOrder(false)

	expectLoan(mock, "approved", 1, 0, 0, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_products"`)).WillReturnRows(productRow(0, 0))
	mock.ExpectRollback()

	_, _, err := repo.RecordReturn(context.Background(), reqID, db.ReturnSubmission{
		ProductID:   prodID,
		ReturnInput: ledger.ReturnInput{ReturnQuantity: 1, DamagedQuantity: 1, ReplacedQuantity: 1},
	}, admin, time.Now())
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordReturn_CompletionRejectsPendingReIssue(t *testing.T) {
	repo, mock := setupMockDB(t)
	mock.MatchExpectationsInOrder(false)
	now := time.Now()

	reissues := sqlmock.NewRows([]string{"id", "request_id", "status", "requested_days", "re_issued_date"}).
		AddRow(riID, reqID, "pending", 3, now.AddDate(0, 0, -1))
	expectLoan(mock, "reIssued", 2, 0, 8, reissues)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_products"`)).WillReturnRows(productRow(0, 8))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "lab_products"`)).
		WithArgs(0, 10, sqlmock.AnyArg(), prodID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "lab_returns"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "lab_reissues"`)).
		WithArgs(ledger.AllReturnedMessage, sqlmock.AnyArg(), "rejected", riID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "lab_requests"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "lab_audit_log"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1"))
	mock.ExpectCommit()

	req, out, err := repo.RecordReturn(context.Background(), "REQ-1", db.ReturnSubmission{
		ProductName: "led ",
		ReturnInput: ledger.ReturnInput{ReturnQuantity: 2},
	}, admin, now)
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, 0, out.AutoRejected)
	assert.Equal(t, models.StatusReturned, req.Status)
	require.NotNil(t, req.AllReturnedDate)
	assert.Equal(t, models.ReIssueRejected, req.ReIssued[0].Status)
	assert.Equal(t, ledger.AllReturnedMessage, req.ReIssued[0].AdminReturnMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordReturn_ZeroQuantityWritesNothing(t *testing.T) {
	repo, mock := setupMockDB(t)
	mock.MatchExpectationsInOrder(false)

	expectLoan(mock, "approved", 2, 0, 8, nil)
	mock.ExpectCommit()

	req, out, err := repo.RecordReturn(context.Background(), reqID, db.ReturnSubmission{ProductID: prodID}, admin, time.Now())
	require.NoError(t, err)
	assert.True(t, out.NoOp)
	assert.Equal(t, 2, ledger.Remaining(req.Issued[0]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectPending(mock sqlmock.Sqlmock, now time.Time) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_requests"`)).
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow(reqID, "REQ-1", "u1", "pending", 5, 0, now, nil, nil))
	expectChildren(mock)
}

func TestApproveRequest_TakesStock(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	expectPending(mock, now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_products"`)).WillReturnRows(productRow(1, 5))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "lab_products"`)).
		WithArgs(1, 2, sqlmock.AnyArg(), prodID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "lab_issuances"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "lab_requests"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "lab_audit_log"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1"))
	mock.ExpectCommit()

	req, err := repo.ApproveRequest(context.Background(), reqID, ledger.ApproveInput{
		Lines:             []ledger.Line{{ProductID: prodID, Quantity: 3}},
		AdminApprovedDays: 7,
	}, admin, now)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, req.Status)
	require.Len(t, req.Issued, 1)
	assert.Equal(t, 3, req.Issued[0].IssuedQuantity)
	assert.Equal(t, 2, req.Issued[0].Product.InStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveRequest_OverStockRollsBack(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	expectPending(mock, now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lab_products"`)).WillReturnRows(productRow(0, 2))
	mock.ExpectRollback()

	_, err := repo.ApproveRequest(context.Background(), reqID, ledger.ApproveInput{
		Lines:             []ledger.Line{{ProductID: prodID, Quantity: 5}},
		AdminApprovedDays: 7,
	}, admin, now)
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveRequest_UnknownProductID(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	expectPending(mock, now)
	mock.ExpectRollback()

	_, err := repo.ApproveRequest(context.Background(), reqID, ledger.ApproveInput{
		Lines:             []ledger.Line{{ProductID: "p1", Quantity: 1}},
		AdminApprovedDays: 7,
	}, admin, now)
	assert.ErrorIs(t, err, db.ErrUnknownProduct)
	assert.NoError(t, mock.ExpectationsWereMet())
}
