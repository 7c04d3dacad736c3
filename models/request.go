// models/request.go
package models

import "time"

const (
	RequestTable  = "lab_requests"
	IssuanceTable = "lab_issuances"
	ReturnTable   = "lab_returns"
	ReIssueTable  = "lab_reissues"
)

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
	StatusReturned RequestStatus = "returned"
	StatusClosed   RequestStatus = "closed"
	StatusReIssued RequestStatus = "reIssued"

	// StatusAccepted 只作为输入别名，落库前统一成 approved
	StatusAccepted RequestStatus = "accepted"
)

var RequestStatuses = []RequestStatus{
	StatusPending, StatusApproved, StatusRejected, StatusReturned, StatusClosed, StatusReIssued,
}

// Request 一次借用申请
type Request struct {
	ID     string `gorm:"type:uuid;primaryKey" json:"id"`
	Code   string `gorm:"size:32;uniqueIndex;not null" json:"requestId"`
	UserID string `gorm:"type:uuid;index;not null" json:"userId"`
	User   *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`

	RequestedProducts []RequestedProduct `gorm:"foreignKey:RequestID" json:"requestedProducts"`
	RequestedDays     int                `gorm:"not null" json:"requestedDays"`
	ReferenceStaff    string             `gorm:"size:255" json:"referenceStaff,omitempty"`
	Description       string             `gorm:"type:text" json:"description"`

	Status            RequestStatus `gorm:"size:20;index;not null;default:'pending'" json:"status"`
	AdminApprovedDays int           `gorm:"not null;default:0" json:"adminApprovedDays"`
	AdminMessage      string        `gorm:"type:text" json:"adminMessage,omitempty"`

	Issued   []Issuance `gorm:"foreignKey:RequestID" json:"issued"`
	ReIssued []ReIssue  `gorm:"foreignKey:RequestID" json:"reIssued"`

	RequestDate     time.Time  `gorm:"index;not null" json:"requestDate"`
	ApprovedDate    *time.Time `json:"approvedDate,omitempty"`
	CollectionDate  *time.Time `gorm:"index" json:"collectionDate,omitempty"`
	CollectedDate   *time.Time `json:"collectedDate,omitempty"`
	AllReturnedDate *time.Time `gorm:"column:all_returned_date" json:"AllReturnedDate,omitempty"`
	ClosedDate      *time.Time `json:"closedDate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RequestedProduct 用户申请的一行；提交后不可改
type RequestedProduct struct {
	ID        uint     `gorm:"primaryKey" json:"-"`
	RequestID string   `gorm:"type:uuid;index;not null" json:"-"`
	Position  int      `gorm:"not null" json:"-"`
	ProductID string   `gorm:"type:uuid;not null" json:"productId"`
	Product   *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Quantity  int      `gorm:"not null" json:"quantity"`
}

// Issuance 管理员实际发放的一行（可以和申请不同）
type Issuance struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	RequestID      string        `gorm:"type:uuid;index;not null" json:"-"`
	ProductID      string        `gorm:"type:uuid;index;not null" json:"issuedProductId"`
	Product        *Product      `gorm:"foreignKey:ProductID" json:"issuedProduct,omitempty"`
	IssuedQuantity int           `gorm:"not null" json:"issuedQuantity"`
	Returns        []ReturnEvent `gorm:"foreignKey:IssuanceID" json:"return"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// ReturnEvent 归还台账的一条，只追加不修改
type ReturnEvent struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	IssuanceID          uint      `gorm:"index;not null" json:"-"`
	ReturnedQuantity    int       `gorm:"not null" json:"returnedQuantity"`
	DamagedQuantity     int       `gorm:"not null;default:0" json:"damagedQuantity"`
	UserDamagedQuantity int       `gorm:"not null;default:0" json:"userDamagedQuantity"`
	ReplacedQuantity    int       `gorm:"not null;default:0" json:"replacedQuantity"`
	ReturnDate          time.Time `gorm:"not null" json:"returnDate"`
	RecordedBy          string    `gorm:"type:uuid" json:"recordedBy,omitempty"`
}

type ReIssueStatus string

const (
	ReIssuePending  ReIssueStatus = "pending"
	ReIssueApproved ReIssueStatus = "approved"
	ReIssueRejected ReIssueStatus = "rejected"
)

// ReIssue 延期申请
type ReIssue struct {
	ID                 string        `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID          string        `gorm:"type:uuid;index;not null" json:"requestRef"`
	Status             ReIssueStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	RequestedDays      int           `gorm:"not null" json:"requestedDays"`
	AdminApprovedDays  int           `gorm:"not null;default:0" json:"adminApprovedDays"`
	RequestDescription string        `gorm:"type:text" json:"requestDescription"`
	AdminReturnMessage string        `gorm:"type:text" json:"adminReturnMessage,omitempty"`
	ReIssuedDate       time.Time     `gorm:"not null" json:"reIssuedDate"`
	ReviewedDate       *time.Time    `json:"reviewedDate,omitempty"`
}

func (Request) TableName() string          { return RequestTable }
func (RequestedProduct) TableName() string { return "lab_requested_products" }
func (Issuance) TableName() string         { return IssuanceTable }
func (ReturnEvent) TableName() string      { return ReturnTable }
func (ReIssue) TableName() string          { return ReIssueTable }
