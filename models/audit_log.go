package models

import "time"

// Audit actions
const (
	ActionApprove       = "request.approve"
	ActionReject        = "request.reject"
	ActionCollect       = "request.collect"
	ActionReturn        = "request.return"
	ActionClose         = "request.close"
	ActionReIssueReview = "reissue.review"
	ActionProductCreate = "product.create"
	ActionProductUpdate = "product.update"
	ActionProductImport = "product.import"
	ActionUserUpdate    = "user.update"
)

// AuditLog 记录管理员操作的审计信息；系统任务的 ActorID 为空
type AuditLog struct {
	ID          string    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ActorID     *string   `gorm:"type:uuid;index" json:"actorId,omitempty"`
	ActorRollNo string    `gorm:"size:64" json:"actorRollNo"`
	Action      string    `gorm:"size:40;index;not null" json:"action"`
	TargetID    string    `gorm:"size:64;index" json:"targetId"`
	Reason      *string   `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (AuditLog) TableName() string { return "lab_audit_log" }
