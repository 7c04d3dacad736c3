package models

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadPassword = errors.New("invalid credentials")

const UserTable = "lab_users"

// User 使用 UUID 字节作为 WebAuthn userHandle（存字符串即可，用时转 []byte）
type User struct {
	ID           string `gorm:"primaryKey;type:uuid" json:"id"`
	RollNo       string `gorm:"uniqueIndex;size:64;not null" json:"rollNo"`
	Name         string `gorm:"size:255;not null" json:"name"`
	Email        string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Phone        string `gorm:"size:20" json:"phone"`
	Department   string `gorm:"size:120" json:"department,omitempty"`
	PasswordHash string `gorm:"size:100;not null" json:"-"`

	IsFaculty bool `gorm:"not null;default:false" json:"isFaculty"`
	IsAdmin   bool `gorm:"not null;default:false" json:"isAdmin"`
	IsActive  bool `gorm:"not null;default:false" json:"isActive"`

	LastLoginAt *time.Time `gorm:"index" json:"lastLoginAt,omitempty"`
	LastSeenAt  *time.Time `gorm:"index" json:"lastSeenAt,omitempty"`
	LoginCount  int64      `gorm:"not null;default:0" json:"loginCount"`
	LastLoginIP string     `gorm:"size:45" json:"-"`
	LastLoginUA string     `gorm:"size:255" json:"-"`

	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Credentials []Credential `json:"-"`
}

func (User) TableName() string {
	return UserTable
}

// SetPassword 保存 bcrypt 哈希
func (u *User) SetPassword(plain string) error {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(h)
	return nil
}

func (u *User) CheckPassword(plain string) error {
	if u.PasswordHash == "" {
		return ErrBadPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)); err != nil {
		return ErrBadPassword
	}
	return nil
}

// Credential 为每个注册的 Passkey 存档
// CredentialID / PublicKey 为二进制，Postgres 下为 bytea
type Credential struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          string    `gorm:"type:uuid;index" json:"userId"`
	CredentialID    []byte    `gorm:"uniqueIndex" json:"credentialId"`
	PublicKey       []byte    `json:"-"`
	AttestationType string    `gorm:"size:64" json:"attestationType"`
	AAGUID          []byte    `gorm:"type:bytea" json:"aaguid"`
	SignCount       uint32    `json:"signCount"`
	CloneWarning    bool      `json:"cloneWarning"`
	BackupEligible  bool      `json:"backupEligible"`
	BackupState     bool      `json:"backupState"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	LastUsedAt *time.Time `gorm:"index" json:"lastUsedAt,omitempty"`
}

func (Credential) TableName() string { return "lab_credentials" }
