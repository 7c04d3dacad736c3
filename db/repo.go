package db

import (
	"context"
	"strings"

	"lab_lending_tool/models"

	"gorm.io/gorm"
)

type Repo struct{ DB *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

// Actor 记录是谁做的操作
type Actor struct {
	ID     string
	RollNo string
}

// SystemActor 后台任务用
var SystemActor = Actor{RollNo: "system"}

// Users

func (r *Repo) TouchUserLogin(ctx context.Context, userID, ip, ua string) error {
	// 用数据库时间，计数自增避免并发覆盖
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login_at": gorm.Expr("NOW()"),
			"last_seen_at":  gorm.Expr("NOW()"),
			"login_count":   gorm.Expr("COALESCE(login_count, 0) + 1"),
			"last_login_ip": ip,
			"last_login_ua": ua,
		}).Error
}

func (r *Repo) TouchUserSeen(ctx context.Context, userID string) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_seen_at", gorm.Expr("NOW()")).Error
}

func (r *Repo) CreateUser(ctx context.Context, u *models.User) error {
	u.RollNo = strings.ToUpper(strings.TrimSpace(u.RollNo))
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return normalize(r.DB.WithContext(ctx).Create(u).Error)
}

func (r *Repo) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, normalize(err)
	}
	return &u, nil
}

func (r *Repo) FindUserByRollNo(ctx context.Context, rollNo string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).
		First(&u, "roll_no = ?", strings.ToUpper(strings.TrimSpace(rollNo))).Error; err != nil {
		return nil, normalize(err)
	}
	return &u, nil
}

// FindUserByLogin 用学号或邮箱登录
func (r *Repo) FindUserByLogin(ctx context.Context, login string) (*models.User, error) {
	login = strings.TrimSpace(login)
	var u models.User
	if err := r.DB.WithContext(ctx).
		Where("roll_no = ? OR email = ?", strings.ToUpper(login), strings.ToLower(login)).
		First(&u).Error; err != nil {
		return nil, normalize(err)
	}
	return &u, nil
}

func (r *Repo) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.User{}).Where("is_admin = ?", true).Count(&n).Error
	return n, err
}

type ListUsersResult struct {
	Users []models.User `json:"users"`
	Total int64         `json:"total"`
}

// ListUsers 分页 + 关键词（学号/姓名/邮箱）
func (r *Repo) ListUsers(ctx context.Context, q string, active *bool, page, size int) (ListUsersResult, error) {
	page, size = clampPage(page, size)

	tx := r.DB.WithContext(ctx).Model(&models.User{})
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		tx = tx.Where("LOWER(roll_no) LIKE ? OR LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like, like)
	}
	if active != nil {
		tx = tx.Where("is_active = ?", *active)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return ListUsersResult{}, err
	}
	var users []models.User
	if err := tx.
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&users).Error; err != nil {
		return ListUsersResult{}, err
	}
	return ListUsersResult{Users: users, Total: total}, nil
}

// UserUpdate 为 nil 的字段不改
type UserUpdate struct {
	Name       *string
	Email      *string
	Phone      *string
	Department *string
	IsFaculty  *bool
	IsAdmin    *bool
	IsActive   *bool
}

func (u UserUpdate) columns() map[string]any {
	cols := map[string]any{}
	if u.Name != nil {
		cols["name"] = strings.TrimSpace(*u.Name)
	}
	if u.Email != nil {
		cols["email"] = strings.ToLower(strings.TrimSpace(*u.Email))
	}
	if u.Phone != nil {
		cols["phone"] = strings.TrimSpace(*u.Phone)
	}
	if u.Department != nil {
		cols["department"] = strings.TrimSpace(*u.Department)
	}
	if u.IsFaculty != nil {
		cols["is_faculty"] = *u.IsFaculty
	}
	if u.IsAdmin != nil {
		cols["is_admin"] = *u.IsAdmin
	}
	if u.IsActive != nil {
		cols["is_active"] = *u.IsActive
	}
	return cols
}

// UpdateUser applies upd to the user with rollNo and writes an audit entry
// when an admin changed someone else's record.
func (r *Repo) UpdateUser(ctx context.Context, rollNo string, upd UserUpdate, actor Actor) (*models.User, error) {
	var u models.User
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).
			First(&u, "roll_no = ?", strings.ToUpper(strings.TrimSpace(rollNo))).Error; err != nil {
			return normalize(err)
		}
		cols := upd.columns()
		if len(cols) == 0 {
			return nil
		}
		if err := tx.Model(&u).Updates(cols).Error; err != nil {
			return normalize(err)
		}
		if actor.ID != u.ID {
			return logAction(tx, actor, models.ActionUserUpdate, u.ID, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) SetPassword(ctx context.Context, userID, hash string) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("password_hash", hash).Error
}

// Credentials

func (r *Repo) LoadUserCredentials(ctx context.Context, userID string) ([]models.Credential, error) {
	var cs []models.Credential
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&cs).Error; err != nil {
		return nil, err
	}
	return cs, nil
}

func (r *Repo) AddCredential(ctx context.Context, c *models.Credential) error {
	return normalize(r.DB.WithContext(ctx).Create(c).Error)
}

func (r *Repo) CountCredentials(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Credential{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

// UpdateCredentialUse 登录成功后更新签名计数和使用时间
func (r *Repo) UpdateCredentialUse(ctx context.Context, credID []byte, signCount uint32, cloneWarn bool) error {
	return r.DB.WithContext(ctx).Model(&models.Credential{}).
		Where("credential_id = ?", credID).
		Updates(map[string]any{
			"sign_count":    signCount,
			"clone_warning": cloneWarn,
			"last_used_at":  gorm.Expr("NOW()"),
		}).Error
}

func (r *Repo) FindUserByCredentialID(ctx context.Context, credID []byte) (*models.User, error) {
	var c models.Credential
	if err := r.DB.WithContext(ctx).Where("credential_id = ?", credID).First(&c).Error; err != nil {
		return nil, normalize(err)
	}
	return r.FindUserByID(ctx, c.UserID)
}

func clampPage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
