// controllers/srv.go
package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lab_lending_tool/app"
	"lab_lending_tool/db"
	"lab_lending_tool/inventory"
	"lab_lending_tool/ledger"
	"lab_lending_tool/logger"
	"lab_lending_tool/models"
	"lab_lending_tool/session"
	"lab_lending_tool/validation"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const refreshCookie = "lab_refresh"

type Srv struct {
	WA        *webauthn.WebAuthn
	Repo      *db.Repo
	Tokens    *session.Tokens
	Refresh   *session.RefreshStore
	Passkeys  *session.PasskeyStore
	Imports   *session.ImportStore
	Dash      *session.DashboardCache
	WebOrigin string
	Cfg       app.Config

	now func() time.Time
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		WA:        a.WA,
		Repo:      db.NewRepo(a.DB),
		Tokens:    a.Tokens,
		Refresh:   a.Refresh,
		Passkeys:  a.Passkeys,
		Imports:   a.Imports,
		Dash:      a.Dash,
		WebOrigin: a.Config.WebOrigin,
		Cfg:       a.Config,
		now:       time.Now,
	}
}

func (s *Srv) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// --- helpers ---

// fail 把领域错误映射成 HTTP 状态码
func fail(c *gin.Context, err error) {
	var ve *validation.Errors
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, app.H{"error": "validation failed", "fields": ve.Fields})
	case errors.Is(err, db.ErrNotFound), errors.Is(err, ledger.ErrReIssueNotFound):
		c.JSON(http.StatusNotFound, app.H{"error": "not found"})
	case errors.Is(err, db.ErrForbidden):
		c.JSON(http.StatusForbidden, app.H{"error": err.Error()})
	case errors.Is(err, db.ErrDuplicate),
		errors.Is(err, db.ErrNameTaken),
		errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, ledger.ErrReIssuePending),
		errors.Is(err, ledger.ErrReIssueNotPending),
		errors.Is(err, ledger.ErrReIssueNotAllowed),
		errors.Is(err, ledger.ErrReIssueTooEarly),
		errors.Is(err, ledger.ErrAlreadyCollected),
		errors.Is(err, ledger.ErrNotCollectable),
		errors.Is(err, ledger.ErrNotReturnable),
		errors.Is(err, ledger.ErrNotCollected):
		c.JSON(http.StatusConflict, app.H{"error": err.Error()})
	case errors.Is(err, db.ErrUnknownProduct),
		errors.Is(err, ledger.ErrProductNotIssued),
		errors.Is(err, ledger.ErrNegativeQuantity),
		errors.Is(err, ledger.ErrReturnQuantity),
		errors.Is(err, ledger.ErrDamagedExceedsReturn),
		errors.Is(err, ledger.ErrUserDamagedExceeds),
		errors.Is(err, ledger.ErrReplacedExceeds),
		errors.Is(err, inventory.ErrUnsupportedFile),
		errors.Is(err, inventory.ErrEmptySheet),
		errors.Is(err, inventory.ErrTooManyRows):
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
	case errors.Is(err, session.ErrImportExpired):
		c.JSON(http.StatusGone, app.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, app.H{"error": "timed out"})
	default:
		logger.For(c).Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, app.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	return page, size
}

// parseDay 接受 2006-01-02 或 RFC3339，前者按 IST 零点
func parseDay(s string) (*time.Time, error) {
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, ledger.IST); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, errors.New("dates must be YYYY-MM-DD or RFC3339")
	}
	return &t, nil
}

// 任何写操作之后让看板缓存失效
func (s *Srv) changed(c *gin.Context) {
	s.Dash.Invalidate(c.Request.Context())
}

// 统一设置 refresh token Cookie
func (s *Srv) setRefreshCookie(w http.ResponseWriter, value string, maxAge time.Duration) {
	secure := strings.HasPrefix(s.WebOrigin, "https://")
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    value,
		Path:     "/api",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		MaxAge:   int(maxAge / time.Second),
	})
}

type tokenPair struct {
	AccessToken  string       `json:"accessToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	RefreshToken string       `json:"refreshToken"`
	User         *models.User `json:"user"`
}

// 登录成功：签发 access + refresh，并记一次登录快照
func (s *Srv) issueTokens(c *gin.Context, u *models.User) (*tokenPair, error) {
	ctx := c.Request.Context()
	if err := s.Repo.TouchUserLogin(ctx, u.ID, c.ClientIP(), c.Request.UserAgent()); err != nil {
		logger.For(c).Warn("touch login failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	access, exp, err := s.Tokens.Issue(u.ID, u.RollNo, u.IsAdmin)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Refresh.Create(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	s.setRefreshCookie(c.Writer, refresh, s.Refresh.TTL())
	return &tokenPair{AccessToken: access, ExpiresAt: exp, RefreshToken: refresh, User: u}, nil
}

// WebAuthn: DB user -> waUser
type waUser struct {
	user  models.User
	creds []webauthn.Credential
}

func (u *waUser) WebAuthnID() []byte                         { id, _ := uuid.Parse(u.user.ID); return id[:] }
func (u *waUser) WebAuthnName() string                       { return u.user.RollNo }
func (u *waUser) WebAuthnDisplayName() string                { return u.user.Name }
func (u *waUser) WebAuthnIcon() string                       { return "" }
func (u *waUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func toWaCred(c models.Credential) webauthn.Credential {
	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Authenticator: webauthn.Authenticator{
			AAGUID:       c.AAGUID,
			SignCount:    c.SignCount,
			CloneWarning: c.CloneWarning,
		},
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
	}
}

func (s *Srv) waUserFor(ctx context.Context, u *models.User) (*waUser, error) {
	cs, err := s.Repo.LoadUserCredentials(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	ws := make([]webauthn.Credential, 0, len(cs))
	for _, c := range cs {
		ws = append(ws, toWaCred(c))
	}
	return &waUser{user: *u, creds: ws}, nil
}
