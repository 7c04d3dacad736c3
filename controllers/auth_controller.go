package controllers

import (
	"errors"
	"net/http"
	"strings"

	"lab_lending_tool/app"
	"lab_lending_tool/db"
	"lab_lending_tool/logger"
	"lab_lending_tool/models"
	"lab_lending_tool/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuthController struct{ *Srv }

func NewAuthController(s *Srv) *AuthController { return &AuthController{Srv: s} }

type registerReq struct {
	RollNo     string `json:"rollNo" binding:"required,rollno"`
	Name       string `json:"name" binding:"required,max=255"`
	Email      string `json:"email" binding:"required,email"`
	Phone      string `json:"phone" binding:"required,phone"`
	Department string `json:"department" binding:"max=120"`
	IsFaculty  bool   `json:"isFaculty"`
	Password   string `json:"password" binding:"required,min=8,max=72"`
}

// POST /api/auth/register
// 新账号默认未激活，等管理员在用户管理里激活
func (ac *AuthController) Register(c *gin.Context) {
	var in registerReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	u := &models.User{
		ID:         uuid.NewString(),
		RollNo:     in.RollNo,
		Name:       strings.TrimSpace(in.Name),
		Email:      in.Email,
		Phone:      strings.ReplaceAll(in.Phone, " ", ""),
		Department: strings.TrimSpace(in.Department),
		IsFaculty:  in.IsFaculty,
	}
	if err := u.SetPassword(in.Password); err != nil {
		fail(c, err)
		return
	}
	if err := ac.Repo.CreateUser(c.Request.Context(), u); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			c.JSON(http.StatusConflict, app.H{"error": "roll number or email already registered"})
			return
		}
		fail(c, err)
		return
	}
	pair, err := ac.issueTokens(c, u)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, pair)
}

type loginReq struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /api/auth/login  login 可以是学号或邮箱
func (ac *AuthController) Login(c *gin.Context) {
	var in loginReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	u, err := ac.Repo.FindUserByLogin(c.Request.Context(), in.Login)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		fail(c, err)
		return
	}
	if u == nil || u.CheckPassword(in.Password) != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": models.ErrBadPassword.Error()})
		return
	}
	pair, err := ac.issueTokens(c, u)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

func (ac *AuthController) refreshTokenFrom(c *gin.Context) string {
	var in refreshReq
	_ = c.ShouldBindJSON(&in)
	if in.RefreshToken != "" {
		return in.RefreshToken
	}
	if ck, err := c.Request.Cookie(refreshCookie); err == nil {
		return ck.Value
	}
	return ""
}

// POST /api/refresh-token  轮换 refresh token，旧的立即失效
func (ac *AuthController) RefreshToken(c *gin.Context) {
	raw := ac.refreshTokenFrom(c)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, app.H{"error": "missing refresh token"})
		return
	}
	ctx := c.Request.Context()
	uid, next, err := ac.Refresh.Rotate(ctx, raw)
	if err != nil {
		if errors.Is(err, session.ErrRefreshInvalid) {
			c.JSON(http.StatusUnauthorized, app.H{"error": err.Error()})
			return
		}
		fail(c, err)
		return
	}
	u, err := ac.Repo.FindUserByID(ctx, uid)
	if err != nil {
		_ = ac.Refresh.Delete(ctx, next)
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	access, exp, err := ac.Tokens.Issue(u.ID, u.RollNo, u.IsAdmin)
	if err != nil {
		fail(c, err)
		return
	}
	ac.setRefreshCookie(c.Writer, next, ac.Refresh.TTL())
	c.JSON(http.StatusOK, tokenPair{AccessToken: access, ExpiresAt: exp, RefreshToken: next, User: u})
}

// GET /api/verify-token  未激活用户也能调用
func (ac *AuthController) VerifyToken(c *gin.Context) {
	u := app.CurrentUser(c)
	if u == nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, app.H{
		"valid":    true,
		"isAdmin":  u.IsAdmin,
		"isActive": u.IsActive,
		"user":     u,
	})
}

// POST /api/auth/logout  ?all=true 撤销该用户所有 refresh token
func (ac *AuthController) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Query("all") == "true" {
		if err := ac.Refresh.RevokeAllForUser(ctx, c.GetString("userID")); err != nil {
			logger.For(c).Warn("revoke refresh tokens failed", zap.Error(err))
		}
	} else if raw := ac.refreshTokenFrom(c); raw != "" {
		_ = ac.Refresh.Delete(ctx, raw)
	}
	ac.setRefreshCookie(c.Writer, "", -1)
	c.JSON(http.StatusOK, app.H{"ok": true})
}
