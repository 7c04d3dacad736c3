package controllers

import (
	"net/http"
	"strconv"

	"lab_lending_tool/app"
	"lab_lending_tool/db"
	"lab_lending_tool/logger"
	"lab_lending_tool/stats"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserController struct{ *Srv }

func NewUserController(s *Srv) *UserController { return &UserController{Srv: s} }

// GET /api/users/get?q=21cs&active=false&page=1&size=20
func (uc *UserController) ListUsers(c *gin.Context) {
	page, size := pageParams(c)
	var active *bool
	if v := c.Query("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, app.H{"error": "active must be true or false"})
			return
		}
		active = &b
	}
	res, err := uc.Repo.ListUsers(c.Request.Context(), c.Query("q"), active, page, size)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/users/get/:rollNo
func (uc *UserController) GetUser(c *gin.Context) {
	u, err := uc.Repo.FindUserByRollNo(c.Request.Context(), c.Param("rollNo"))
	if err != nil {
		fail(c, err)
		return
	}
	n, _ := uc.Repo.CountCredentials(c.Request.Context(), u.ID)
	c.JSON(http.StatusOK, app.H{"user": u, "passkeys": n})
}

type updateUserReq struct {
	Name       *string `json:"name" binding:"omitempty,min=1,max=255"`
	Email      *string `json:"email" binding:"omitempty,email"`
	Phone      *string `json:"phone" binding:"omitempty,phone"`
	Department *string `json:"department" binding:"omitempty,max=120"`
	IsFaculty  *bool   `json:"isFaculty"`
	IsAdmin    *bool   `json:"isAdmin"`
	IsActive   *bool   `json:"isActive"`
}

// PUT /api/users/update/:rollNo
// 普通用户只能改自己的资料；角色和激活状态只有管理员能改
func (uc *UserController) UpdateUser(c *gin.Context) {
	var in updateUserReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	me := app.CurrentUser(c)
	target, err := uc.Repo.FindUserByRollNo(c.Request.Context(), c.Param("rollNo"))
	if err != nil {
		fail(c, err)
		return
	}
	if !me.IsAdmin {
		if target.ID != me.ID {
			c.JSON(http.StatusForbidden, app.H{"error": "forbidden"})
			return
		}
		if in.IsAdmin != nil || in.IsActive != nil || in.IsFaculty != nil {
			c.JSON(http.StatusForbidden, app.H{"error": "only admins can change roles or activation"})
			return
		}
	}
	if me.ID == target.ID && in.IsAdmin != nil && !*in.IsAdmin {
		c.JSON(http.StatusBadRequest, app.H{"error": "cannot remove your own admin role"})
		return
	}

	u, err := uc.Repo.UpdateUser(c.Request.Context(), target.RollNo, db.UserUpdate{
		Name:       in.Name,
		Email:      in.Email,
		Phone:      in.Phone,
		Department: in.Department,
		IsFaculty:  in.IsFaculty,
		IsAdmin:    in.IsAdmin,
		IsActive:   in.IsActive,
	}, app.ActorOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	// 停用账号时撤销所有 refresh token
	if in.IsActive != nil && !*in.IsActive {
		if err := uc.Refresh.RevokeAllForUser(c.Request.Context(), u.ID); err != nil {
			logger.For(c).Warn("revoke refresh tokens failed", zap.String("user_id", u.ID), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, app.H{"user": u})
}

// GET /api/users/stats  管理员可以带 ?rollNo= 查别人
func (uc *UserController) Stats(c *gin.Context) {
	me := app.CurrentUser(c)
	uid := me.ID
	if rn := c.Query("rollNo"); rn != "" && me.IsAdmin {
		u, err := uc.Repo.FindUserByRollNo(c.Request.Context(), rn)
		if err != nil {
			fail(c, err)
			return
		}
		uid = u.ID
	}
	reqs, err := uc.Repo.RequestsForStats(c.Request.Context(), db.RequestQuery{UserID: uid})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats.ForUser(reqs, uc.clock()))
}
