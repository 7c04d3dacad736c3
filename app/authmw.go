package app

import (
	"net/http"
	"strings"

	"lab_lending_tool/db"
	"lab_lending_tool/models"
	"lab_lending_tool/session"

	"github.com/gin-gonic/gin"
)

const userKey = "user"

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// AuthRequired 校验 access token 并加载用户（只查一次库）
func AuthRequired(tokens *session.Tokens, repo *db.Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid or expired token"})
			return
		}
		u, err := repo.FindUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		c.Set("userID", u.ID)
		c.Set("rollNo", u.RollNo)
		c.Set("isAdmin", u.IsAdmin)
		c.Set(userKey, u)
		c.Next()
	}
}

// ActiveOnly 账号未激活的用户只能调用 verify-token
func ActiveOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		if !u.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, H{"error": "account is not active yet"})
			return
		}
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool("isAdmin") {
			c.AbortWithStatusJSON(http.StatusForbidden, H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user loaded by AuthRequired, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

func ActorOf(c *gin.Context) db.Actor {
	return db.Actor{ID: c.GetString("userID"), RollNo: c.GetString("rollNo")}
}
