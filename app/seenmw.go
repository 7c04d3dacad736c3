package app

import (
	"time"

	"lab_lending_tool/db"
	"lab_lending_tool/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TouchLastSeen 节流更新 last_seen_at，每个用户 throttle 内最多写一次库
func TouchLastSeen(repo *db.Repo, rdb *redis.Client, throttle time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString("userID")
		if uid == "" {
			c.Next()
			return
		}
		key := "lab:lastseen:" + uid
		if ok, _ := rdb.SetNX(c, key, "1", throttle).Result(); ok {
			if err := repo.TouchUserSeen(c, uid); err != nil {
				logger.For(c).Debug("touch last seen failed", zap.String("user_id", uid), zap.Error(err))
			}
		}
		c.Next()
	}
}
