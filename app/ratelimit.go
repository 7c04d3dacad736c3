package app

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

// RateLimiter 按客户端 IP 限流
type RateLimiter struct {
	mu    sync.Mutex
	ips   map[string]*visitor
	rate  rate.Limit
	burst int
	idle  time.Duration
}

func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{ips: make(map[string]*visitor), rate: r, burst: b, idle: 10 * time.Minute}
}

func (rl *RateLimiter) limiter(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// 顺手清理长时间没来的 IP
	if len(rl.ips) > 1024 {
		for k, v := range rl.ips {
			if now.Sub(v.seen) > rl.idle {
				delete(rl.ips, k)
			}
		}
	}
	v, ok := rl.ips[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.ips[ip] = v
	}
	v.seen = now
	return v.limiter
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(c.ClientIP(), time.Now()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// AuthRateLimit 登录类接口用的较严格限流
func AuthRateLimit() gin.HandlerFunc {
	return NewRateLimiter(rate.Every(time.Minute/20), 10).Middleware()
}
