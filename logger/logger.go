// Package logger wires zap as the process-wide logger and provides the
// Gin request logging middleware.
package logger

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const RequestIDKey = "request_id"

// Init builds a production or development logger and installs it as the
// global zap logger. The returned func flushes buffered entries.
func Init(env string) func() {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewExample()
	}
	undo := zap.ReplaceGlobals(l)
	return func() {
		_ = l.Sync()
		undo()
	}
}

// RequestID 取上游 X-Request-ID，没有就生成一个
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(RequestIDKey, rid)
		c.Header("X-Request-ID", rid)
		c.Next()
	}
}

// For returns the global logger tagged with the request id of ctx when ctx
// is a Gin context.
func For(ctx context.Context) *zap.Logger {
	if c, ok := ctx.(*gin.Context); ok {
		if rid := c.GetString(RequestIDKey); rid != "" {
			return zap.L().With(zap.String(RequestIDKey, rid))
		}
	}
	return zap.L()
}
