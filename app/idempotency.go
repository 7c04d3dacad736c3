package app

import (
	"bytes"
	"net/http"

	"lab_lending_tool/logger"
	"lab_lending_tool/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const IdempotencyHeader = "Idempotency-Key"

type recordingWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotentMethod 只有写方法参与去重，GET 等读请求不缓存
func idempotentMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Idempotent 带 Idempotency-Key 的写请求只执行一次，重复提交回放第一次的响应。
// 没带 key 的请求和读请求照常处理。
func Idempotent(store *session.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" || store == nil || !idempotentMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > 128 {
			c.AbortWithStatusJSON(http.StatusBadRequest, H{"error": "Idempotency-Key too long"})
			return
		}
		scope := c.GetString("userID") + ":" + c.Request.Method + ":" + c.Request.URL.Path
		ctx := c.Request.Context()

		prev, owned, err := store.Claim(ctx, scope, key)
		if err != nil {
			logger.For(c).Warn("idempotency claim failed", zap.Error(err))
			c.Next()
			return
		}
		if prev != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(prev.Status, prev.ContentType, prev.Body)
			c.Abort()
			return
		}
		if !owned {
			c.AbortWithStatusJSON(http.StatusConflict, H{"error": "a request with this Idempotency-Key is still in progress"})
			return
		}

		rw := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rw
		c.Next()

		status := rw.Status()
		if status >= 500 {
			if err := store.Release(ctx, scope, key); err != nil {
				logger.For(c).Warn("idempotency release failed", zap.Error(err))
			}
			return
		}
		resp := session.StoredResponse{Status: status, ContentType: rw.Header().Get("Content-Type"), Body: rw.buf.Bytes()}
		if err := store.Complete(ctx, scope, key, resp); err != nil {
			logger.For(c).Warn("idempotency store failed", zap.Error(err))
		}
	}
}
