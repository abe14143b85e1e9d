package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wyfcoding/spotledger/internal/idempotency"
	"github.com/wyfcoding/spotledger/pkg/logger"
	"github.com/wyfcoding/spotledger/pkg/ratelimit"
)

// HeaderIdempotencyKey 客户端携带的幂等键请求头
const HeaderIdempotencyKey = "Idempotency-Key"

// bodyRecorder 捕获响应体，成功时写入幂等记录供回放
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

// IdempotencyMiddleware 幂等保护中间件。
// 携带 Idempotency-Key 的请求先经 Guard 判定：
// 重放直接返回存储的响应，并发中的首次执行未完成返回 409，
// 同 key 不同请求返回 422。未携带 key 的请求直接放行。
func IdempotencyMiddleware(guard *idempotency.Guard, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		hash := idempotency.ComputeRequestHash(c.Request.Method, c.Request.URL.Path, c.Request.URL.Query(), body)

		ctx := c.Request.Context()
		decision, err := guard.Begin(ctx, scope, key, hash)
		if err != nil {
			var reuse *idempotency.ErrKeyReuse
			if errors.As(err, &reuse) {
				c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": reuse.Error()})
				return
			}
			logger.Error(ctx, "Idempotency check failed", "scope", scope, "key", key, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "idempotency check failed"})
			return
		}

		switch decision.Outcome {
		case idempotency.OutcomeReplay:
			c.Data(decision.Record.ResponseCode, "application/json", []byte(decision.Record.ResponseBody))
			c.Abort()
			return
		case idempotency.OutcomeInProgress:
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this idempotency key is still in progress"})
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		c.Next()

		status := recorder.Status()
		if status >= http.StatusOK && status < http.StatusBadRequest {
			if err := guard.MarkCompleted(ctx, decision.Record.ID, status, recorder.body.String()); err != nil {
				logger.Error(ctx, "Failed to mark idempotency record completed", "key", key, "error", err)
			}
			return
		}
		errorCode := c.GetString(contextKeyErrorCode)
		if err := guard.MarkFailed(ctx, decision.Record.ID, errorCode); err != nil {
			logger.Error(ctx, "Failed to mark idempotency record failed", "key", key, "error", err)
		}
	}
}

// RateLimitMiddleware 按客户端 IP 限流。限流器故障时放行，
// 可用性优先于配额精确性。
func RateLimitMiddleware(limiter ratelimit.Limiter, qps, burst int) gin.HandlerFunc {
	limit := ratelimit.Limit{Rate: qps, Period: time.Second, Burst: burst}
	return func(c *gin.Context) {
		key := "ratelimit:" + c.ClientIP()
		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable, failing open", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.FormatInt(int64(res.RetryAfter/time.Second), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// CorrelationMiddleware 为每个请求注入关联 ID，取请求头或新生成
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		ctx := logger.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}
