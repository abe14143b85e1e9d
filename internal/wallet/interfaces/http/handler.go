// Package http 钱包管理面 HTTP 接口
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/spotledger/internal/wallet/application"
	"github.com/wyfcoding/spotledger/internal/wallet/domain"
	"github.com/wyfcoding/spotledger/pkg/logger"
	"github.com/wyfcoding/spotledger/pkg/metrics"
)

// contextKeyErrorCode 处理器出错时写入的错误码，供幂等中间件记录
const contextKeyErrorCode = "error_code"

// WalletHandler HTTP 处理器
type WalletHandler struct {
	walletService *application.WalletService
	queryService  *application.WalletQueryService
}

// NewWalletHandler 创建 HTTP 处理器
func NewWalletHandler(walletService *application.WalletService, queryService *application.WalletQueryService) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		queryService:  queryService,
	}
}

// RegisterRoutes 注册路由。调整接口挂幂等保护，查询接口直通。
func (h *WalletHandler) RegisterRoutes(router *gin.Engine, idempotency gin.HandlerFunc) {
	api := router.Group("/api/v1")
	{
		api.POST("/wallets/adjust", idempotency, h.Adjust)
		api.GET("/wallets/:account_id/balances", h.ListBalances)
		api.GET("/wallets/:account_id/balances/:asset", h.GetBalance)
		api.GET("/wallets/:account_id/reservations", h.ListReservations)
		api.GET("/wallets/:account_id/ledger", h.ListLedgerEntries)
	}
}

// AdjustRequest 资金调整请求
type AdjustRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	Asset     string `json:"asset" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Direction string `json:"direction" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
}

// Adjust 管理员资金调整
func (h *WalletHandler) Adjust(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Set(contextKeyErrorCode, "INVALID_REQUEST")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.Set(contextKeyErrorCode, "INVALID_AMOUNT")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount: " + req.Amount})
		return
	}

	direction := domain.EntryDirection(req.Direction)
	if direction != domain.DirectionDebit && direction != domain.DirectionCredit {
		c.Set(contextKeyErrorCode, "INVALID_DIRECTION")
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be DEBIT or CREDIT"})
		return
	}

	result, err := h.walletService.Adjust(c.Request.Context(), application.AdjustCommand{
		AccountID:  req.AccountID,
		Asset:      req.Asset,
		Amount:     amount,
		Direction:  direction,
		Reason:     req.Reason,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		h.renderError(c, "adjust", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetBalance 查询单资产余额
func (h *WalletHandler) GetBalance(c *gin.Context) {
	balance, err := h.queryService.GetBalance(c.Request.Context(), c.Param("account_id"), c.Param("asset"))
	if err != nil {
		h.renderError(c, "get_balance", err)
		return
	}
	if balance == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "balance not found"})
		return
	}
	c.JSON(http.StatusOK, balance)
}

// ListBalances 查询账户全部余额
func (h *WalletHandler) ListBalances(c *gin.Context) {
	balances, err := h.queryService.ListBalances(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		h.renderError(c, "list_balances", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

// ListReservations 查询账户预留记录
func (h *WalletHandler) ListReservations(c *gin.Context) {
	limit, offset := pagination(c)
	reservations, total, err := h.queryService.ListReservations(c.Request.Context(), c.Param("account_id"), limit, offset)
	if err != nil {
		h.renderError(c, "list_reservations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservations": reservations, "total": total})
}

// ListLedgerEntries 查询账户账本分录
func (h *WalletHandler) ListLedgerEntries(c *gin.Context) {
	limit, offset := pagination(c)
	entries, total, err := h.queryService.ListLedgerEntries(c.Request.Context(), c.Param("account_id"), limit, offset)
	if err != nil {
		h.renderError(c, "list_ledger", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "total": total})
}

// renderError 按领域错误类型映射状态码
func (h *WalletHandler) renderError(c *gin.Context, op string, err error) {
	ctx := c.Request.Context()

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		c.Set(contextKeyErrorCode, "VALIDATION_FAILED")
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
		return
	}

	var insufficient *domain.ErrInsufficientBalance
	if errors.As(err, &insufficient) {
		c.Set(contextKeyErrorCode, "INSUFFICIENT_BALANCE")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": insufficient.Error()})
		return
	}

	logger.Error(ctx, "Wallet operation failed", "op", op, "error", err)
	c.Set(contextKeyErrorCode, "INTERNAL_ERROR")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// MetricsMiddleware 记录请求计数与耗时
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.Observe(time.Since(start).Seconds())
	}
}
