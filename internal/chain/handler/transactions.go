package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/powchain/internal/auth"
	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/jmerrifield20/powchain/internal/chain/service"
	"go.uber.org/zap"
)

// TransactionHandler exposes the pending pool.
type TransactionHandler struct {
	svc    *service.ChainService
	logger *zap.Logger
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(svc *service.ChainService, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{svc: svc, logger: logger}
}

// Register mounts the transaction routes on the given router group.
func (h *TransactionHandler) Register(rg *gin.RouterGroup, tokens *auth.TokenIssuer) {
	tx := rg.Group("/transactions")
	{
		tx.POST("", auth.RequireScope(tokens, auth.ScopeSubmit), h.Submit)
		tx.GET("/pending", h.Pending)
	}
}

// Submit handles POST /transactions and queues a transaction for the next block.
func (h *TransactionHandler) Submit(c *gin.Context) {
	var tx model.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	height, err := h.svc.AddTransaction(c.Request.Context(), tx)
	switch {
	case err == nil:
		h.logger.Debug("transaction submitted",
			zap.Int("expected_height", height),
			zap.String("operator", operatorSubject(c)),
		)
		c.JSON(http.StatusAccepted, gin.H{"expected_height": height})
	case errors.Is(err, model.ErrInvalidTransaction):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPoolFull):
		c.Header("Retry-After", "10")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("add transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue transaction"})
	}
}

// Pending handles GET /transactions/pending.
func (h *TransactionHandler) Pending(c *gin.Context) {
	pending := h.svc.Pending()
	if pending == nil {
		pending = []model.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": pending, "count": len(pending)})
}
