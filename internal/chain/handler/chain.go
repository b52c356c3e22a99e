package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/powchain/internal/auth"
	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/jmerrifield20/powchain/internal/chain/service"
	"github.com/jmerrifield20/powchain/internal/ledger"
	"github.com/jmerrifield20/powchain/internal/pow"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ChainHandler exposes the chain read endpoints and the mining trigger.
type ChainHandler struct {
	svc          *service.ChainService
	defaultMiner string
	logger       *zap.Logger
}

// NewChainHandler creates a new ChainHandler.
func NewChainHandler(svc *service.ChainService, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{svc: svc, logger: logger}
}

// SetDefaultMiner sets the reward address used when a mine request names none.
func (h *ChainHandler) SetDefaultMiner(address string) {
	h.defaultMiner = address
}

// Register mounts the chain routes on the given router group. tokens may be
// nil to leave the mining trigger open.
func (h *ChainHandler) Register(rg *gin.RouterGroup, tokens *auth.TokenIssuer) {
	ch := rg.Group("/chain")
	{
		ch.GET("", h.Overview)
		ch.GET("/blocks", h.ListBlocks)
		ch.GET("/blocks/:height", h.GetBlock)
		ch.GET("/validate", h.Validate)
		ch.GET("/export", h.Export)
		ch.POST("/mine", auth.RequireScope(tokens, auth.ScopeMine), h.Mine)
	}
}

// Overview handles GET /chain and returns height, tip, difficulty and pool size.
func (h *ChainHandler) Overview(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context())
	if err != nil {
		h.logger.Error("chain status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query chain"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// ListBlocks handles GET /chain/blocks?from=&limit= and returns a page of
// blocks in height order.
func (h *ChainHandler) ListBlocks(c *gin.Context) {
	ctx := c.Request.Context()

	from, err := strconv.Atoi(c.DefaultQuery("from", "0"))
	if err != nil || from < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be a non-negative integer"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	l := h.svc.Ledger()
	n, err := l.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query chain"})
		return
	}

	blocks := make([]*model.Block, 0, limit)
	for height := from; height < n && len(blocks) < limit; height++ {
		b, err := l.Get(ctx, height)
		if err != nil {
			h.logger.Error("ledger Get", zap.Int("height", height), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query chain"})
			return
		}
		blocks = append(blocks, b)
	}

	c.JSON(http.StatusOK, gin.H{
		"blocks": blocks,
		"from":   from,
		"count":  len(blocks),
		"length": n,
	})
}

// GetBlock handles GET /chain/blocks/:height and returns a single block.
func (h *ChainHandler) GetBlock(c *gin.Context) {
	height, err := strconv.Atoi(c.Param("height"))
	if err != nil || height < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "height must be a non-negative integer"})
		return
	}

	b, err := h.svc.Ledger().Get(c.Request.Context(), height)
	if err != nil {
		if errors.Is(err, ledger.ErrBlockNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
			return
		}
		h.logger.Error("ledger Get", zap.Int("height", height), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query chain"})
		return
	}
	c.JSON(http.StatusOK, b)
}

// Validate handles GET /chain/validate. It walks the full chain and reports
// integrity; an invalid chain is still a 200 with valid=false.
func (h *ChainHandler) Validate(c *gin.Context) {
	ctx := c.Request.Context()
	l := h.svc.Ledger()

	n, err := l.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate chain"})
		return
	}
	err = l.Verify(ctx)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"valid": true, "length": n})
		return
	}

	var v *ledger.Violation
	if !errors.As(err, &v) {
		h.logger.Error("ledger Verify", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate chain"})
		return
	}
	h.logger.Warn("chain integrity check failed",
		zap.Int("height", v.Height),
		zap.String("rule", string(v.Rule)),
	)
	c.JSON(http.StatusOK, gin.H{
		"valid":  false,
		"length": n,
		"height": v.Height,
		"rule":   v.Rule,
		"error":  v.Error(),
	})
}

// Export handles GET /chain/export and returns the whole chain.
func (h *ChainHandler) Export(c *gin.Context) {
	l := h.svc.Ledger()
	blocks, err := l.Blocks(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger Blocks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export chain"})
		return
	}
	c.JSON(http.StatusOK, model.Chain{Difficulty: l.Difficulty(), Blocks: blocks})
}

type mineRequest struct {
	Miner string `json:"miner"`
}

// Mine handles POST /chain/mine. It mines the pending pool into a new block
// and returns it.
func (h *ChainHandler) Mine(c *gin.Context) {
	var req mineRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}
	if req.Miner == "" {
		req.Miner = h.defaultMiner
	}

	b, err := h.svc.MinePending(c.Request.Context(), req.Miner)
	switch {
	case err == nil:
		h.logger.Info("block mined on request",
			zap.Int("height", b.Height),
			zap.String("miner", req.Miner),
			zap.String("operator", operatorSubject(c)),
		)
		c.JSON(http.StatusCreated, b)
	case errors.Is(err, service.ErrMinerRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, pow.ErrMiningAborted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("mine pending", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mine block"})
	}
}

// operatorSubject names the authenticated operator, or "anonymous" when the
// node runs without operator tokens.
func operatorSubject(c *gin.Context) string {
	if claims := auth.ClaimsFromCtx(c); claims != nil {
		return claims.Subject
	}
	return "anonymous"
}
