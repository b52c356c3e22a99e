package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/powchain/internal/auth"
	"github.com/jmerrifield20/powchain/internal/chain/handler"
	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/jmerrifield20/powchain/internal/chain/service"
	"github.com/jmerrifield20/powchain/internal/ledger"
	"github.com/jmerrifield20/powchain/internal/pow"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var ctx = context.Background()

func newTestLedger(t *testing.T) *ledger.MemoryLedger {
	t.Helper()
	l, err := ledger.New(ctx, pow.NewMiner(), 1)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	return l
}

func setupRouter(t *testing.T, l ledger.Ledger, cfg service.Config, tokens *auth.TokenIssuer) (*gin.Engine, *service.ChainService, *handler.ChainHandler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc := service.New(l, cfg, zap.NewNop())
	ch := handler.NewChainHandler(svc, zap.NewNop())
	th := handler.NewTransactionHandler(svc, zap.NewNop())
	v1 := r.Group("/api/v1")
	ch.Register(v1, tokens)
	th.Register(v1, tokens)
	return r, svc, ch
}

func do(r http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestChainOverview_200(t *testing.T) {
	router, _, _ := setupRouter(t, newTestLedger(t), service.Config{}, nil)

	w := do(router, http.MethodGet, "/api/v1/chain", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var st service.Status
	decode(t, w, &st)
	if st.Height != 0 || st.Length != 1 || st.Difficulty != 1 || st.Tip.IsZero() {
		t.Errorf("status = %+v", st)
	}
}

func TestGetBlock(t *testing.T) {
	router, _, _ := setupRouter(t, newTestLedger(t), service.Config{}, nil)

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/chain/blocks/0", http.StatusOK},
		{"/api/v1/chain/blocks/999", http.StatusNotFound},
		{"/api/v1/chain/blocks/abc", http.StatusBadRequest},
		{"/api/v1/chain/blocks/-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := do(router, http.MethodGet, tt.path, ""); w.Code != tt.want {
			t.Errorf("GET %s: expected %d, got %d: %s", tt.path, tt.want, w.Code, w.Body.String())
		}
	}

	var b model.Block
	decode(t, do(router, http.MethodGet, "/api/v1/chain/blocks/0", ""), &b)
	if b.Height != 0 || b.Transactions[0] != model.GenesisTransaction() {
		t.Errorf("genesis block = %+v", b)
	}
}

func TestListBlocks_pagination(t *testing.T) {
	l := newTestLedger(t)
	for i := 0; i < 3; i++ {
		if _, err := l.Append(ctx, nil, 1); err != nil {
			t.Fatal(err)
		}
	}
	router, _, _ := setupRouter(t, l, service.Config{}, nil)

	var resp struct {
		Blocks []model.Block `json:"blocks"`
		Count  int           `json:"count"`
		Length int           `json:"length"`
	}
	w := do(router, http.MethodGet, "/api/v1/chain/blocks?from=1&limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	decode(t, w, &resp)
	if resp.Count != 2 || resp.Length != 4 || resp.Blocks[0].Height != 1 || resp.Blocks[1].Height != 2 {
		t.Errorf("page = count %d length %d", resp.Count, resp.Length)
	}

	decode(t, do(router, http.MethodGet, "/api/v1/chain/blocks?limit=1000", ""), &resp)
	if resp.Count != 4 {
		t.Errorf("capped page count = %d, want 4", resp.Count)
	}

	for _, q := range []string{"from=-1", "limit=0", "limit=x"} {
		if w := do(router, http.MethodGet, "/api/v1/chain/blocks?"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("?%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestValidate_valid(t *testing.T) {
	router, _, _ := setupRouter(t, newTestLedger(t), service.Config{}, nil)

	var resp map[string]any
	w := do(router, http.MethodGet, "/api/v1/chain/validate", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	decode(t, w, &resp)
	if resp["valid"] != true {
		t.Errorf("expected valid=true, got %v", resp)
	}
}

func TestValidate_tampered(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.Append(ctx, []model.Transaction{{Sender: "Alice", Recipient: "Bob", Amount: 50}}, 1); err != nil {
		t.Fatal(err)
	}
	blocks, _ := l.Blocks(ctx)
	blocks[1].Transactions[0].Amount = 500
	tampered, err := ledger.Load(blocks, 1)
	if err != nil {
		t.Fatal(err)
	}
	router, _, _ := setupRouter(t, tampered, service.Config{}, nil)

	var resp struct {
		Valid  bool   `json:"valid"`
		Height int    `json:"height"`
		Rule   string `json:"rule"`
		Error  string `json:"error"`
	}
	w := do(router, http.MethodGet, "/api/v1/chain/validate", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	decode(t, w, &resp)
	if resp.Valid || resp.Height != 1 || resp.Rule != string(ledger.RuleMerkleRoot) || resp.Error == "" {
		t.Errorf("validate = %+v", resp)
	}
}

func TestExport_roundTripsThroughValidate(t *testing.T) {
	router, _, _ := setupRouter(t, newTestLedger(t), service.Config{}, nil)

	var chain model.Chain
	w := do(router, http.MethodGet, "/api/v1/chain/export", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	decode(t, w, &chain)
	if chain.Difficulty != 1 || len(chain.Blocks) != 1 {
		t.Fatalf("export = difficulty %d, %d blocks", chain.Difficulty, len(chain.Blocks))
	}
	if v := ledger.Validate(chain.Blocks, chain.Difficulty); v != nil {
		t.Errorf("exported chain invalid: %v", v)
	}
}

func TestSubmitTransaction(t *testing.T) {
	router, svc, _ := setupRouter(t, newTestLedger(t), service.Config{MaxPending: 1}, nil)

	w := do(router, http.MethodPost, "/api/v1/transactions", `{"sender":"Alice","recipient":"Bob","amount":50}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]int
	decode(t, w, &resp)
	if resp["expected_height"] != 1 {
		t.Errorf("expected_height = %d, want 1", resp["expected_height"])
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"sender":`, http.StatusBadRequest},
		{"wrong type", `{"sender":"a","recipient":"b","amount":"ten"}`, http.StatusBadRequest},
		{"negative amount", `{"sender":"a","recipient":"b","amount":-5}`, http.StatusBadRequest},
		{"missing recipient", `{"sender":"a","amount":5}`, http.StatusBadRequest},
		{"pool full", `{"sender":"a","recipient":"b","amount":5}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(router, http.MethodPost, "/api/v1/transactions", tt.body); w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
	if n := len(svc.Pending()); n != 1 {
		t.Errorf("pending = %d, want 1", n)
	}
}

func TestPending(t *testing.T) {
	router, svc, _ := setupRouter(t, newTestLedger(t), service.Config{}, nil)

	var resp struct {
		Transactions []model.Transaction `json:"transactions"`
		Count        int                 `json:"count"`
	}
	decode(t, do(router, http.MethodGet, "/api/v1/transactions/pending", ""), &resp)
	if resp.Count != 0 || resp.Transactions == nil {
		t.Errorf("empty pool = %+v", resp)
	}

	tx := model.Transaction{Sender: "Bob", Recipient: "Charlie", Amount: 25}
	if _, err := svc.AddTransaction(ctx, tx); err != nil {
		t.Fatal(err)
	}
	decode(t, do(router, http.MethodGet, "/api/v1/transactions/pending", ""), &resp)
	if resp.Count != 1 || resp.Transactions[0] != tx {
		t.Errorf("pool = %+v", resp)
	}
}

func TestMine(t *testing.T) {
	router, svc, ch := setupRouter(t, newTestLedger(t), service.Config{BlockReward: 10}, nil)
	if _, err := svc.AddTransaction(ctx, model.Transaction{Sender: "Alice", Recipient: "Bob", Amount: 50}); err != nil {
		t.Fatal(err)
	}

	w := do(router, http.MethodPost, "/api/v1/chain/mine", `{"miner":"Miner1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var b model.Block
	decode(t, w, &b)
	if b.Height != 1 || b.TransactionCount != 2 || b.Transactions[1].Recipient != "Miner1" {
		t.Errorf("mined block = %+v", b)
	}

	if w := do(router, http.MethodPost, "/api/v1/chain/mine", ""); w.Code != http.StatusBadRequest {
		t.Errorf("no miner: expected 400, got %d", w.Code)
	}

	ch.SetDefaultMiner("Fallback")
	w = do(router, http.MethodPost, "/api/v1/chain/mine", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("default miner: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	decode(t, w, &b)
	if b.Transactions[len(b.Transactions)-1].Recipient != "Fallback" {
		t.Errorf("reward went to %q, want Fallback", b.Transactions[len(b.Transactions)-1].Recipient)
	}
}

type abortingMiner struct{}

func (abortingMiner) Mine(context.Context, pow.Inputs, int) (*pow.Result, error) {
	return nil, fmt.Errorf("%w: attempt budget of 1 exhausted", pow.ErrMiningAborted)
}

func TestMine_aborted503(t *testing.T) {
	blocks, _ := newTestLedger(t).Blocks(ctx)
	l, err := ledger.Load(blocks, 1, ledger.WithMiner(abortingMiner{}))
	if err != nil {
		t.Fatal(err)
	}
	router, _, _ := setupRouter(t, l, service.Config{}, nil)

	if w := do(router, http.MethodPost, "/api/v1/chain/mine", `{"miner":"m"}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWriteRoutes_requireScopes(t *testing.T) {
	tokens, err := auth.NewTokenIssuer("secret", "chaind", 0)
	if err != nil {
		t.Fatal(err)
	}
	router, _, _ := setupRouter(t, newTestLedger(t), service.Config{}, tokens)
	submit, _ := tokens.Issue("ops", []string{auth.ScopeSubmit})
	body := `{"sender":"a","recipient":"b","amount":1}`

	if w := do(router, http.MethodPost, "/api/v1/transactions", body); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", w.Code)
	}
	if w := do(router, http.MethodPost, "/api/v1/transactions", body, "Authorization", "Bearer "+submit); w.Code != http.StatusAccepted {
		t.Errorf("submit token: expected 202, got %d", w.Code)
	}
	if w := do(router, http.MethodPost, "/api/v1/chain/mine", `{"miner":"m"}`, "Authorization", "Bearer "+submit); w.Code != http.StatusForbidden {
		t.Errorf("submit token on mine: expected 403, got %d", w.Code)
	}
	if w := do(router, http.MethodGet, "/api/v1/chain", ""); w.Code != http.StatusOK {
		t.Errorf("read route: expected 200, got %d", w.Code)
	}
}

// lenFailingLedger reports an error from Len and delegates everything else.
type lenFailingLedger struct {
	ledger.Ledger
}

func (lenFailingLedger) Len(context.Context) (int, error) {
	return 0, errors.New("ledger unavailable")
}

func TestValidate_lenError500(t *testing.T) {
	router, _, _ := setupRouter(t, lenFailingLedger{newTestLedger(t)}, service.Config{}, nil)

	w := do(router, http.MethodGet, "/api/v1/chain/validate", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]any
	decode(t, w, &body)
	if _, ok := body["valid"]; ok {
		t.Errorf("failed validation reported a verdict: %v", body)
	}
}

func TestWriteRoutes_logOperatorSubject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens, err := auth.NewTokenIssuer("secret", "chaind", 0)
	if err != nil {
		t.Fatal(err)
	}
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	svc := service.New(newTestLedger(t), service.Config{BlockReward: 10}, zap.NewNop())
	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewChainHandler(svc, logger).Register(v1, tokens)
	handler.NewTransactionHandler(svc, logger).Register(v1, tokens)

	token, _ := tokens.Issue("ops-team", []string{auth.ScopeSubmit, auth.ScopeMine})
	bearer := "Bearer " + token
	if w := do(r, http.MethodPost, "/api/v1/transactions", `{"sender":"a","recipient":"b","amount":1}`, "Authorization", bearer); w.Code != http.StatusAccepted {
		t.Fatalf("submit: expected 202, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/v1/chain/mine", `{"miner":"m"}`, "Authorization", bearer); w.Code != http.StatusCreated {
		t.Fatalf("mine: expected 201, got %d", w.Code)
	}

	for _, msg := range []string{"transaction submitted", "block mined on request"} {
		entries := logs.FilterMessage(msg).All()
		if len(entries) != 1 {
			t.Errorf("%q logged %d times, want 1", msg, len(entries))
			continue
		}
		if got := entries[0].ContextMap()["operator"]; got != "ops-team" {
			t.Errorf("%q operator = %v, want ops-team", msg, got)
		}
	}
}

func TestRateLimiter_429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := gin.New()
	r.Use(handler.RateLimiter(rctx, 1, 1))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := do(r, http.MethodGet, "/ping", ""); w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}
	w := do(r, http.MethodGet, "/ping", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestMiddleware_requestIDAndHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handler.RequestID(), handler.SecurityHeaders(), handler.RequestLogger(zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(r, http.MethodGet, "/ping", "")
	if _, err := uuid.Parse(w.Header().Get(handler.RequestIDHeader)); err != nil {
		t.Errorf("X-Request-ID %q is not a UUID", w.Header().Get(handler.RequestIDHeader))
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}

	id := uuid.NewString()
	w = do(r, http.MethodGet, "/ping", "", handler.RequestIDHeader, id)
	if got := w.Header().Get(handler.RequestIDHeader); got != id {
		t.Errorf("X-Request-ID = %q, want echoed %q", got, id)
	}
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handler.BodyLimit(16))
	r.POST("/echo", func(c *gin.Context) {
		var v map[string]any
		if err := c.ShouldBindJSON(&v); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	if w := do(r, http.MethodPost, "/echo", `{"a":"`+strings.Repeat("x", 64)+`"}`); w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected oversized body to be rejected, got %d", w.Code)
	}
}

func TestMetricsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handler.PrometheusMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", handler.MetricsHandler())

	handler.RecordBlockAppended(&model.Block{Height: 3})
	handler.RecordMining(pow.Result{Attempts: 10})
	handler.SetPendingGauge(2)
	handler.RecordAudit(true)
	do(r, http.MethodGet, "/ping", "")

	w := do(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for _, name := range []string{
		"powchain_requests_total",
		"powchain_chain_height 3",
		"powchain_pending_transactions 2",
		"powchain_chain_valid 1",
		"powchain_mining_attempts",
	} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}
