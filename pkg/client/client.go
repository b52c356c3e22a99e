package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/jmerrifield20/powchain/internal/chain/service"
)

// ErrNotFound matches an *APIError with status 404.
var ErrNotFound = errors.New("not found")

// Wire types shared with the node.
type (
	Transaction = model.Transaction
	Block       = model.Block
	Header      = model.Header
	Chain       = model.Chain
	Status      = service.Status
)

// BlockPage is one page of GET /api/v1/chain/blocks.
type BlockPage struct {
	Blocks []Block `json:"blocks"`
	From   int     `json:"from"`
	Count  int     `json:"count"`
	Length int     `json:"length"`
}

// ValidationResult is the outcome of GET /api/v1/chain/validate.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Length int    `json:"length"`
	Height int    `json:"height,omitempty"`
	Rule   string `json:"rule,omitempty"`
	Error  string `json:"error,omitempty"`
}

// APIError is a non-2xx response from the node.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// Is reports whether a 404 is being compared with ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client is the powchain SDK entry point.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
	cache       *blockCache
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches an operator token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithBlockCache caches blocks fetched by height. Mined blocks are
// immutable, so entries never expire.
func WithBlockCache() Option {
	return func(c *Client) error {
		c.cache = newBlockCache()
		return nil
	}
}

// New creates a new Client for the node at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid node URL %q: %w", base, err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Status returns the chain height, tip, difficulty and pending count.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.getJSON(ctx, "/api/v1/chain", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Blocks returns up to limit blocks starting at height from.
func (c *Client) Blocks(ctx context.Context, from, limit int) (*BlockPage, error) {
	q := url.Values{}
	q.Set("from", strconv.Itoa(from))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var page BlockPage
	if err := c.getJSON(ctx, "/api/v1/chain/blocks?"+q.Encode(), &page); err != nil {
		return nil, err
	}
	if c.cache != nil {
		for i := range page.Blocks {
			c.cache.put(&page.Blocks[i])
		}
	}
	return &page, nil
}

// Block returns the block at height.
func (c *Client) Block(ctx context.Context, height int) (*Block, error) {
	if c.cache != nil {
		if b, ok := c.cache.get(height); ok {
			return b, nil
		}
	}
	var b Block
	if err := c.getJSON(ctx, "/api/v1/chain/blocks/"+strconv.Itoa(height), &b); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.put(&b)
	}
	return &b, nil
}

// Validate asks the node to walk its chain.
func (c *Client) Validate(ctx context.Context) (*ValidationResult, error) {
	var res ValidationResult
	if err := c.getJSON(ctx, "/api/v1/chain/validate", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Export downloads the whole chain.
func (c *Client) Export(ctx context.Context) (*Chain, error) {
	var ch Chain
	if err := c.getJSON(ctx, "/api/v1/chain/export", &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// SubmitTransaction queues tx and returns the height it is expected to land in.
func (c *Client) SubmitTransaction(ctx context.Context, tx Transaction) (int, error) {
	var resp struct {
		ExpectedHeight int `json:"expected_height"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, "/api/v1/transactions", tx, &resp); err != nil {
		return 0, err
	}
	return resp.ExpectedHeight, nil
}

// Pending returns the queued transactions.
func (c *Client) Pending(ctx context.Context) ([]Transaction, error) {
	var resp struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.getJSON(ctx, "/api/v1/transactions/pending", &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

// Mine mines the pending pool into a block rewarding miner. An empty miner
// defers to the node's configured default.
func (c *Client) Mine(ctx context.Context, miner string) (*Block, error) {
	var b Block
	body := map[string]string{"miner": miner}
	if err := c.sendJSON(ctx, http.MethodPost, "/api/v1/chain/mine", body, &b); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.put(&b)
	}
	return &b, nil
}

// ── HTTP helpers ─────────────────────────────────────────────────────────

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// maxResponseBytes bounds a response body; a full export is the largest.
const maxResponseBytes = 64 << 20

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// --- in-memory block cache ---

type blockCache struct {
	mu     sync.RWMutex
	blocks map[int]*Block
}

func newBlockCache() *blockCache {
	return &blockCache{blocks: make(map[int]*Block)}
}

func (bc *blockCache) get(height int) (*Block, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	b, ok := bc.blocks[height]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

func (bc *blockCache) put(b *Block) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.blocks[b.Height] = b.Clone()
}
