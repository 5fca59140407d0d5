// Package rest talks to the finance backend over its JSON REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carteira/internal/core"
	"carteira/internal/middleware/trace"
)

const maxResponseBytes = 1 << 20

// Client implements ledger.Gateway against the REST backend. Every call is a
// single round trip; nothing is retried or cached.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each call. Zero leaves only the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:    u,
		http:    &http.Client{},
		timeout: 10 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Register creates an account. It has no effect on the local session.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	body := registerRequest{Name: name, Email: email, Password: password}
	return c.do(ctx, "register", http.MethodPost, "/auth/register", nil, body, nil)
}

func (c *Client) Login(ctx context.Context, email, password string) (core.User, error) {
	var out userPayload
	body := loginRequest{Email: email, Password: password}
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", nil, body, &out); err != nil {
		return core.User{}, err
	}
	return out.toUser()
}

func (c *Client) FetchUser(ctx context.Context, id int64) (core.User, error) {
	var out userPayload
	q := ownerQuery(id)
	if err := c.do(ctx, "fetch user", http.MethodGet, "/auth/me", q, nil, &out); err != nil {
		var nf *core.NotFoundError
		if errors.As(err, &nf) {
			nf.Resource, nf.ID = "user", strconv.FormatInt(id, 10)
		}
		return core.User{}, err
	}
	return out.toUser()
}

func (c *Client) ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error) {
	var out []categoryPayload
	if err := c.do(ctx, "list categories", http.MethodGet, "/categories/", ownerQuery(ownerID), nil, &out); err != nil {
		return nil, err
	}
	cats := make([]core.Category, 0, len(out))
	for i, p := range out {
		cat, err := p.toCategory()
		if err != nil {
			return nil, fmt.Errorf("category #%d: %w", i, err)
		}
		cats = append(cats, cat)
	}
	return cats, nil
}

func (c *Client) CreateCategory(ctx context.Context, ownerID int64, d core.CategoryDraft) (core.Category, error) {
	var out categoryPayload
	body := createCategoryRequest{Name: d.Name, Type: d.Type.Wire(), UserID: ownerID}
	if err := c.do(ctx, "create category", http.MethodPost, "/categories/", nil, body, &out); err != nil {
		return core.Category{}, err
	}
	return out.toCategory()
}

func (c *Client) ListTransactions(ctx context.Context, ownerID int64) ([]core.Transaction, error) {
	var out []transactionPayload
	if err := c.do(ctx, "list transactions", http.MethodGet, "/transactions/", ownerQuery(ownerID), nil, &out); err != nil {
		return nil, err
	}
	txs := make([]core.Transaction, 0, len(out))
	for i, p := range out {
		tx, err := p.toTransaction()
		if err != nil {
			return nil, fmt.Errorf("transaction #%d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (c *Client) CreateTransaction(ctx context.Context, ownerID int64, d core.TransactionDraft) (core.Transaction, error) {
	var out transactionPayload
	body := createTransactionRequest{
		UserID:      ownerID,
		Amount:      number(d.Amount),
		Type:        d.Type.Wire(),
		CategoryID:  d.CategoryID,
		Date:        d.Date.String(),
		Description: d.Description,
	}
	if err := c.do(ctx, "create transaction", http.MethodPost, "/transactions/", nil, body, &out); err != nil {
		return core.Transaction{}, err
	}
	return out.toTransaction()
}

func (c *Client) UndoTransaction(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/transactions/%d/undo", id)
	err := c.do(ctx, "undo transaction", http.MethodPost, path, nil, nil, nil)
	return withResource(err, "transaction", id)
}

func (c *Client) ListGoals(ctx context.Context, ownerID int64) ([]core.Goal, error) {
	var out []goalPayload
	if err := c.do(ctx, "list goals", http.MethodGet, "/metas/", ownerQuery(ownerID), nil, &out); err != nil {
		return nil, err
	}
	goals := make([]core.Goal, 0, len(out))
	for i, p := range out {
		g, err := p.toGoal()
		if err != nil {
			return nil, fmt.Errorf("goal #%d: %w", i, err)
		}
		goals = append(goals, g)
	}
	return goals, nil
}

func (c *Client) CreateGoal(ctx context.Context, ownerID int64, d core.GoalDraft) (core.Goal, error) {
	var out goalPayload
	body := createGoalRequest{
		UserID:       ownerID,
		Description:  d.Description,
		TargetAmount: number(d.TargetAmount),
		Deadline:     d.Deadline.String(),
		Kind:         d.Kind,
	}
	if err := c.do(ctx, "create goal", http.MethodPost, "/metas/", nil, body, &out); err != nil {
		return core.Goal{}, err
	}
	return out.toGoal()
}

func (c *Client) DepositToGoal(ctx context.Context, id int64, amount decimal.Decimal) error {
	path := fmt.Sprintf("/metas/%d/deposit", id)
	err := c.do(ctx, "deposit to goal", http.MethodPost, path, nil, depositRequest{Amount: number(amount)}, nil)
	return withResource(err, "goal", id)
}

func (c *Client) GoalProgress(ctx context.Context, id int64) (core.GoalProgress, error) {
	var out goalProgressPayload
	path := fmt.Sprintf("/metas/%d/progress", id)
	if err := c.do(ctx, "goal progress", http.MethodGet, path, nil, nil, &out); err != nil {
		return core.GoalProgress{}, withResource(err, "goal", id)
	}
	return out.toGoalProgress(id)
}

func (c *Client) ListInvestments(ctx context.Context) ([]core.Investment, error) {
	var out []investmentPayload
	if err := c.do(ctx, "list investments", http.MethodGet, "/investments/", nil, nil, &out); err != nil {
		return nil, err
	}
	invs := make([]core.Investment, 0, len(out))
	for i, p := range out {
		inv, err := p.toInvestment()
		if err != nil {
			return nil, fmt.Errorf("investment #%d: %w", i, err)
		}
		invs = append(invs, inv)
	}
	return invs, nil
}

// do performs one request. body is JSON-encoded when non-nil; out receives the
// decoded response when non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &core.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := trace.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Backend request failed",
			"operation", op,
			"method", method,
			"path", path,
			"request_id", requestID,
			"error", err)
		return &core.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &core.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.DebugContext(ctx, "Backend request completed",
		"operation", op,
		"method", method,
		"path", path,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID)

	if err := statusError(op, resp.StatusCode, raw); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &core.ValidationError{Source: "response", Field: op, Reason: err.Error()}
	}
	return nil
}

// statusError maps non-2xx responses onto the error taxonomy.
func statusError(op string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := serverMessage(body)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &core.AuthError{Message: msg}
	case http.StatusNotFound:
		return &core.NotFoundError{Resource: op, Message: msg}
	}
	return &core.TransportError{Op: op, StatusCode: status, Message: msg}
}

func serverMessage(body []byte) string {
	var e errorPayload
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	for _, m := range []string{e.Message, e.Error, e.Detail} {
		if m = strings.TrimSpace(m); m != "" {
			return m
		}
	}
	return ""
}

func withResource(err error, resource string, id int64) error {
	var nf *core.NotFoundError
	if errors.As(err, &nf) {
		nf.Resource, nf.ID = resource, strconv.FormatInt(id, 10)
	}
	return err
}

func ownerQuery(ownerID int64) url.Values {
	return url.Values{"user_id": []string{strconv.FormatInt(ownerID, 10)}}
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
