// Cliente REST del backend storefront. Implementa los colaboradores remotos
// que consume Frontend/src/state.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ahinestrog/bookshop/common"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultCacheSize = 256
	defaultCacheTTL  = time.Minute
)

// RemoteError is a non-2xx response. Message is the backend's display text.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (e *RemoteError) DisplayMessage() string { return e.Message }

type Client struct {
	base *url.URL
	http *http.Client
	log  zerolog.Logger

	mu    sync.RWMutex
	token string

	books *expirable.LRU[int64, common.Book]
}

type Option func(*clientOptions)

type clientOptions struct {
	http      *http.Client
	log       zerolog.Logger
	cacheSize int
	cacheTTL  time.Duration
}

func WithHTTPClient(h *http.Client) Option { return func(o *clientOptions) { o.http = h } }
func WithLogger(l zerolog.Logger) Option    { return func(o *clientOptions) { o.log = l } }

// WithBookCache sizes the book snapshot cache; ttl bounds staleness of stock.
func WithBookCache(size int, ttl time.Duration) Option {
	return func(o *clientOptions) { o.cacheSize, o.cacheTTL = size, ttl }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api: base url %q must be absolute", baseURL)
	}
	o := clientOptions{
		http:      &http.Client{Timeout: defaultTimeout},
		log:       zerolog.Nop(),
		cacheSize: defaultCacheSize,
		cacheTTL:  defaultCacheTTL,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return &Client{
		base:  u,
		http:  o.http,
		log:   o.log,
		books: expirable.NewLRU[int64, common.Book](o.cacheSize, nil, o.cacheTTL),
	}, nil
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Cart() *CartAPI         { return &CartAPI{c: c} }
func (c *Client) Wishlist() *WishlistAPI { return &WishlistAPI{c: c} }
func (c *Client) Reviews() *ReviewsAPI   { return &ReviewsAPI{c: c} }

// do sends in as JSON (when non-nil) and decodes the response into out (when
// non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Str("request_id", reqID).Msg("request failed")
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Str("request_id", reqID).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb common.ErrorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(raw, &eb)
		return &RemoteError{Status: resp.StatusCode, Message: strings.TrimSpace(eb.Message)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", method, path, err)
	}
	return nil
}

// Login satisfies state.Authenticator together with SetToken.
func (c *Client) Login(ctx context.Context, email, password string) (common.LoginResponse, error) {
	var out common.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", common.LoginRequest{Email: email, Password: password}, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, name, email, password string) (common.LoginResponse, error) {
	var out common.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/register", common.RegisterRequest{Name: name, Email: email, Password: password}, &out)
	return out, err
}

// Logout revokes the current token on the backend.
func (c *Client) Logout(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// Book returns the catalog snapshot of id, cached for the configured TTL.
func (c *Client) Book(ctx context.Context, id int64) (common.Book, error) {
	if b, ok := c.books.Get(id); ok {
		return b, nil
	}
	var b common.Book
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/books/%d", id), nil, &b); err != nil {
		return common.Book{}, err
	}
	c.books.Add(id, b)
	return b, nil
}

type bookList struct {
	Items []common.Book `json:"items"`
}

func (c *Client) Books(ctx context.Context, q string) ([]common.Book, error) {
	path := "/api/books"
	if q = strings.TrimSpace(q); q != "" {
		path += "?q=" + url.QueryEscape(q)
	}
	var out bookList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	for _, b := range out.Items {
		c.books.Add(b.ID, b)
	}
	return out.Items, nil
}
