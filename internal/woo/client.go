// Package woo is a small client for the remote commerce catalog's REST API
// (WooCommerce wc/v3 shape). It covers only the calls the sync and
// reconciliation stages need.
package woo

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
	"time"

	"golang.org/x/time/rate"
)

const (
	apiPrefix        = "/wp-json/wc/v3/"
	defaultTimeout   = 20 * time.Second
	defaultPageSize  = 100
	maxPageSize      = 100
	maxResponseBytes = 4 << 20
	maxListPages     = 1000
)

var (
	// ErrTransport wraps failures that happened before a response arrived.
	ErrTransport = errors.New("catalog transport failure")
	// ErrTermExists matches a StatusError reporting that a category exists.
	ErrTermExists = errors.New("catalog term already exists")
	// ErrNotFound is returned by lookups that matched nothing.
	ErrNotFound = errors.New("catalog entry not found")
)

// StatusError is a non-2xx response from the catalog.
type StatusError struct {
	Code       int
	Body       string
	APICode    string
	Message    string
	ResourceID int64
}

func (e *StatusError) Error() string {
	if e.APICode != "" {
		return fmt.Sprintf("catalog status %d: %s: %s", e.Code, e.APICode, e.Message)
	}
	return fmt.Sprintf("catalog status %d: %s", e.Code, truncate(e.Body, 200))
}

// Is lets errors.Is match ErrTermExists.
func (e *StatusError) Is(target error) bool {
	return target == ErrTermExists && e.APICode == "term_exists"
}

// Config holds connection settings. Credentials are supplied out of band.
type Config struct {
	BaseURL           string
	ConsumerKey       string
	ConsumerSecret    string
	Timeout           time.Duration
	RequestsPerSecond float64
	PageSize          int
	QueryStringAuth   bool
	UserAgent         string
}

// Category is a product category.
type Category struct {
	ID    int64  `json:"id,omitempty"`
	Name  string `json:"name"`
	Slug  string `json:"slug,omitempty"`
	Count int    `json:"count,omitempty"`
}

// CategoryLink references a category from a product.
type CategoryLink struct {
	ID int64 `json:"id"`
}

// Image references a product image by URL.
type Image struct {
	Src string `json:"src"`
}

// Product is the subset of the remote product used here.
type Product struct {
	ID           int64          `json:"id,omitempty"`
	Name         string         `json:"name"`
	Type         string         `json:"type,omitempty"`
	RegularPrice string         `json:"regular_price,omitempty"`
	Description  string         `json:"description,omitempty"`
	Categories   []CategoryLink `json:"categories,omitempty"`
	Images       []Image        `json:"images,omitempty"`
}

// Client talks to the catalog. It is safe for concurrent use.
type Client struct {
	cfg        Config
	base       *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a Client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("catalog base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse catalog base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PageSize <= 0 || cfg.PageSize > maxPageSize {
		cfg.PageSize = defaultPageSize
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{cfg: cfg, base: base, httpClient: httpClient, limiter: limiter}, nil
}

// PageSize is the per_page value used for listings.
func (c *Client) PageSize() int {
	return c.cfg.PageSize
}

// ListCategories returns every category, following pagination.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var all []Category
	for page := 1; page <= maxListPages; page++ {
		var batch []Category
		q := url.Values{}
		q.Set("per_page", strconv.Itoa(c.cfg.PageSize))
		q.Set("page", strconv.Itoa(page))
		if err := c.do(ctx, http.MethodGet, "products/categories", q, nil, &batch); err != nil {
			return all, err
		}
		all = append(all, batch...)
		if len(batch) < c.cfg.PageSize {
			break
		}
	}
	return all, nil
}

// FindCategory returns the category whose name equals name exactly.
func (c *Client) FindCategory(ctx context.Context, name string) (Category, error) {
	cats, err := c.ListCategories(ctx)
	if err != nil {
		return Category{}, err
	}
	for _, cat := range cats {
		if cat.Name == name {
			return cat, nil
		}
	}
	return Category{}, fmt.Errorf("category %q: %w", name, ErrNotFound)
}

// CreateCategory creates a category. If it already exists the returned error
// matches ErrTermExists and carries the existing id in StatusError.ResourceID.
func (c *Client) CreateCategory(ctx context.Context, name string) (Category, error) {
	var out Category
	if err := c.do(ctx, http.MethodPost, "products/categories", nil, Category{Name: name}, &out); err != nil {
		return Category{}, err
	}
	return out, nil
}

// SearchProducts returns products whose name contains term, server side.
// Callers must filter for exact matches.
func (c *Client) SearchProducts(ctx context.Context, term string) ([]Product, error) {
	var all []Product
	for page := 1; page <= maxListPages; page++ {
		var batch []Product
		q := url.Values{}
		q.Set("search", term)
		q.Set("per_page", strconv.Itoa(c.cfg.PageSize))
		q.Set("page", strconv.Itoa(page))
		if err := c.do(ctx, http.MethodGet, "products", q, nil, &batch); err != nil {
			return all, err
		}
		all = append(all, batch...)
		if len(batch) < c.cfg.PageSize {
			break
		}
	}
	return all, nil
}

// CreateProduct creates a product.
func (c *Client) CreateProduct(ctx context.Context, p Product) (Product, error) {
	var out Product
	if err := c.do(ctx, http.MethodPost, "products", nil, p, &out); err != nil {
		return Product{}, err
	}
	return out, nil
}

// UpdateProduct replaces the given fields of product id.
func (c *Client) UpdateProduct(ctx context.Context, id int64, p Product) (Product, error) {
	var out Product
	p.ID = 0
	path := "products/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodPut, path, nil, p, &out); err != nil {
		return Product{}, err
	}
	return out, nil
}

// ListProductsByCategory returns one page of the category's products.
// An empty slice means the listing is exhausted.
func (c *Client) ListProductsByCategory(ctx context.Context, categoryID int64, page int) ([]Product, error) {
	q := url.Values{}
	q.Set("category", strconv.FormatInt(categoryID, 10))
	q.Set("per_page", strconv.Itoa(c.cfg.PageSize))
	q.Set("page", strconv.Itoa(page))
	var out []Product
	if err := c.do(ctx, http.MethodGet, "products", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, resource string, query url.Values, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limiter: %w", ErrTransport, err)
		}
	}

	req, err := c.newRequest(ctx, method, resource, query, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, resource, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %w", ErrTransport, method, resource, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp.StatusCode, payload)
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, resource, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, resource string, query url.Values, body any) (*http.Request, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + apiPrefix + resource
	if query == nil {
		query = url.Values{}
	}
	if c.cfg.QueryStringAuth {
		query.Set("consumer_key", c.cfg.ConsumerKey)
		query.Set("consumer_secret", c.cfg.ConsumerSecret)
	}
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, resource, err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, resource, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if !c.cfg.QueryStringAuth && c.cfg.ConsumerKey != "" {
		req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)
	}
	return req, nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status     int   `json:"status"`
		ResourceID int64 `json:"resource_id"`
	} `json:"data"`
}

func newStatusError(code int, payload []byte) *StatusError {
	se := &StatusError{Code: code, Body: string(payload)}
	var ae apiError
	if json.Unmarshal(payload, &ae) == nil {
		se.APICode = ae.Code
		se.Message = ae.Message
		se.ResourceID = ae.Data.ResourceID
	}
	return se
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
