package orb

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/orb-community/orb-acceptance/pkg/errors"
)

const (
	pageSize = 100
	// tokens are renewed when they expire within this margin
	expiryMargin = time.Minute
)

// Client talks to the Orb control plane REST API on behalf of one user.
type Client struct {
	client   *http.Client
	baseURL  string
	email    string
	password string

	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time
}

type Option func(*Client)

// WithTransport replaces the transport, typically with a diag.Recorder.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.client.Transport = rt
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewTransport returns the default transport, skipping certificate checks
// unless verifyTLS is set.
func NewTransport(verifyTLS bool) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: !verifyTLS}
	return t
}

func NewClient(baseURL, email, password string, opts ...Option) *Client {
	c := &Client{
		client:   &http.Client{Transport: NewTransport(true)},
		baseURL:  baseURL,
		email:    email,
		password: password,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges the credentials for a token and records its expiry.
func (c *Client) Login(ctx context.Context) error {
	var resp loginResponse
	if err := c.send(ctx, http.MethodPost, "/api/v1/tokens", nil, loginRequest{Email: c.email, Password: c.password}, &resp, "", http.StatusCreated); err != nil {
		return fmt.Errorf("logging in as %s: %w", c.email, err)
	}

	expiry, err := tokenExpiry(resp.Token)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = resp.Token
	c.expiry = expiry

	zap.S().Debugw("logged in", "email", c.email, "expiry", expiry)
	return nil
}

// Token returns a valid token, logging in again when the current one is
// missing or about to expire.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	token, expiry := c.token, c.expiry
	c.mu.Unlock()

	if token != "" && (expiry.IsZero() || c.now().Add(expiryMargin).Before(expiry)) {
		return token, nil
	}
	if err := c.Login(ctx); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// control plane is the only party checking it. Tokens without exp never expire.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parsing token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// do sends an authenticated request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, expected ...int) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, query, body, out, token, expected...)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body, out any, token string, expected ...int) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if !slices.Contains(expected, resp.StatusCode) {
		return errors.NewUnexpectedStatusError(method, path, resp.StatusCode, data, expected...)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// get fetches one resource and maps 404 to ResourceNotFoundError.
func (c *Client) get(ctx context.Context, kind, path, id string, out any) error {
	err := c.do(ctx, http.MethodGet, path+"/"+id, nil, nil, out, http.StatusOK)
	if errors.StatusCode(err) == http.StatusNotFound {
		return errors.NewResourceNotFoundError(kind, id)
	}
	return err
}

// listAll walks every page of an offset-paginated collection stored under key.
func listAll[T any](ctx context.Context, c *Client, path, key string) ([]T, error) {
	var all []T
	offset := 0
	for {
		query := url.Values{
			"limit":  {strconv.Itoa(pageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		var page map[string]json.RawMessage
		if err := c.do(ctx, http.MethodGet, path, query, nil, &page, http.StatusOK); err != nil {
			return nil, err
		}

		var items []T
		if raw, ok := page[key]; ok && string(raw) != "null" {
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("decoding %s: %w", key, err)
			}
		}
		var total int
		if raw, ok := page["total"]; ok {
			if err := json.Unmarshal(raw, &total); err != nil {
				return nil, fmt.Errorf("decoding total: %w", err)
			}
		}

		all = append(all, items...)
		offset += len(items)
		if len(items) == 0 || offset >= total {
			return all, nil
		}
	}
}
