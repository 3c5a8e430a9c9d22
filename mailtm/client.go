// Package mailtm is a small client for the mail.tm style disposable email
// REST API: domain listing, account creation, token issuance, message
// retrieval and deletion. The client holds no per-account state; bearer
// tokens are passed per call so one client can serve many accounts.
package mailtm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the public provider endpoint
const DefaultBaseURL = "https://api.mail.tm"

// Client is the HTTP API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *Retry
}

// Option configures the client
type Option func(*Client)

// WithBaseURL points the client at a different API endpoint
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom http client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetry sets a custom retry policy
func WithRetry(r *Retry) Option {
	return func(c *Client) {
		c.retry = r
	}
}

// New returns a configured client
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: DefaultRetry(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// do runs one API call with retries. token may be empty for unauthenticated
// endpoints. The request body is rebuilt for every attempt.
func (c *Client) do(ctx context.Context, method, path, token string, body interface{}, result interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("mailtm: failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("mailtm: failed to create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil || attempt >= c.retry.MaxRetries {
				return fmt.Errorf("mailtm: request failed: %w", lastErr)
			}
			if err := c.retry.Wait(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode >= 400 {
			apiErr := parseErrorResponse(resp)
			resp.Body.Close()
			if !c.retry.ShouldRetry(attempt, resp.StatusCode) {
				return apiErr
			}
			lastErr = apiErr
			if err := c.retry.Wait(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		if result != nil {
			err = json.NewDecoder(resp.Body).Decode(result)
		}
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("mailtm: failed to decode response: %w", err)
		}
		return nil
	}
}

func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	var errResp struct {
		Title  string `json:"hydra:title"`
		Detail string `json:"hydra:description"`
		Msg    string `json:"message"`
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
	}

	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Title != "" {
			apiErr.Message = errResp.Title
		} else if errResp.Msg != "" {
			apiErr.Message = errResp.Msg
		}
		apiErr.Detail = errResp.Detail
	}

	return apiErr
}

// Domains lists the provider's sending domains
func (c *Client) Domains(ctx context.Context) ([]Domain, error) {
	var collection hydraCollection[Domain]
	if err := c.do(ctx, http.MethodGet, "/domains", "", nil, &collection); err != nil {
		return nil, err
	}
	return collection.Members, nil
}

// CreateAccount registers a new account with the given address and password
func (c *Client) CreateAccount(ctx context.Context, address, password string) (Account, error) {
	var account Account
	err := c.do(ctx, http.MethodPost, "/accounts", "", createAccountRequest{
		Address:  address,
		Password: password,
	}, &account)
	return account, err
}

// Token exchanges account credentials for a bearer token
func (c *Client) Token(ctx context.Context, address, password string) (string, error) {
	var res tokenResponse
	err := c.do(ctx, http.MethodPost, "/token", "", tokenRequest{
		Address:  address,
		Password: password,
	}, &res)
	return res.Token, err
}

// GetAccount fetches the canonical account record for the token's account
func (c *Client) GetAccount(ctx context.Context, token string) (Account, error) {
	var account Account
	err := c.do(ctx, http.MethodGet, "/me", token, nil, &account)
	return account, err
}

// Messages lists the account's messages, newest first
func (c *Client) Messages(ctx context.Context, token string) ([]Message, error) {
	var collection hydraCollection[Message]
	if err := c.do(ctx, http.MethodGet, "/messages", token, nil, &collection); err != nil {
		return nil, err
	}
	return collection.Members, nil
}

// Message fetches a single message including its bodies
func (c *Client) Message(ctx context.Context, token, id string) (Message, error) {
	var message Message
	err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(id), token, nil, &message)
	return message, err
}

// DeleteMessage deletes a single message
func (c *Client) DeleteMessage(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(id), token, nil, nil)
}

// DeleteAccount deletes the account itself. The token must belong to the
// account being deleted.
func (c *Client) DeleteAccount(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/accounts/"+url.PathEscape(id), token, nil, nil)
}
