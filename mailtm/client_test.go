package mailtm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetry keeps test backoffs down in the millisecond range
func fastRetry() *Retry {
	r := DefaultRetry()
	r.MaxRetries = 2
	r.BaseDelay = time.Millisecond
	r.MaxDelay = time.Millisecond
	r.Jitter = 0
	return r
}

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := New(WithBaseURL(srv.URL), WithRetry(fastRetry()), WithHTTPClient(srv.Client()))
	return c, srv
}

func TestClient_Domains(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/domains", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Empty(t, r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{
			"hydra:member": [
				{"id": "d1", "domain": "example.com", "isActive": true, "isPrivate": false},
				{"id": "d2", "domain": "internal.example.com", "isActive": true, "isPrivate": true}
			],
			"hydra:totalItems": 2
		}`))
	})
	defer srv.Close()

	domains, err := c.Domains(context.Background())
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "example.com", domains[0].Domain)
	assert.True(t, domains[0].IsActive)
	assert.True(t, domains[1].IsPrivate)
}

func TestClient_CreateAccount(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/accounts", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req createAccountRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "box@example.com", req.Address)
		assert.Equal(t, "hunter22", req.Password)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "acc-1", "address": "box@example.com"}`))
	})
	defer srv.Close()

	account, err := c.CreateAccount(context.Background(), "box@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", account.ID)
	assert.Equal(t, "box@example.com", account.Address)
}

func TestClient_Token(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/token", r.URL.Path)

		_, _ = w.Write([]byte(`{"id": "acc-1", "token": "bearer-1"}`))
	})
	defer srv.Close()

	tk, err := c.Token(context.Background(), "box@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "bearer-1", tk)
}

func TestClient_GetAccount(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		assert.Equal(t, "Bearer bearer-1", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{"id": "acc-1", "address": "box@example.com", "quota": 40000000}`))
	})
	defer srv.Close()

	account, err := c.GetAccount(context.Background(), "bearer-1")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", account.ID)
	assert.Equal(t, int64(40000000), account.Quota)
}

func TestClient_Messages(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer bearer-1", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{
			"hydra:member": [
				{"id": "msg-1", "from": {"address": "bob@example.com", "name": "Bobby Tables"}, "subject": "hello", "seen": false}
			],
			"hydra:totalItems": 1
		}`))
	})
	defer srv.Close()

	msgs, err := c.Messages(context.Background(), "bearer-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "msg-1", msgs[0].ID)
	assert.Equal(t, "bob@example.com", msgs[0].From.Address)
	assert.Equal(t, "hello", msgs[0].Subject)
}

func TestClient_Message(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/msg-1", r.URL.Path)

		_, _ = w.Write([]byte(`{"id": "msg-1", "subject": "hello", "text": "hello there", "html": ["<p>hello there</p>"]}`))
	})
	defer srv.Close()

	msg, err := c.Message(context.Background(), "bearer-1", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "hello there", msg.Text)
	require.Len(t, msg.HTML, 1)
}

func TestClient_DeleteAccount(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/accounts/acc-1", r.URL.Path)

		w.WriteHeader(http.StatusNoContent)
	})
	defer srv.Close()

	assert.NoError(t, c.DeleteAccount(context.Background(), "bearer-1", "acc-1"))
}

func TestClient_ErrorResponse(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"hydra:title": "An error occurred", "hydra:description": "address: This value is already used."}`))
	})
	defer srv.Close()

	_, err := c.CreateAccount(context.Background(), "box@example.com", "hunter22")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "An error occurred", apiErr.Message)
	assert.Equal(t, "address: This value is already used.", apiErr.Detail)
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	var calls int64
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"hydra:member": [], "hydra:totalItems": 0}`))
	})
	defer srv.Close()

	_, err := c.Domains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls int64
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer srv.Close()

	_, err := c.Domains(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)

	// first try plus MaxRetries retries
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls int64
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message": "bad request"}`))
	})
	defer srv.Close()

	_, err := c.Domains(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "bad request", apiErr.Message)
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	retry := fastRetry()
	retry.BaseDelay = time.Hour
	retry.MaxDelay = time.Hour

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithRetry(retry), WithHTTPClient(srv.Client()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := c.Domains(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled request did not return")
	}
}
