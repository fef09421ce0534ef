package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/minipay/internal/config"
	"github.com/congo-pay/minipay/internal/logging"
	"github.com/congo-pay/minipay/internal/metrics"
	"github.com/congo-pay/minipay/internal/middleware"
	"github.com/congo-pay/minipay/internal/routes"
	"github.com/congo-pay/minipay/internal/store"
)

const testAPIKey = "test-api-key"

type envelope struct {
	StatusCode        int    `json:"statusCode"`
	StatusMessage     string `json:"statusMessage"`
	StatusDescription string `json:"statusDescription"`
	Result            *struct {
		ErrorCode string          `json:"errorCode"`
		Data      json.RawMessage `json:"data"`
	} `json:"result"`
}

type client struct {
	t   *testing.T
	app *fiber.App
}

func newTestApp(t *testing.T, cache *redis.Client) *client {
	t.Helper()
	hash, err := middleware.HashAPIKey(testAPIKey, bcrypt.MinCost)
	require.NoError(t, err)

	srv, err := New(routes.Deps{
		Cfg: config.Config{
			AppName:                 "minipay-test",
			AppEnv:                  "test",
			JWTSecret:               "test-secret",
			AccessTokenTTL:          time.Hour,
			RefreshTokenTTL:         7 * 24 * time.Hour,
			IdempotencyTTL:          time.Minute,
			CreateAccountRatePerMin: 100,
			CORSAllowOrigins:        "*",
		},
		Cache:      cache,
		Logger:     logging.Discard(),
		Store:      store.NewMemory(),
		Metrics:    metrics.New(),
		APIKeyHash: hash,
	})
	require.NoError(t, err)
	return &client{t: t, app: srv.App()}
}

func (c *client) do(method, path, auth, body string, headers ...string) (int, envelope) {
	c.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(c.t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (c *client) createUser(username string) string {
	c.t.Helper()
	status, env := c.do(http.MethodPost, "/v1/user/create", testAPIKey, `{"username":"`+username+`"}`)
	require.Equal(c.t, http.StatusCreated, status, env.StatusDescription)
	require.NotNil(c.t, env.Result)

	var pair struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(c.t, json.Unmarshal(env.Result.Data, &pair))
	require.NotEmpty(c.t, pair.AccessToken)
	require.NotEmpty(c.t, pair.RefreshToken)
	return pair.AccessToken
}

func (c *client) balance(token string) int64 {
	c.t.Helper()
	status, env := c.do(http.MethodGet, "/v1/user/balance", "Bearer "+token, "")
	require.Equal(c.t, http.StatusOK, status, env.StatusDescription)
	var body struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(c.t, json.Unmarshal(env.Result.Data, &body))
	return body.Balance
}

func TestTopUpAndTransferFlow(t *testing.T) {
	c := newTestApp(t, nil)
	alice := c.createUser("alice1")
	bob := c.createUser("bobby1")

	assert.Equal(t, int64(0), c.balance(alice))

	status, env := c.do(http.MethodPost, "/v1/user/balance", "Bearer "+alice, `{"amount":1000}`)
	require.Equal(t, http.StatusOK, status, env.StatusDescription)
	assert.Equal(t, "00", env.Result.ErrorCode)
	assert.Equal(t, int64(1000), c.balance(alice))

	status, env = c.do(http.MethodPost, "/v1/user/transfer", "Bearer "+alice, `{"username":"bobby1","amount":300}`)
	require.Equal(t, http.StatusOK, status, env.StatusDescription)
	assert.Equal(t, int64(700), c.balance(alice))
	assert.Equal(t, int64(300), c.balance(bob))

	status, env = c.do(http.MethodGet, "/v1/user/history", "Bearer "+alice, "")
	require.Equal(t, http.StatusOK, status)
	var history struct {
		Entries []struct {
			Amount int64  `json:"amount"`
			Kind   string `json:"kind"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(env.Result.Data, &history))
	require.Len(t, history.Entries, 2)
	assert.Equal(t, int64(-300), history.Entries[0].Amount)
	assert.Equal(t, "transfer_out", history.Entries[0].Kind)
	assert.Equal(t, int64(1000), history.Entries[1].Amount)
}

func TestTransferRejections(t *testing.T) {
	c := newTestApp(t, nil)
	alice := c.createUser("alice1")
	c.createUser("bobby1")
	c.do(http.MethodPost, "/v1/user/balance", "Bearer "+alice, `{"amount":100}`)

	cases := []struct {
		name   string
		body   string
		status int
		desc   string
	}{
		{"insufficient", `{"username":"bobby1","amount":300}`, http.StatusBadRequest, "insufficient balance"},
		{"self", `{"username":"alice1","amount":10}`, http.StatusBadRequest, "cannot transfer to self"},
		{"unknown receiver", `{"username":"nobody1","amount":10}`, http.StatusNotFound, ""},
		{"amount too large", `{"username":"bobby1","amount":10000001}`, http.StatusBadRequest, ""},
		{"zero amount", `{"username":"bobby1","amount":0}`, http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := c.do(http.MethodPost, "/v1/user/transfer", "Bearer "+alice, tc.body)
			assert.Equal(t, tc.status, status, env.StatusDescription)
			assert.Equal(t, tc.status, env.StatusCode)
			if tc.desc != "" {
				assert.Equal(t, tc.desc, env.StatusDescription)
			}
			assert.Nil(t, env.Result)
		})
	}
	assert.Equal(t, int64(100), c.balance(alice))
}

func TestCreateAccountRequiresAPIKey(t *testing.T) {
	c := newTestApp(t, nil)

	status, env := c.do(http.MethodPost, "/v1/user/create", "wrong-key", `{"username":"alice1"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "please ensure you have the correct api key", env.StatusDescription)

	status, _ = c.do(http.MethodPost, "/v1/user/create", "", `{"username":"alice1"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCreateAccountValidation(t *testing.T) {
	c := newTestApp(t, nil)
	c.createUser("alice1")

	status, env := c.do(http.MethodPost, "/v1/user/create", testAPIKey, `{"username":"alice1"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "username already exist", env.StatusDescription)

	status, env = c.do(http.MethodPost, "/v1/user/create", testAPIKey, `{"username":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "username must be at least 5 characters long", env.StatusDescription)

	status, env = c.do(http.MethodPost, "/v1/user/create", testAPIKey, `{"username":"has space"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "username cannot contain spaces", env.StatusDescription)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	c := newTestApp(t, nil)

	status, env := c.do(http.MethodGet, "/v1/user/balance", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "access token is required", env.StatusDescription)

	status, env = c.do(http.MethodGet, "/v1/user/balance", "Bearer not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token is invalid", env.StatusDescription)
}

func TestRefreshIssuesWorkingAccessToken(t *testing.T) {
	c := newTestApp(t, nil)
	status, env := c.do(http.MethodPost, "/v1/user/create", testAPIKey, `{"username":"alice1"}`)
	require.Equal(t, http.StatusCreated, status)
	var pair struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(env.Result.Data, &pair))

	// A refresh token is not an access token.
	status, _ = c.do(http.MethodGet, "/v1/user/balance", "Bearer "+pair.RefreshToken, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = c.do(http.MethodPost, "/v1/auth/refresh", "", `{"refreshToken":"`+pair.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, status, env.StatusDescription)
	var access struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(env.Result.Data, &access))
	assert.Equal(t, int64(0), c.balance(access.AccessToken))

	status, _ = c.do(http.MethodPost, "/v1/auth/refresh", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealthMetricsAndNotFound(t *testing.T) {
	c := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := c.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	alice := c.createUser("alice1")
	c.do(http.MethodPost, "/v1/user/balance", "Bearer "+alice, `{"amount":50}`)

	resp, err = c.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "minipay_wallet_operations_total")
	assert.Contains(t, string(body), "minipay_http_requests_total")

	status, env := c.do(http.MethodGet, "/v1/nothing-here", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "resource not found", env.StatusDescription)
}

func TestIdempotentTopUpIsAppliedOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	c := newTestApp(t, cache)
	alice := c.createUser("alice1")

	for i := 0; i < 3; i++ {
		status, env := c.do(http.MethodPost, "/v1/user/balance", "Bearer "+alice, `{"amount":500}`,
			"Idempotency-Key", "topup-1")
		require.Equal(t, http.StatusOK, status, env.StatusDescription)
	}
	assert.Equal(t, int64(500), c.balance(alice))

	status, _ := c.do(http.MethodPost, "/v1/user/balance", "Bearer "+alice, `{"amount":500}`,
		"Idempotency-Key", "topup-2")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1000), c.balance(alice))
}

func TestSetupRequiresInfraOutsideDevelopment(t *testing.T) {
	_, err := New(routes.Deps{
		Cfg:    config.Config{AppEnv: "production"},
		Logger: logging.Discard(),
	})
	assert.Error(t, err)
}
