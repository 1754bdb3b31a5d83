package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/authgate/internal/auth"
	"github.com/spec-kit/authgate/internal/bootstrap"
	"github.com/spec-kit/authgate/internal/config"
	"github.com/spec-kit/authgate/internal/featuregate"
	"github.com/spec-kit/authgate/internal/repository/memstore"
)

const adminKey = "admin-key"

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:        "authgate",
			Env:         "test",
			Version:     "test",
			AdminAPIKey: adminKey,
		},
		Auth: config.AuthConfig{
			TokenSecret:     "test-secret",
			Argon2Time:      1,
			Argon2MemoryKiB: 1024,
			Argon2Threads:   1,
			CookieName:      "auth",
		},
		FeatureGate: config.FeatureGateConfig{CacheKey: "fg", RecheckOnFlush: true},
	}
}

type server struct {
	t   *testing.T
	app *fiber.App
	a   *bootstrap.App
}

func newServer(t *testing.T) *server {
	t.Helper()
	a, err := bootstrap.Build(context.Background(), testConfig(), zap.NewNop(), bootstrap.WithStore(memstore.New()))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return &server{t: t, app: a.HTTP(), a: a}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *server) do(method, path string, body any, headers map[string]string) (*http.Response, envelope) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	_ = resp.Body.Close()
	if len(raw) > 0 {
		require.NoError(s.t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func bearer(token string) map[string]string {
	return map[string]string{fiber.HeaderAuthorization: "Bearer " + token}
}

func admin() map[string]string {
	return map[string]string{auth.AdminKeyHeader: adminKey}
}

type authData struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Auth struct {
		Token string `json:"token"`
	} `json:"auth"`
}

func (s *server) register(email, password string) authData {
	s.t.Helper()
	resp, env := s.do(http.MethodPost, "/auth/users/register", map[string]string{"email": email, "password": password}, nil)
	require.Equal(s.t, http.StatusCreated, resp.StatusCode, env.Error.Message)
	var data authData
	require.NoError(s.t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(s.t, data.Auth.Token)
	return data
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	resp, _ := s.do(http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterLoginAndMe(t *testing.T) {
	s := newServer(t)
	reg := s.register("Ada@Example.com", "s3cret")
	assert.Equal(t, "ada@example.com", reg.User.Email)

	resp, env := s.do(http.MethodPost, "/auth/users/register", map[string]string{"email": "ada@example.com", "password": "x"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	resp, env = s.do(http.MethodPost, "/auth/users/login", map[string]string{"email": "ada@example.com", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	resp, env = s.do(http.MethodPost, "/auth/users/login", map[string]string{"email": "ada@example.com", "password": "s3cret"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login authData
	require.NoError(t, json.Unmarshal(env.Data, &login))

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "auth" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, login.Auth.Token, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	resp, env = s.do(http.MethodGet, "/auth/users/me", nil, bearer(login.Auth.Token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), reg.User.ID)

	req := httptest.NewRequest(http.MethodGet, "/auth/users/me", nil)
	req.AddCookie(&http.Cookie{Name: "auth", Value: login.Auth.Token})
	cookieResp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, cookieResp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/auth/users/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, env = s.do(http.MethodGet, "/auth/users/me", nil, bearer("garbage"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid token", env.Error.Message)
}

func TestChangePasswordRevokesOldTokens(t *testing.T) {
	s := newServer(t)
	reg := s.register("ada@example.com", "old-password")

	resp, env := s.do(http.MethodPost, "/auth/password/change",
		map[string]string{"current_password": "old-password", "new_password": "new-password"}, bearer(reg.Auth.Token))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error.Message)
	var issued struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &issued))

	resp, _ = s.do(http.MethodGet, "/auth/users/me", nil, bearer(reg.Auth.Token))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = s.do(http.MethodGet, "/auth/users/me", nil, bearer(issued.Token))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPasswordResetRequest_DoesNotRevealAccounts(t *testing.T) {
	s := newServer(t)
	s.register("ada@example.com", "pw")

	for _, email := range []string{"ada@example.com", "nobody@example.com"} {
		resp, _ := s.do(http.MethodPost, "/auth/password/reset/request", map[string]string{"email": email}, nil)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode, email)
	}

	resp, env := s.do(http.MethodPost, "/auth/password/reset/confirm",
		map[string]string{"token": "bm9wZQ==", "new_password": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid token", env.Error.Message)
}

func TestTransfer(t *testing.T) {
	s := newServer(t)
	reg := s.register("ada@example.com", "pw")

	resp, env := s.do(http.MethodPost, "/auth/transfer", nil, bearer(reg.Auth.Token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var transfer struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &transfer))

	resp, env = s.do(http.MethodPost, "/auth/transfer/complete", map[string]string{"token": transfer.Token}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error.Message)
	var completed authData
	require.NoError(t, json.Unmarshal(env.Data, &completed))
	assert.Equal(t, reg.User.ID, completed.User.ID)

	resp, _ = s.do(http.MethodPost, "/auth/transfer/complete", map[string]string{"token": transfer.Token}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGates(t *testing.T) {
	s := newServer(t)
	reg := s.register("ada@example.com", "pw")

	resp, env := s.do(http.MethodGet, "/gates/beta", nil, bearer(reg.Auth.Token))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "feature not available", env.Error.Message)

	resp, _ = s.do(http.MethodPost, "/admin/gates", map[string]string{"name": "beta"}, admin())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, env = s.do(http.MethodPost, "/admin/gates/beta/filters",
		map[string]any{"kind": "all-users", "whitelist": true}, admin())
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Error.Message)

	resp, env = s.do(http.MethodGet, "/gates/beta", nil, bearer(reg.Auth.Token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"bridge":"beta","allowed":true}`, string(env.Data))

	resp, _ = s.do(http.MethodGet, "/gates/beta", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, env = s.do(http.MethodPost, "/admin/gates/beta/filters",
		map[string]any{"kind": "percentage", "whitelist": true, "payload": map[string]any{"percentage": 101}}, admin())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	resp, env = s.do(http.MethodPost, "/admin/gates/bust", nil, admin())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"state":"EMPTY"}`, string(env.Data))

	resp, env = s.do(http.MethodGet, "/admin/metrics", nil, admin())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap struct {
		Crossings map[string]int64 `json:"crossings"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, int64(1), snap.Crossings["beta|true"])
	assert.Equal(t, int64(1), snap.Crossings["beta|false"])
	assert.Equal(t, int64(1), snap.Crossings[featuregate.UnknownBridge+"|false"])
}

func TestAdminRequiresKey(t *testing.T) {
	s := newServer(t)

	resp, env := s.do(http.MethodPost, "/admin/gates/bust", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	resp, _ = s.do(http.MethodGet, "/admin/gates", nil, map[string]string{auth.AdminKeyHeader: "wrong"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
