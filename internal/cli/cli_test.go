package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/authgate/internal/bootstrap"
	"github.com/spec-kit/authgate/internal/config"
	"github.com/spec-kit/authgate/internal/events"
	"github.com/spec-kit/authgate/internal/repository/memstore"
	"github.com/spec-kit/authgate/internal/worker"
)

func newTestApp(t *testing.T) (AppFactory, *bootstrap.App) {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Name: "authgate", Env: "test"},
		Auth: config.AuthConfig{
			TokenSecret:     "test-secret",
			Argon2Time:      1,
			Argon2MemoryKiB: 1024,
			Argon2Threads:   1,
		},
	}
	a, err := bootstrap.Build(context.Background(), cfg, zap.NewNop(), bootstrap.WithStore(memstore.New()))
	require.NoError(t, err)
	return func(context.Context) (*bootstrap.App, error) { return a, nil }, a
}

func run(t *testing.T, factory AppFactory, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Execute(context.Background(), factory, args, &out)
	return out.String(), err
}

func TestBridgesAndCheck(t *testing.T) {
	factory, a := newTestApp(t)
	user, _, err := a.Auth.Register(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)

	out, err := run(t, factory, "bridges", "create", "beta")
	require.NoError(t, err)
	assert.Equal(t, "created bridge beta\n", out)

	_, err = run(t, factory, "filters", "add", "beta", "--kind", "all-users")
	require.NoError(t, err)
	out, err = run(t, factory, "filters", "add", "beta", "--kind", "specific-users", "--blacklist",
		"--payload", `{"emails":["eve@example.com"]}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"position": 1`)
	assert.Contains(t, out, `"whitelist": false`)

	out, err = run(t, factory, "check", "beta", "--user", user.ID)
	require.NoError(t, err)
	assert.Equal(t, "beta: allowed for "+user.ID+"\n", out)

	out, err = run(t, factory, "check", "beta", "--email", "ada@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "allowed")

	out, err = run(t, factory, "check", "beta")
	require.NoError(t, err)
	assert.Equal(t, "beta: denied for anonymous\n", out)

	out, err = run(t, factory, "bridges", "list")
	require.NoError(t, err)
	var listed []struct {
		Name    string `json:"name"`
		Filters []any  `json:"filters"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Len(t, listed[0].Filters, 2)

	out, err = run(t, factory, "bust")
	require.NoError(t, err)
	assert.Equal(t, "feature gate cache busted\n", out)

	_, err = run(t, factory, "bridges", "delete", "beta")
	require.NoError(t, err)
	out, err = run(t, factory, "check", "beta", "--user", user.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "denied")
}

func TestFiltersAdd_RejectsBadInput(t *testing.T) {
	factory, _ := newTestApp(t)
	_, err := run(t, factory, "bridges", "create", "beta")
	require.NoError(t, err)

	_, err = run(t, factory, "filters", "add", "beta", "--kind", "percentage", "--payload", "{not json")
	assert.Error(t, err)
	_, err = run(t, factory, "filters", "add", "beta", "--kind", "percentage", "--payload", `{"percentage":-1}`)
	assert.Error(t, err)
	_, err = run(t, factory, "filters", "add", "beta")
	assert.Error(t, err)
	_, err = run(t, factory, "bridges", "create", "Not Valid")
	assert.Error(t, err)
}

func TestTokenMintAndVerify(t *testing.T) {
	factory, a := newTestApp(t)
	user, _, err := a.Auth.Register(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)

	out, err := run(t, factory, "token", "mint", "--user", user.ID, "--variant", "transfer")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	require.NotEmpty(t, token)

	type verdict struct {
		Valid   bool   `json:"valid"`
		Outcome string `json:"outcome"`
		UserID  string `json:"user_id"`
		Email   string `json:"email"`
	}

	out, err = run(t, factory, "token", "verify", "--variant", "transfer", token)
	require.NoError(t, err)
	var v verdict
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.True(t, v.Valid)
	assert.Equal(t, "ok", v.Outcome)
	assert.Equal(t, user.ID, v.UserID)
	assert.Equal(t, "ada@example.com", v.Email)

	out, err = run(t, factory, "token", "verify", "--variant", "auth", token)
	require.NoError(t, err)
	v = verdict{}
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.False(t, v.Valid)
	assert.Empty(t, v.Email)

	out, err = run(t, factory, "token", "verify", "not-a-token")
	require.NoError(t, err)
	v = verdict{}
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "malformed", v.Outcome)

	_, err = run(t, factory, "token", "mint", "--user", user.ID, "--variant", "session")
	assert.ErrorContains(t, err, "unknown variant")
	_, err = run(t, factory, "token", "mint", "--user", "ghost")
	assert.Error(t, err)
}

func TestExecute_ClosesAppWhenCommandFails(t *testing.T) {
	factory, a := newTestApp(t)

	_, err := run(t, factory, "bridges", "delete", "ghost")
	require.Error(t, err)

	err = a.Worker.Publish(context.Background(), events.Event{Type: events.EventUserRegistered})
	assert.ErrorIs(t, err, worker.ErrStopped)
}
