package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/authgate/internal/domain"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestUserRepository_Create(t *testing.T) {
	mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(q("INSERT INTO users (email, credential_version)")).
		WithArgs("ada@example.com", "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("u1", now, now))

	user := &domain.User{Email: "ada@example.com"}
	require.NoError(t, NewUserRepository(mock).Create(context.Background(), user))
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, now, user.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_Conflict(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(q("INSERT INTO users")).
		WithArgs("ada@example.com", "").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := NewUserRepository(mock).Create(context.Background(), &domain.User{Email: "ada@example.com"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(q("FROM users WHERE id=$1")).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := NewUserRepository(mock).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_GetByEmail(t *testing.T) {
	mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(q("FROM users WHERE email=$1")).
		WithArgs("ada@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "credential_version", "created_at", "updated_at"}).
			AddRow("u1", "ada@example.com", "v1", now, now))

	user, err := NewUserRepository(mock).GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "v1", user.CredentialVersion)
}

func TestUserRepository_Update_NoRows(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec(q("UPDATE users SET email=$1, credential_version=$2")).
		WithArgs("ada@example.com", "v2", "u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewUserRepository(mock).Update(context.Background(), &domain.User{ID: "u1", Email: "ada@example.com", CredentialVersion: "v2"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCredentialRepository_CreateAndGet(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	digest := []byte{1, 2, 3}
	salt := []byte{4, 5}

	mock.ExpectQuery(q("INSERT INTO credentials (user_id, digest, salt)")).
		WithArgs("u1", digest, salt).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery(q("FROM credentials WHERE user_id=$1")).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "digest", "salt", "created_at"}).AddRow("u1", digest, salt, now))

	repo := NewCredentialRepository(mock)
	require.NoError(t, repo.Create(context.Background(), &domain.Credential{UserID: "u1", Digest: digest, Salt: salt}))

	cred, err := repo.GetByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, digest, cred.Digest)
	assert.Equal(t, salt, cred.Salt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNonceRepository_UpsertOverwrites(t *testing.T) {
	mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(q("ON CONFLICT (owner_id, purpose)")).
		WithArgs("u1", "pw_reset", "abc").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM nonces WHERE owner_id=$1")).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	repo := NewNonceRepository(mock)
	require.NoError(t, repo.Upsert(context.Background(), &domain.Nonce{OwnerID: "u1", Purpose: "pw_reset", Value: "abc"}))

	n, err := repo.CountByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBridgeRepository_ListBridges(t *testing.T) {
	mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(q("SELECT name, created_at FROM feature_bridges")).
		WillReturnRows(pgxmock.NewRows([]string{"name", "created_at"}).
			AddRow("beta", now).
			AddRow("search", now))
	mock.ExpectQuery(q("FROM feature_filters ORDER BY bridge_name, position, id")).
		WillReturnRows(pgxmock.NewRows([]string{"id", "bridge_name", "position", "kind", "whitelist", "payload"}).
			AddRow(int64(1), "beta", 0, "all-users", true, []byte(`{}`)).
			AddRow(int64(2), "beta", 1, "specific-users", false, []byte(`{"ids":["u9"]}`)).
			AddRow(int64(3), "orphan", 0, "all-users", true, []byte(`{}`)))

	bridges, err := NewBridgeRepository(mock).ListBridges(context.Background())
	require.NoError(t, err)
	require.Len(t, bridges, 2)
	assert.Equal(t, "beta", bridges[0].Name)
	require.Len(t, bridges[0].Filters, 2)
	assert.Equal(t, domain.FilterKindSpecificUsers, bridges[0].Filters[1].Kind)
	assert.False(t, bridges[0].Filters[1].Whitelist)
	assert.Empty(t, bridges[1].Filters)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBridgeRepository_DeleteBridge_NotFound(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec(q("DELETE FROM feature_filters WHERE bridge_name=$1")).
		WithArgs("ghost").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(q("DELETE FROM feature_bridges WHERE name=$1")).
		WithArgs("ghost").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := NewBridgeRepository(mock).DeleteBridge(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnitOfWork_CommitsOnSuccess(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM credentials WHERE user_id=$1")).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	uow := NewPostgresUnitOfWork(mock, UnitOfWorkOptions{})
	err := uow.Atomic(context.Background(), func(ctx context.Context, tx UnitOfWork) error {
		return tx.Credentials().DeleteByUser(ctx, "u1")
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_RollsBackOnError(t *testing.T) {
	mock := newMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	uow := NewPostgresUnitOfWork(mock, UnitOfWorkOptions{})
	err := uow.Atomic(context.Background(), func(context.Context, UnitOfWork) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_RollsBackOnPanic(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	uow := NewPostgresUnitOfWork(mock, UnitOfWorkOptions{})
	assert.Panics(t, func() {
		_ = uow.Atomic(context.Background(), func(context.Context, UnitOfWork) error {
			panic("kaboom")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_NestedJoinReusesTransaction(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	uow := NewPostgresUnitOfWork(mock, UnitOfWorkOptions{Nested: NestedJoin})
	calls := 0
	err := uow.Atomic(context.Background(), func(ctx context.Context, tx UnitOfWork) error {
		calls++
		return tx.Atomic(ctx, func(context.Context, UnitOfWork) error {
			calls++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_BulkModeSkipsTransaction(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec(q("DELETE FROM nonces WHERE owner_id=$1")).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	uow := NewPostgresUnitOfWork(mock, UnitOfWorkOptions{BulkMode: true})
	assert.False(t, uow.Transactional())

	err := uow.Atomic(context.Background(), func(ctx context.Context, tx UnitOfWork) error {
		return tx.Nonces().DeleteByOwner(ctx, "u1")
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
