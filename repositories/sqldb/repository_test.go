package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/yapi/config"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/repositories"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return Wrap(sqlDB, config.DriverPostgres, zap.NewNop()), mock
}

var userRowColumns = []string{"id", "username", "email", "password_hash", "salt_version", "role_id", "deleted", "last_login_at", "created_at", "updated_at"}

func TestUserRepository_GetByUsername(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	ctx := context.Background()

	id, roleID := uuid.New(), uuid.New()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow(id.String(), "alice", "alice@example.com", "hash", "v1", roleID.String(), false, nil, now, now))

		user, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, roleID, user.RoleID)
		assert.Nil(t, user.LastLoginAt)
	})

	t.Run("null username", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
			WithArgs("bob@example.com").
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow(id.String(), nil, "bob@example.com", "hash", "v1", roleID.String(), false, now, now, now))

		user, err := repo.GetByEmail(ctx, "bob@example.com")
		require.NoError(t, err)
		assert.False(t, user.HasUsername())
		require.NotNil(t, user.LastLoginAt)
		assert.Equal(t, now, *user.LastLoginAt)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows(userRowColumns))

		_, err := repo.GetByUsername(ctx, "ghost")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("connection lost", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
			WithArgs("alice").
			WillReturnError(&pq.Error{Code: "08006"})

		_, err := repo.GetByUsername(ctx, "alice")
		assert.ErrorIs(t, err, repositories.ErrUnavailable)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())

	user := models.NewUser("", "carol@example.com", uuid.New())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(user.ID, nil, user.Email, "", "", user.RoleID, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), user))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), user)
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_SetUsername(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $3 AND username IS NULL")).
		WithArgs("dave", now, id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetUsername(context.Background(), id, "dave", now))

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $3 AND username IS NULL")).
		WithArgs("other", now, id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.SetUsername(context.Background(), id, "other", now)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_MarkLoginDeletedUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET last_login_at = $1 WHERE id = $2 AND deleted = FALSE")).
		WithArgs(sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkLogin(context.Background(), id, time.Now())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_InvalidateAll(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTokenRepository(db, zap.NewNop())
	userID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_tokens SET is_valid = FALSE WHERE user_id = $1 AND is_valid = TRUE")).
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_tokens SET is_valid = FALSE")).
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.InvalidateAll(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.InvalidateAll(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTokenRepository(db, zap.NewNop())
	id, userID := uuid.New(), uuid.New()
	issued := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_tokens")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "is_valid", "issued_at", "expires_at"}).
			AddRow(id.String(), userID.String(), "abc", true, issued, issued.Add(time.Hour)))

	token, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, userID, token.UserID)
	assert.True(t, token.IsValid)
	assert.Equal(t, issued.Add(time.Hour), token.ExpiresAt)

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_tokens")).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepository_Permissions(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoleRepository(db, zap.NewNop())
	roleID := uuid.New()
	now := time.Now().UTC()
	p1, p2 := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("JOIN role_permissions rp ON rp.permission_id = p.id")).
		WithArgs(roleID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "deleted", "created_at", "updated_at"}).
			AddRow(p1.String(), "Create content", "content.create", false, now, now).
			AddRow(p2.String(), "Edit content", "content.edit", false, now, now))

	set, err := repo.Permissions(context.Background(), roleID)
	require.NoError(t, err)
	assert.Equal(t, []string{"content.create", "content.edit"}, set.Slugs())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupRepository_ListForUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGroupRepository(db, zap.NewNop())
	userID, g1 := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE ug.user_id = $1 AND g.deleted = FALSE")).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug"}).
			AddRow(g1.String(), "Editors", "editors"))

	refs, err := repo.ListForUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, models.GroupRef{ID: g1, Name: "Editors", Slug: "editors"}, refs[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db, zap.NewNop())

	userID := uuid.New()
	entry := models.NewAuditLog(models.AuditActionLoginSucceeded, "user").
		WithUser(userID).
		WithDetails(map[string]string{"identifier": "alice"})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(entry.ID, sqlmock.AnyArg(), "login_succeeded", "user", sqlmock.AnyArg(),
			`{"identifier":"alice"}`, "", "", "", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_InTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db, zap.NewNop())
	tokens := NewTokenRepository(db, zap.NewNop())
	userID := uuid.New()

	t.Run("commits on success and routes queries through the tx", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE user_tokens")).
			WithArgs(userID).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
			_, ok := GetTransactionFromContext(ctx)
			assert.True(t, ok)
			_, err := tokens.InvalidateAll(ctx, userID)
			return err
		})
		require.NoError(t, err)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("nested call joins the outer transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE user_tokens")).
			WithArgs(userID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := tm.InTransaction(context.Background(), func(ctx context.Context, outer repositories.Transaction) error {
			return tm.InTransaction(ctx, func(ctx context.Context, inner repositories.Transaction) error {
				assert.Same(t, outer, inner)
				_, err := tokens.InvalidateAll(ctx, userID)
				return err
			})
		})
		require.NoError(t, err)
	})

	t.Run("panic rolls back and is re-raised", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.PanicsWithValue(t, "boom", func() {
			_ = tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
				panic("boom")
			})
		})
	})

	t.Run("begin failure is classified", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(&pq.Error{Code: "08001"})

		err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
			t.Fatal("fn must not run")
			return nil
		})
		assert.ErrorIs(t, err, repositories.ErrUnavailable)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, repositories.ErrNotFound},
		{"pq unique", &pq.Error{Code: "23505"}, repositories.ErrDuplicate},
		{"pq connection failure", &pq.Error{Code: "08006"}, repositories.ErrUnavailable},
		{"pq shutdown", &pq.Error{Code: "57P01"}, repositories.ErrUnavailable},
		{"bad conn", driver.ErrBadConn, repositories.ErrUnavailable},
		{"deadline", context.DeadlineExceeded, repositories.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}

	plain := errors.New("syntax error")
	assert.Equal(t, plain, classify(plain))
	assert.Nil(t, classify(nil))
}

func TestDB_HealthCheck(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()
	db := Wrap(sqlDB, config.DriverPostgres, zap.NewNop())

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	assert.NoError(t, db.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(&pq.Error{Code: "08006"})
	err = db.HealthCheck(context.Background())
	assert.ErrorIs(t, err, repositories.ErrUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}
