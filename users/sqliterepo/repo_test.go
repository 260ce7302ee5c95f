package sqliterepo_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pulsetrack/pulsetrack/internal/errors"
	"github.com/pulsetrack/pulsetrack/users"
	"github.com/pulsetrack/pulsetrack/users/sqliterepo"
)

func openRepo(t *testing.T) *sqliterepo.Repo {
	t.Helper()
	repo, err := sqliterepo.Open(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqliterepo.Open("  ")
	assert.Error(t, err)
}

func TestFindByExternalID_Missing(t *testing.T) {
	repo := openRepo(t)

	_, err := repo.FindByExternalID(context.Background(), "no-such-subject")

	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestUpsert_CreatesThenUpdates(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	repo.SetNowTime(func() time.Time { return start })

	created, err := repo.Upsert(ctx, users.Profile{
		ExternalID:  "subject-1",
		Email:       "pat@example.com",
		DisplayName: "Pat Example",
		AvatarURL:   "https://example.com/pat.png",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "subject-1", created.ExternalID)
	assert.Equal(t, "pat@example.com", created.Email)
	assert.Equal(t, start, created.CreatedAt)
	assert.Equal(t, start, created.LastLogin)

	// A second login refreshes the profile and last_login but keeps the
	// row identity and creation time.
	later := start.Add(48 * time.Hour)
	repo.SetNowTime(func() time.Time { return later })

	updated, err := repo.Upsert(ctx, users.Profile{
		ExternalID:  "subject-1",
		Email:       "pat.new@example.com",
		DisplayName: "Pat E.",
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "pat.new@example.com", updated.Email)
	assert.Equal(t, "Pat E.", updated.DisplayName)
	assert.Equal(t, start, updated.CreatedAt)
	assert.Equal(t, later, updated.LastLogin)
}

func TestUpsert_RequiresExternalID(t *testing.T) {
	repo := openRepo(t)

	_, err := repo.Upsert(context.Background(), users.Profile{Email: "pat@example.com"})

	assert.Error(t, err)
}

func TestUpsert_IsolatesSubjects(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, users.Profile{ExternalID: "subject-1", Email: "one@example.com"})
	require.NoError(t, err)
	second, err := repo.Upsert(ctx, users.Profile{ExternalID: "subject-2", Email: "two@example.com"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)

	found, err := repo.FindByExternalID(ctx, "subject-2")
	require.NoError(t, err)
	assert.Equal(t, "two@example.com", found.Email)
}
