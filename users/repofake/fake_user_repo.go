package fakeuserrepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/pulsetrack/pulsetrack/internal/errors"
	"github.com/pulsetrack/pulsetrack/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	byExternalID map[string]*users.User
	lock         sync.RWMutex

	// UpsertErr, when set, is returned by every Upsert call. Used to
	// verify the flow treats user persistence as best-effort.
	UpsertErr error
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		byExternalID: make(map[string]*users.User),
	}
}

func (ur *FakeUserRepo) FindByExternalID(_ context.Context, externalID string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.byExternalID[externalID]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (ur *FakeUserRepo) Upsert(_ context.Context, profile users.Profile) (*users.User, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if ur.UpsertErr != nil {
		return nil, ur.UpsertErr
	}

	now := time.Now().UTC()
	u, ok := ur.byExternalID[profile.ExternalID]
	if !ok {
		u = &users.User{
			ID:         uuid.New().String(),
			ExternalID: profile.ExternalID,
			CreatedAt:  now,
		}
		ur.byExternalID[profile.ExternalID] = u
	}
	u.Email = profile.Email
	u.DisplayName = profile.DisplayName
	u.AvatarURL = profile.AvatarURL
	u.LastLogin = now

	copied := *u
	return &copied, nil
}
