package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

type memUserStore struct {
	byName map[string]*models.User
	byID   map[uuid.UUID]*models.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		byName: make(map[string]*models.User),
		byID:   make(map[uuid.UUID]*models.User),
	}
}

func (f *memUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, apperror.ErrUserNotFound
	}
	return u, nil
}

func (f *memUserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u, ok := f.byName[username]
	if !ok {
		return nil, apperror.ErrUserNotFound
	}
	return u, nil
}

func (f *memUserStore) Create(ctx context.Context, u *models.User) error {
	f.byName[u.Username] = u
	f.byID[u.ID] = u
	return nil
}

func (f *memUserStore) LeastLoadedAdmin(ctx context.Context) (*models.User, error) {
	for _, u := range f.byID {
		if u.IsAdmin() {
			return u, nil
		}
	}
	return nil, apperror.ErrUserNotFound
}

func seedUser(t *testing.T, store *memUserStore, username, password, role string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &models.User{ID: uuid.New(), Username: username, PasswordHash: string(hash), Role: role}
	require.NoError(t, store.Create(context.Background(), u))
	return u
}

func TestAuthService_Login(t *testing.T) {
	store := newMemUserStore()
	tokens := NewTokenManager("test-secret", 15*time.Minute)
	svc := NewAuthService(store, tokens)
	ctx := context.Background()

	user := seedUser(t, store, "ivan", "Password123", models.RoleUser)

	res, err := svc.Login(ctx, "ivan", "Password123")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, user.ID, res.User.ID)

	userID, role, err := tokens.Parse(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
	assert.Equal(t, models.RoleUser, role)
}

func TestAuthService_Login_WrongCredentials(t *testing.T) {
	store := newMemUserStore()
	svc := NewAuthService(store, NewTokenManager("test-secret", 15*time.Minute))
	ctx := context.Background()

	seedUser(t, store, "ivan", "Password123", models.RoleUser)

	// Неверное имя и неверный пароль неразличимы в ответе.
	_, errName := svc.Login(ctx, "unknown", "Password123")
	_, errPass := svc.Login(ctx, "ivan", "wrong")
	assert.ErrorIs(t, errName, apperror.ErrUnauthorized)
	assert.ErrorIs(t, errPass, apperror.ErrUnauthorized)
	assert.Equal(t, errName.Error(), errPass.Error())
}

func TestTokenManager_Parse_WrongSecret(t *testing.T) {
	tokens := NewTokenManager("secret-a", 15*time.Minute)
	other := NewTokenManager("secret-b", 15*time.Minute)

	user := &models.User{ID: uuid.New(), Role: models.RoleUser}
	signed, _, err := tokens.Generate(user)
	require.NoError(t, err)

	_, _, err = other.Parse(signed)
	assert.Error(t, err)
}

func TestTokenManager_Parse_Expired(t *testing.T) {
	tokens := NewTokenManager("secret", -time.Minute)

	user := &models.User{ID: uuid.New(), Role: models.RoleUser}
	signed, _, err := tokens.Generate(user)
	require.NoError(t, err)

	_, _, err = tokens.Parse(signed)
	assert.Error(t, err)
}
