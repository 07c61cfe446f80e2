package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

// UserRepository — справочник пользователей.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return common.GetByID[models.User](ctx, r.db, "users", id, apperror.ErrUserNotFound)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE username = $1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user repository: get by username: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO NOTHING
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, u.ID, u.Username, u.PasswordHash, u.Role).Scan(&u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Пользователь уже существует — начальное наполнение идемпотентно.
		return nil
	}
	if err != nil {
		return fmt.Errorf("user repository: create: %w", err)
	}
	return nil
}

// LeastLoadedAdmin возвращает администратора с наименьшим числом незакрытых
// жалоб. Ничья разрешается детерминированно по id.
func (r *UserRepository) LeastLoadedAdmin(ctx context.Context) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `
		SELECT u.*
		FROM users u
		LEFT JOIN reports rep
			ON rep.assigned_admin_id = u.id AND rep.status IN ($1, $2)
		WHERE u.role IN ($3, $4)
		GROUP BY u.id
		ORDER BY COUNT(rep.id) ASC, u.id ASC
		LIMIT 1
	`, models.ReportStatusPending, models.ReportStatusUnderReview,
		models.RoleAdmin, models.RoleSuperAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.ErrCodeInternal, "нет доступных администраторов для назначения жалобы")
	}
	if err != nil {
		return nil, fmt.Errorf("user repository: least loaded admin: %w", err)
	}
	return &u, nil
}
