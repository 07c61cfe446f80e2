package models

import (
	"time"

	"github.com/google/uuid"
)

// Роли пользователей. Каталог пользователей — внешняя подсистема, ядру нужны
// только идентификация и выбор администратора для назначения жалоб.
const (
	RoleUser       = "User"
	RoleSeller     = "Seller"
	RoleAdmin      = "Admin"
	RoleSuperAdmin = "SuperAdmin"
)

// User — запись справочника пользователей.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// IsAdmin сообщает, обладает ли пользователь административными правами.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuperAdmin
}
