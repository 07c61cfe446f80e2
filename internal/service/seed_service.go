package service

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

// UserStore — операции справочника пользователей, нужные наполнению и авторизации.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	LeastLoadedAdmin(ctx context.Context) (*models.User, error)
}

// ProductCatalog — операции каталога, нужные наполнению.
type ProductCatalog interface {
	Create(ctx context.Context, p *models.Product) error
}

// SeedService наполняет пустую базу тестовыми пользователями и товарами.
// Все вставки идемпотентны, повторный запуск ничего не дублирует.
type SeedService struct {
	users    UserStore
	products ProductCatalog
}

func NewSeedService(users UserStore, products ProductCatalog) *SeedService {
	return &SeedService{users: users, products: products}
}

// SeedData создаёт администратора, продавцов, покупателей и товары.
func (s *SeedService) SeedData(ctx context.Context, numBuyers, numProducts int) error {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte("Password123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("seed service: хеширование пароля: %w", err)
	}
	hash := string(passwordHash)

	admins := []string{"admin_main", "admin_backup"}
	for _, username := range admins {
		u := &models.User{
			ID:           uuid.New(),
			Username:     username,
			PasswordHash: hash,
			Role:         models.RoleAdmin,
		}
		if err := s.users.Create(ctx, u); err != nil {
			return fmt.Errorf("seed service: создание администратора: %w", err)
		}
	}

	sellers := make([]*models.User, 0, 4)
	for i := 0; i < 4; i++ {
		u := &models.User{
			ID:           uuid.New(),
			Username:     fmt.Sprintf("seller_%02d", i+1),
			PasswordHash: hash,
			Role:         models.RoleSeller,
		}
		if err := s.users.Create(ctx, u); err != nil {
			return fmt.Errorf("seed service: создание продавца: %w", err)
		}
		sellers = append(sellers, u)
	}

	for i := 0; i < numBuyers; i++ {
		u := &models.User{
			ID:           uuid.New(),
			Username:     fmt.Sprintf("buyer_%03d", i+1),
			PasswordHash: hash,
			Role:         models.RoleUser,
		}
		if err := s.users.Create(ctx, u); err != nil {
			return fmt.Errorf("seed service: создание покупателя: %w", err)
		}
	}

	names := []string{
		"Кофе зерновой", "Чай улун", "Шоколад горький", "Мёд липовый",
		"Орехи кешью", "Варенье малиновое", "Сыр твёрдый", "Паста томатная",
		"Масло оливковое", "Крупа гречневая", "Специи карри", "Какао порошок",
	}
	for i := 0; i < numProducts; i++ {
		seller := sellers[rand.Intn(len(sellers))]
		price := float64(100 + rand.Intn(900))
		p := &models.Product{
			ID:           uuid.New(),
			SellerID:     seller.ID,
			Name:         fmt.Sprintf("%s №%d", names[rand.Intn(len(names))], i+1),
			Price:        price,
			MOQ:          1 + rand.Intn(3),
			AvailableQty: 10 + rand.Intn(90),
			Status:       models.ProductStatusActive,
		}
		if rand.Intn(3) == 0 {
			disc := price * 0.8
			p.DiscPrice = &disc
			p.PromoActive = true
		}
		if err := s.products.Create(ctx, p); err != nil {
			return fmt.Errorf("seed service: создание товара: %w", err)
		}
	}

	return nil
}
