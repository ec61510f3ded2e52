// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"kindkart/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DemoPassword is the password every seeded account can sign in with through
// the auth service.
const DemoPassword = "password123"

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db   *gorm.DB
	opts Options

	hashOnce sync.Once
	hash     string
	hashErr  error
	seq      int
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	return &Factory{db: db, opts: opts.withDefaults()}
}

// passwordHash hashes DemoPassword once per factory; every seeded user shares it.
func (f *Factory) passwordHash() (string, error) {
	f.hashOnce.Do(func() {
		b, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), f.opts.BcryptCost)
		f.hash, f.hashErr = string(b), err
	})
	return f.hash, f.hashErr
}

// CreateUser constructs and persists a user with the given role.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(role models.Role, overrides ...func(*models.User)) (*models.User, error) {
	hash, err := f.passwordHash()
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}

	f.seq++
	first, last := gofakeit.FirstName(), gofakeit.LastName()
	user := &models.User{
		Name:         first + " " + last,
		Email:        fmt.Sprintf("%s.%s.%d@kindkart.test", strings.ToLower(first), strings.ToLower(last), f.seq),
		PasswordHash: hash,
		Role:         role,
		Phone:        gofakeit.Phone(),
		Bio:          gofakeit.Sentence(10),
		Location: models.Location{
			Address: gofakeit.Street(),
			City:    gofakeit.City(),
			State:   gofakeit.StateAbr(),
			ZipCode: gofakeit.Zip(),
		},
		IsVerified: gofakeit.Bool(),
	}
	if role == models.RoleNGO {
		user.Name = gofakeit.Company()
	}

	for _, override := range overrides {
		override(user)
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateItem constructs and persists an available item owned by donor.
func (f *Factory) CreateItem(donor *models.User, overrides ...func(*models.Item)) (*models.Item, error) {
	item := &models.Item{
		DonorID:          donor.ID,
		Title:            truncate(gofakeit.ProductName(), 100),
		Description:      truncate(gofakeit.Paragraph(1, 3, 12, " "), 1000),
		Category:         gofakeit.RandomString(models.ItemCategories),
		Condition:        gofakeit.RandomString(models.ItemConditions),
		Location:         donor.Location,
		PickupPreference: gofakeit.RandomString([]string{models.PickupOnly, models.DropoffOnly, models.PickupOrDrop}),
		Status:           models.ItemStatusAvailable,
		IsVisible:        true,
	}
	if gofakeit.Number(1, 4) == 1 {
		expires := time.Now().AddDate(0, 0, gofakeit.Number(14, 60))
		item.ExpiresAt = &expires
	}

	for _, override := range overrides {
		override(item)
	}

	if err := f.db.Omit("Donor").Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
