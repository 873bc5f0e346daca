package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/internal/repository"
	"github.com/noah-isme/journal-api/internal/service"
	"github.com/noah-isme/journal-api/pkg/config"
	"github.com/noah-isme/journal-api/pkg/database"
)

type accountInput struct {
	Email    string          `validate:"required,email"`
	FullName string          `validate:"required,min=2,max=200"`
	Role     models.UserRole `validate:"required,oneof=ADMIN EDITOR AUTHOR"`
	Password string          `validate:"required,min=8"`
}

type userCreator interface {
	Create(ctx context.Context, user *models.User) error
}

func main() {
	var in accountInput
	var role string

	flag.StringVar(&in.Email, "email", "", "Account email")
	flag.StringVar(&in.FullName, "name", "", "Display name used in notifications")
	flag.StringVar(&role, "role", string(models.RoleAuthor), "ADMIN, EDITOR or AUTHOR")
	flag.Parse()

	in.Role = models.UserRole(strings.ToUpper(role))
	in.Password = os.Getenv("JOURNAL_USER_PASSWORD")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	user, err := createAccount(ctx, repository.NewUserRepository(db, database.ReadPolicy{}), validator.New(), in)
	if err != nil {
		log.Fatalf("create user: %v", err)
	}
	fmt.Printf("created %s %s (%s)\n", user.Role, user.Email, user.ID)
}

// createAccount validates in and stores an active account with a bcrypt hash.
// main reads the password from JOURNAL_USER_PASSWORD.
func createAccount(ctx context.Context, users userCreator, validate *validator.Validate, in accountInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	hash, err := service.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:        in.Email,
		FullName:     in.FullName,
		Role:         in.Role,
		PasswordHash: hash,
		Active:       true,
	}
	if err := users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("email %s is already registered", in.Email)
		}
		return nil, err
	}
	return user, nil
}
