package main

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/internal/repository"
)

type memUsers struct {
	byEmail map[string]*models.User
}

func (m *memUsers) Create(ctx context.Context, user *models.User) error {
	if _, ok := m.byEmail[user.Email]; ok {
		return repository.ErrDuplicate
	}
	user.ID = "u-" + user.Email
	m.byEmail[user.Email] = user
	return nil
}

func TestCreateAccount(t *testing.T) {
	users := &memUsers{byEmail: map[string]*models.User{}}
	in := accountInput{Email: " Editor@Journal.Example ", FullName: "Ed Itor", Role: models.RoleEditor, Password: "correct horse"}

	user, err := createAccount(context.Background(), users, validator.New(), in)
	require.NoError(t, err)
	assert.Equal(t, "editor@journal.example", user.Email)
	assert.True(t, user.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct horse")))

	_, err = createAccount(context.Background(), users, validator.New(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestCreateAccountValidates(t *testing.T) {
	users := &memUsers{byEmail: map[string]*models.User{}}
	cases := []accountInput{
		{Email: "not-an-email", FullName: "A B", Role: models.RoleAuthor, Password: "longenough"},
		{Email: "a@b.io", FullName: "A B", Role: models.UserRole("READER"), Password: "longenough"},
		{Email: "a@b.io", FullName: "A B", Role: models.RoleAuthor, Password: "short"},
	}
	for _, in := range cases {
		_, err := createAccount(context.Background(), users, validator.New(), in)
		assert.Error(t, err)
	}
	assert.Empty(t, users.byEmail)
}
