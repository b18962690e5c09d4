package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"tolkflow/user"
)

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:    "alice@example.com",
		Password: "supersafe",
		Name:     "Alice Andersson",
	}

	ctx := context.Background()
	account, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}

	if account.Email != req.Email {
		t.Fatalf("expected email %q got %q", req.Email, account.Email)
	}
	if account.Role != user.RoleCustomer {
		t.Fatalf("register: expected default role %s got %s", user.RoleCustomer, account.Role)
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.Account.ID != account.ID {
		t.Fatalf("login: expected account id %q got %q", account.ID, resp.Account.ID)
	}
	if resp.Account.Role != user.RoleCustomer {
		t.Fatalf("login: expected role %s got %s", user.RoleCustomer, resp.Account.Role)
	}

	tokenUserID, tokenRole, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if tokenUserID != account.ID {
		t.Fatalf("verify token: expected %q got %q", account.ID, tokenUserID)
	}
	if tokenRole != user.RoleCustomer {
		t.Fatalf("verify token: expected role %s got %s", user.RoleCustomer, tokenRole)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "alice@example.com",
		Password: "short",
		Name:     "Alice Andersson",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "",
		Password: "strongpassword",
		Name:     "",
	}); err == nil {
		t.Fatal("expected validation error for missing fields")
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "eve@example.com",
		Password: "strongpassword",
		Name:     "Eve",
		Role:     user.Role("root"),
	}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestService_DuplicateEmail(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:    "alice@example.com",
		Password: "strongpassword",
		Name:     "Alice Andersson",
	}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "unknown@example.com",
		Password: "irrelevant",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

type fakeRepository struct {
	byEmail map[string]Account
	byID    map[string]Account
	nextID  int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		byEmail: make(map[string]Account),
		byID:    make(map[string]Account),
		nextID:  1,
	}
}

func (f *fakeRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	if _, exists := f.byEmail[strings.ToLower(params.Email)]; exists {
		return Account{}, ErrDuplicateEmail
	}

	id := fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	role := params.Role
	if role == "" {
		role = user.RoleCustomer
	}

	account := Account{
		ID:           id,
		Email:        params.Email,
		Name:         params.Name,
		PasswordHash: params.PasswordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	f.byEmail[strings.ToLower(account.Email)] = account
	f.byID[account.ID] = account

	return account, nil
}

func (f *fakeRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	account, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (f *fakeRepository) GetByID(ctx context.Context, id string) (Account, error) {
	account, ok := f.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}
