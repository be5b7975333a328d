package service

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/intelliguard/intelliguard/pkg/errors"
	"github.com/intelliguard/intelliguard/pkg/pagination"
	"github.com/intelliguard/intelliguard/services/user/internal/domain"
	"github.com/intelliguard/intelliguard/services/user/internal/repository"
)

// UserService serves read-only account queries.
type UserService struct {
	users repository.UserRepository
}

// NewUserService creates a UserService.
func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// GetProfile returns the public profile of id.
func (s *UserService) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	a, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	p := a.Profile()
	return &p, nil
}

// ListProfiles pages through active accounts, or through accounts in
// status when it is non-nil.
func (s *UserService) ListProfiles(ctx context.Context, status *domain.Status, p pagination.Params) (pagination.Result[domain.Profile], error) {
	var (
		accounts []domain.Account
		total    int
		err      error
	)
	if status != nil {
		accounts, total, err = s.users.ListByStatus(ctx, *status, p)
	} else {
		accounts, total, err = s.users.ListActive(ctx, p)
	}
	if err != nil {
		return pagination.Result[domain.Profile]{}, fmt.Errorf("list accounts: %w", err)
	}

	profiles := make([]domain.Profile, 0, len(accounts))
	for i := range accounts {
		profiles = append(profiles, accounts[i].Profile())
	}
	return pagination.NewResult(profiles, total, p), nil
}
