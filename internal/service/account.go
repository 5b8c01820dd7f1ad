package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/brokersim/brokersim/internal/domain"
	"github.com/brokersim/brokersim/pkg/logger"
	"github.com/brokersim/brokersim/pkg/metrics"
)

// AccountService owns registration, authentication and credential changes.
// Passwords are stored as bcrypt hashes only.
type AccountService struct {
	store LedgerStore
}

func NewAccountService(store LedgerStore) *AccountService {
	return &AccountService{store: store}
}

// Register creates a user with the starting cash balance. A taken username
// surfaces as domain.ErrUsernameTaken.
func (s *AccountService) Register(ctx context.Context, username, password string) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, username, string(hash))
	if err != nil {
		if errors.Is(err, domain.ErrUsernameTaken) {
			metrics.RecordRegistration("taken")
			return domain.User{}, err
		}
		metrics.RecordRegistration("error")
		return domain.User{}, err
	}

	metrics.RecordRegistration("success")
	logger.Info("user registered",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username))

	return user, nil
}

// Authenticate checks a username/password pair. Unknown user and wrong
// password both come back as domain.ErrInvalidCredentials so the response
// does not leak which usernames exist.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	user, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.RecordLogin("rejected")
			return domain.User{}, domain.ErrInvalidCredentials
		}
		metrics.RecordLogin("error")
		return domain.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Hash), []byte(password)); err != nil {
		metrics.RecordLogin("rejected")
		return domain.User{}, domain.ErrInvalidCredentials
	}

	metrics.RecordLogin("success")
	return user, nil
}

// ChangePassword replaces the stored credential. The submitted current
// password must verify against the stored hash, and the new password must
// actually differ.
func (s *AccountService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if current == next {
		return domain.ErrSamePassword
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	verify := func(storedHash string) error {
		if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(current)); err != nil {
			return domain.ErrInvalidCredentials
		}
		return nil
	}

	if err := s.store.ChangePassword(ctx, userID, verify, string(newHash)); err != nil {
		return err
	}

	logger.Info("password changed", zap.Int64("user_id", userID))
	return nil
}
