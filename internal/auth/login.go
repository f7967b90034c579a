package auth

import (
	"context"
	"regexp"

	"Guardian/internal/models"
	"Guardian/internal/otp"
	"Guardian/pkg/errors"
	"Guardian/pkg/logger"
	"Guardian/pkg/notification"

	"go.uber.org/zap"
)

var nationalIDPattern = regexp.MustCompile(`^[2-9][0-9]{11}$`)

// UserFinder resolves a national id to a registered user. *store.UserStore satisfies it.
type UserFinder interface {
	FindByNationalID(ctx context.Context, nationalID string) (*models.User, error)
}

// LoginService signs users in with a one-time code delivered by SMS.
type LoginService struct {
	users  UserFinder
	codes  *otp.Store
	sms    notification.SMSSender
	tokens *TokenService
}

func NewLoginService(users UserFinder, codes *otp.Store, sms notification.SMSSender, tokens *TokenService) *LoginService {
	if sms == nil {
		sms = notification.LogSMS{}
	}
	return &LoginService{users: users, codes: codes, sms: sms, tokens: tokens}
}

// ValidNationalID reports whether id is twelve digits not starting with 0 or 1.
func ValidNationalID(id string) bool { return nationalIDPattern.MatchString(id) }

// RequestOTP issues a code for a registered national id and sends it to the
// user's phone. A new request replaces any pending code.
func (s *LoginService) RequestOTP(ctx context.Context, nationalID string) error {
	user, err := s.lookup(ctx, nationalID)
	if err != nil {
		return err
	}
	code, err := s.codes.Issue(ctx, nationalID)
	if err != nil {
		return err
	}
	if err := s.sms.SendCode(ctx, user.Phone, code); err != nil {
		logger.Error("send otp failed", zap.String("user", user.ID), zap.Error(err))
		return errors.Transient(err, "deliver code")
	}
	logger.Info("otp issued", zap.String("user", user.ID))
	return nil
}

// VerifyOTP consumes the pending code and returns a signed token for the user.
func (s *LoginService) VerifyOTP(ctx context.Context, nationalID, code string) (string, Identity, error) {
	user, err := s.lookup(ctx, nationalID)
	if err != nil {
		return "", Identity{}, err
	}
	if err := s.codes.Verify(ctx, nationalID, code); err != nil {
		return "", Identity{}, err
	}
	id := Identity{ID: user.ID, Name: user.Name, Role: user.Role}
	token, err := s.tokens.IssueToken(id)
	if err != nil {
		return "", Identity{}, err
	}
	logger.Info("otp login", zap.String("user", user.ID), zap.String("role", user.Role))
	return token, id, nil
}

func (s *LoginService) lookup(ctx context.Context, nationalID string) (*models.User, error) {
	if !ValidNationalID(nationalID) {
		return nil, errors.Validation("invalid national id format")
	}
	user, err := s.users.FindByNationalID(ctx, nationalID)
	if errors.IsNotFound(err) {
		return nil, errors.Unauthorized("national id not registered")
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
