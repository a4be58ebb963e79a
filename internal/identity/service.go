// ==============================================================================
// IDENTITY SERVICE - internal/identity/service.go
// ==============================================================================
// Signup, password login and Google sign-in for dashboard users. A signed-in
// user who fills the onboarding form becomes the owner of the new client.
// ==============================================================================

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/idtoken"

	"onboard/internal/domain"
	onberrors "onboard/pkg/errors"
	"onboard/pkg/logger"
)

// Repository is the user store.
type Repository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByGoogleSubject(ctx context.Context, subject string) (*domain.User, error)
	SetGoogleSubject(ctx context.Context, id uuid.UUID, subject string) error
}

// TokenBlacklist revokes tokens before they expire.
type TokenBlacklist interface {
	Blacklist(ctx context.Context, token string, expiration time.Duration) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// GoogleValidator checks a Google ID token for the given audience.
type GoogleValidator func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

type Service struct {
	repo           Repository
	blacklist      TokenBlacklist
	jwtSecret      string
	jwtExpiry      time.Duration
	googleClientID string
	validateGoogle GoogleValidator
	logger         logger.Logger
	now            func() time.Time
}

type Options struct {
	JWTSecret      string
	JWTExpiry      time.Duration
	GoogleClientID string
	// GoogleValidator defaults to idtoken.Validate.
	GoogleValidator GoogleValidator
	Blacklist       TokenBlacklist
}

func NewService(repo Repository, log logger.Logger, opts Options) *Service {
	if opts.JWTExpiry <= 0 {
		opts.JWTExpiry = 24 * time.Hour
	}
	if opts.GoogleValidator == nil {
		opts.GoogleValidator = idtoken.Validate
	}
	return &Service{
		repo:           repo,
		blacklist:      opts.Blacklist,
		jwtSecret:      opts.JWTSecret,
		jwtExpiry:      opts.JWTExpiry,
		googleClientID: opts.GoogleClientID,
		validateGoogle: opts.GoogleValidator,
		logger:         log,
		now:            time.Now,
	}
}

type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type GoogleRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// Session is returned by every successful sign-in.
type Session struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *domain.User `json:"user"`
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID    uuid.UUID
	Email     string
	ExpiresAt time.Time
}

func (s *Service) Signup(ctx context.Context, req *SignupRequest) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, onberrors.ErrUserAlreadyExists
	} else if !errors.Is(err, onberrors.ErrUserNotFound) {
		return nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	hash := string(passwordHash)

	user := &domain.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: &hash,
		ClientIDs:    pq.StringArray{},
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User signed up", map[string]interface{}{"user_id": user.ID.String()})
	return s.issue(user)
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*Session, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, onberrors.ErrUserNotFound) {
			return nil, onberrors.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil {
		// Google-only account.
		return nil, onberrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, onberrors.ErrInvalidCredentials
	}
	return s.issue(user)
}

// GoogleSignIn verifies a Google ID token and signs the user in, creating the
// profile on first use. An existing password account with the same verified
// email is linked instead of duplicated.
func (s *Service) GoogleSignIn(ctx context.Context, req *GoogleRequest) (*Session, error) {
	if s.googleClientID == "" {
		return nil, onberrors.Wrap(onberrors.ErrInvalidToken, "google sign-in is not configured")
	}
	payload, err := s.validateGoogle(ctx, req.IDToken, s.googleClientID)
	if err != nil {
		s.logger.Warn("Google token rejected", map[string]interface{}{"error": err.Error()})
		return nil, onberrors.ErrInvalidToken
	}

	user, err := s.repo.FindByGoogleSubject(ctx, payload.Subject)
	if err == nil {
		return s.issue(user)
	}
	if !errors.Is(err, onberrors.ErrUserNotFound) {
		return nil, err
	}

	email, _ := payload.Claims["email"].(string)
	verified, _ := payload.Claims["email_verified"].(bool)
	name, _ := payload.Claims["name"].(string)
	if email == "" || !verified {
		return nil, onberrors.Wrap(onberrors.ErrInvalidToken, "google account email is not verified")
	}

	user, err = s.repo.FindByEmail(ctx, strings.ToLower(email))
	switch {
	case err == nil:
		if err := s.repo.SetGoogleSubject(ctx, user.ID, payload.Subject); err != nil {
			return nil, err
		}
		sub := payload.Subject
		user.GoogleSubject = &sub
	case errors.Is(err, onberrors.ErrUserNotFound):
		sub := payload.Subject
		user = &domain.User{
			ID:            uuid.New(),
			Name:          name,
			Email:         strings.ToLower(email),
			GoogleSubject: &sub,
			ClientIDs:     pq.StringArray{},
			CreatedAt:     s.now().UTC(),
		}
		if err := s.repo.Create(ctx, user); err != nil {
			return nil, err
		}
		s.logger.Info("User signed up with Google", map[string]interface{}{"user_id": user.ID.String()})
	default:
		return nil, err
	}
	return s.issue(user)
}

// Me returns the profile behind a verified token.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.repo.FindByID(ctx, userID)
}

// VerifyToken checks signature, expiry and revocation of an access token.
func (s *Service) VerifyToken(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, onberrors.ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, onberrors.ErrInvalidToken
	}
	userIDStr, _ := mc["user_id"].(string)
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, onberrors.ErrInvalidToken
	}
	claims := &Claims{UserID: userID}
	claims.Email, _ = mc["email"].(string)
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	if s.blacklist != nil {
		revoked, err := s.blacklist.IsBlacklisted(ctx, tokenString)
		if err != nil {
			return nil, onberrors.Wrap(err, "failed to check token revocation")
		}
		if revoked {
			return nil, onberrors.ErrInvalidToken
		}
	}
	return claims, nil
}

// Logout revokes the token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.VerifyToken(ctx, tokenString)
	if err != nil {
		return err
	}
	if s.blacklist == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.blacklist.Blacklist(ctx, tokenString, ttl)
}

func (s *Service) issue(user *domain.User) (*Session, error) {
	now := s.now()
	expiresAt := now.Add(s.jwtExpiry)

	claims := jwt.MapClaims{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"exp":     expiresAt.Unix(),
		"iat":     now.Unix(),
		"jti":     uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Session{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}
