package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"lodging/internal/shared/config"
	"lodging/internal/users"
	"lodging/pkg/logger"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrInvalidRole        = errors.New("invalid role")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrSelfDeactivation   = errors.New("operators cannot disable their own account")
)

const tokenIssuer = "lodging"

type Service interface {
	Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	// RefreshToken rotates the pair; the presented refresh token is revoked.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ChangePassword(ctx context.Context, userID string, req *ChangePasswordRequest) error
	ValidateToken(tokenString string) (*JWTClaims, error)

	GetOperator(ctx context.Context, userID string) (*OperatorResponse, error)
	ListOperators(ctx context.Context) ([]OperatorResponse, error)
	SetOperatorActive(ctx context.Context, actorID, userID string, active bool) (*OperatorResponse, error)
}

type service struct {
	repo    Repository
	config  *config.Config
	revoker TokenRevoker
	now     func() time.Time
}

// NewService builds the operator auth service. Without a revoker, logout and
// rotation cannot invalidate refresh tokens before they expire.
func NewService(repo Repository, cfg *config.Config, revoker TokenRevoker) Service {
	return &service{
		repo:    repo,
		config:  cfg,
		revoker: revoker,
		now:     time.Now,
	}
}

func (s *service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = string(users.RoleStaff)
	}
	if !users.IsValidRole(role) {
		return nil, ErrInvalidRole
	}

	email := normalizeEmail(req.Email)
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserAlreadyExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &users.User{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     email,
		Password:  string(hashedPassword),
		Role:      users.Role(role),
		Active:    true,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	logger.GetDefault().InfoWithContext(ctx, "Operator registered", map[string]interface{}{
		"user_id": user.ID.String(),
		"role":    string(user.Role),
	})

	return s.authResponse(user)
}

func (s *service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	// Checked after the password so a disabled account is not disclosed to guessers.
	if !user.Active {
		return nil, ErrAccountDisabled
	}

	now := s.now().UTC()
	if err := s.repo.TouchLastLogin(ctx, user.ID.String(), now); err != nil {
		logger.GetDefault().WithError(err).Warn("failed to record last login", "user_id", user.ID.String())
	} else {
		user.LastLoginAt = &now
	}
	logger.GetDefault().LogAuthSuccess(ctx, user.ID.String(), "password")

	return s.authResponse(user)
}

func (s *service) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.validateRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if !user.Active {
		return nil, ErrAccountDisabled
	}

	s.revoke(ctx, claims)
	return s.issuePair(user)
}

func (s *service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.validateRefresh(ctx, refreshToken)
	if err != nil {
		// Logging out with a dead token is already the desired state.
		if errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenRevoked) {
			return nil
		}
		return err
	}
	s.revoke(ctx, claims)
	return nil
}

func (s *service) ChangePassword(ctx context.Context, userID string, req *ChangePasswordRequest) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdateUserPassword(ctx, userID, string(hashedPassword))
}

func (s *service) ValidateToken(tokenString string) (*JWTClaims, error) {
	return s.parse(tokenString)
}

func (s *service) GetOperator(ctx context.Context, userID string) (*OperatorResponse, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := toOperatorResponse(user)
	return &resp, nil
}

func (s *service) ListOperators(ctx context.Context) ([]OperatorResponse, error) {
	list, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list operators: %w", err)
	}
	out := make([]OperatorResponse, 0, len(list))
	for i := range list {
		out = append(out, toOperatorResponse(&list[i]))
	}
	return out, nil
}

func (s *service) SetOperatorActive(ctx context.Context, actorID, userID string, active bool) (*OperatorResponse, error) {
	if !active && actorID == userID {
		return nil, ErrSelfDeactivation
	}
	if err := s.repo.SetActive(ctx, userID, active); err != nil {
		return nil, err
	}
	logger.GetDefault().InfoWithContext(ctx, "Operator access changed", map[string]interface{}{
		"user_id":  userID,
		"actor_id": actorID,
		"active":   active,
	})
	return s.GetOperator(ctx, userID)
}

func (s *service) authResponse(user *users.User) (*AuthResponse, error) {
	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		User:         toOperatorResponse(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

func (s *service) issuePair(user *users.User) (*TokenPair, error) {
	now := s.now()
	access, err := s.sign(user, TokenTypeAccess, now, s.config.JWT.JWTExpiresIn)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(user, TokenTypeRefresh, now, s.config.JWT.RefreshExpiresIn)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.config.JWT.JWTExpiresIn.Seconds()),
	}, nil
}

func (s *service) sign(user *users.User, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	userID := user.ID.String()
	claims := JWTClaims{
		UserID: userID,
		Email:  user.Email,
		Role:   string(user.Role),
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tokenIssuer,
			Subject:   userID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWT.Secret))
}

func (s *service) parse(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.config.JWT.Secret), nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *service) validateRefresh(ctx context.Context, tokenString string) (*JWTClaims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeRefresh {
		return nil, ErrInvalidToken
	}
	if s.revoker != nil && claims.ID != "" {
		revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

// revoke is best effort: a failed write leaves the token valid until expiry.
func (s *service) revoke(ctx context.Context, claims *JWTClaims) {
	if s.revoker == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if err := s.revoker.Revoke(ctx, claims.ID, ttl); err != nil {
		logger.GetDefault().WithError(err).Warn("failed to revoke refresh token", "user_id", claims.UserID)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
