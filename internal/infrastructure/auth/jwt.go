package auth

import (
	"errors"
	"time"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingTenantID  = errors.New("missing tenant_id in claims")
	ErrMissingUserID    = errors.New("missing user_id in claims")
)

// Claims are the access token claims. Roles are the workflow role names of the user.
type Claims struct {
	jwt.RegisteredClaims
	TenantID    string   `json:"tenant_id"`
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"name"`
	Roles       []string `json:"roles"`
}

// Principal returns the tenant and acting user described by the claims.
// Unknown role names are dropped.
func (c *Claims) Principal() (uuid.UUID, fundrequest.Actor, error) {
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil || tenantID == uuid.Nil {
		return uuid.Nil, fundrequest.Actor{}, ErrMissingTenantID
	}
	userID, err := uuid.Parse(c.UserID)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, fundrequest.Actor{}, ErrMissingUserID
	}
	return tenantID, fundrequest.NewActor(userID, c.DisplayName, c.Roles...), nil
}

// JWTService issues and validates HS256 access tokens
type JWTService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		expiration: cfg.AccessTokenExpiration,
	}
}

// GenerateTokenInput contains input for token generation
type GenerateTokenInput struct {
	TenantID    uuid.UUID
	UserID      uuid.UUID
	DisplayName string
	Roles       []string
}

// GenerateAccessToken signs an access token for the given user
func (s *JWTService) GenerateAccessToken(input GenerateTokenInput) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiration)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   input.UserID.String(),
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID:    input.TenantID.String(),
		UserID:      input.UserID.String(),
		DisplayName: input.DisplayName,
		Roles:       input.Roles,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ValidateAccessToken verifies signature, issuer and lifetime of a token
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(s.issuer))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.TenantID == "" {
		return nil, ErrMissingTenantID
	}
	if claims.UserID == "" {
		return nil, ErrMissingUserID
	}
	return claims, nil
}
