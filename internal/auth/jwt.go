package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("missing authorization token")
)

// Token uses.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims holds the JWT payload.
type Claims struct {
	UserID string `json:"user_id"`
	Use    string `json:"use"`
	Guest  bool   `json:"guest,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager handles token creation and validation.
type JWTManager struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewJWTManager creates a JWTManager with the given secret and default
// expiries of 15 minutes for access and 7 days for refresh tokens.
func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		accessExpiry:  15 * time.Minute,
		refreshExpiry: 7 * 24 * time.Hour,
	}
}

// WithExpiry overrides the token lifetimes. Non-positive values keep the
// current setting.
func (m *JWTManager) WithExpiry(access, refresh time.Duration) *JWTManager {
	if access > 0 {
		m.accessExpiry = access
	}
	if refresh > 0 {
		m.refreshExpiry = refresh
	}
	return m
}

func (m *JWTManager) sign(userID, use string, guest bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Use:    use,
		Guest:  guest,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// GenerateAccessToken creates a short-lived access token for the given user.
func (m *JWTManager) GenerateAccessToken(userID string) (string, error) {
	return m.sign(userID, UseAccess, false, m.accessExpiry)
}

// GenerateRefreshToken creates a long-lived refresh token.
func (m *JWTManager) GenerateRefreshToken(userID string) (string, error) {
	return m.sign(userID, UseRefresh, false, m.refreshExpiry)
}

// ValidateToken parses and validates a JWT string of any use.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAccess accepts only access tokens.
func (m *JWTManager) ValidateAccess(tokenStr string) (*Claims, error) {
	return m.validateUse(tokenStr, UseAccess)
}

// ValidateRefresh accepts only refresh tokens.
func (m *JWTManager) ValidateRefresh(tokenStr string) (*Claims, error) {
	return m.validateUse(tokenStr, UseRefresh)
}

func (m *JWTManager) validateUse(tokenStr, use string) (*Claims, error) {
	claims, err := m.ValidateToken(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Use != use {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenPair holds an access and refresh token.
type TokenPair struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

// GenerateTokenPair creates both tokens for a user.
func (m *JWTManager) GenerateTokenPair(userID string) (*TokenPair, error) {
	return m.pair(userID, false)
}

// GenerateGuest mints a fresh guest identity and its token pair.
func (m *JWTManager) GenerateGuest() (*TokenPair, error) {
	return m.pair("guest-"+uuid.NewString(), true)
}

// Refresh exchanges a refresh token for a new pair for the same user.
func (m *JWTManager) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := m.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	return m.pair(claims.UserID, claims.Guest)
}

func (m *JWTManager) pair(userID string, guest bool) (*TokenPair, error) {
	access, err := m.sign(userID, UseAccess, guest, m.accessExpiry)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(userID, UseRefresh, guest, m.refreshExpiry)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(m.accessExpiry.Seconds()),
	}, nil
}
