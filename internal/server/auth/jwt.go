package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the session identity. iat and exp live in the
// registered claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// TokenService issues and verifies HS256 session tokens. Verification is
// stateless.
type TokenService struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

// NewTokenService fails with common.ErrConfiguration when secret is empty.
func NewTokenService(secret string, validity time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: token secret is empty", common.ErrConfiguration)
	}
	if validity <= 0 {
		return nil, fmt.Errorf("%w: token validity must be positive", common.ErrConfiguration)
	}
	return &TokenService{secret: []byte(secret), validity: validity, now: time.Now}, nil
}

// Issue signs a token for the user valid from now for the configured validity.
func (s *TokenService) Issue(userID int64, username string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.validity)),
		},
		UserID:   userID,
		Username: username,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks the signature and expiry. Expired tokens yield
// common.ErrTokenExpired, everything else common.ErrInvalidToken.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid || claims.UserID <= 0 {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
