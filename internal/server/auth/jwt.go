// Package auth issues and verifies the signed bearer credentials that carry
// a user's identity between requests. Sessions are stateless: validity is a
// function of the signature and the expiry claim only.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tasktracker/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the registered claim set plus the owning user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// TokenIssuer signs HS256 tokens valid for a fixed window.
type TokenIssuer struct {
	secret   []byte
	validity time.Duration
}

// NewTokenIssuer returns an issuer signing with secret (HS256). Every token it
// issues expires validity after the time passed to Issue.
func NewTokenIssuer(secret []byte, validity time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, validity: validity}
}

// Validity returns the lifetime of issued tokens.
func (i *TokenIssuer) Validity() time.Duration {
	return i.validity
}

// Issue returns a token for userID issued at now and expiring at now+validity.
func (i *TokenIssuer) Issue(userID string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.validity)),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Verify checks the signature and expiry of tokenString as of now and returns
// the encoded user id. Expired tokens yield common.ErrTokenExpired; anything
// else wrong with the token yields common.ErrInvalidToken.
func (i *TokenIssuer) Verify(tokenString string, now time.Time) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.UserID, nil
}
