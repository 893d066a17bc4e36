package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrMissingToken = errors.New("auth: missing credential")
	ErrInvalidToken = errors.New("auth: invalid credential")
)

// roleClaims are checked in order; issuers disagree on the claim name.
var roleClaims = []string{"role", "userRole", "type", "userType"}

var idClaims = []string{"id", "_id", "userId", "sub"}

// JWTVerifier validates HS256 credentials against an ordered list of secrets.
type JWTVerifier struct {
	secrets   [][]byte
	clockSkew time.Duration
	now       func() time.Time
}

// NewJWTVerifier builds a verifier. Secrets are tried in order so keys can be rotated.
func NewJWTVerifier(secrets []string, clockSkew time.Duration) *JWTVerifier {
	v := &JWTVerifier{clockSkew: clockSkew, now: time.Now}
	for _, s := range secrets {
		if s = strings.TrimSpace(s); s != "" {
			v.secrets = append(v.secrets, []byte(s))
		}
	}
	return v
}

// Verify parses the token and returns the identity it carries.
func (v *JWTVerifier) Verify(token string) (*Identity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var lastErr error
	for _, secret := range v.secrets {
		claims := jwt.MapClaims{}
		_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil {
			lastErr = err
			continue
		}
		if err := v.checkTimes(claims); err != nil {
			return nil, err
		}
		return identityFromClaims(claims, token)
	}

	if lastErr == nil {
		lastErr = errors.New("no secrets configured")
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidToken, lastErr)
}

func (v *JWTVerifier) checkTimes(claims jwt.MapClaims) error {
	now := v.now()
	if !claims.VerifyExpiresAt(now.Add(-v.clockSkew).Unix(), false) {
		return fmt.Errorf("%w: token expired", ErrInvalidToken)
	}
	if !claims.VerifyNotBefore(now.Add(v.clockSkew).Unix(), false) {
		return fmt.Errorf("%w: token not yet valid", ErrInvalidToken)
	}
	return nil
}

func identityFromClaims(claims jwt.MapClaims, token string) (*Identity, error) {
	id := firstString(claims, idClaims)
	if id == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	email, _ := claims["email"].(string)
	return &Identity{
		UserID: id,
		Email:  email,
		Role:   ParseRole(firstString(claims, roleClaims)),
		Token:  token,
	}, nil
}

func firstString(claims jwt.MapClaims, keys []string) string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
