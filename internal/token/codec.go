// Package token encodes and decodes access and refresh tokens. Decoding is
// total: any malformed, forged, or expired input yields a typed error, never
// a panic, and every decode failure counts as expired for callers that only
// need a liveness answer.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cnc-operator-console/internal/model"
)

// Payload is the decoded body of a token. Permissions are fixed at issuance
// and only change through a full login or refresh.
type Payload struct {
	Subject     string
	Username    string
	Role        model.Role
	Permissions []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type Codec struct {
	secret []byte
	clock  func() time.Time
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret), clock: func() time.Time { return time.Now().UTC() }}
}

// WithTimeFunc overrides the time source used for expiry checks. Tests use
// this to validate tokens at a chosen instant.
func (c *Codec) WithTimeFunc(now func() time.Time) *Codec {
	c.clock = now
	return c
}

func (c *Codec) Encode(p Payload) (string, error) {
	claims := jwt.MapClaims{
		"sub":      p.Subject,
		"username": p.Username,
		"role":     string(p.Role),
		"perms":    p.Permissions,
		"iat":      p.IssuedAt.Unix(),
		"exp":      p.ExpiresAt.Unix(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifies and unpacks a token string. It returns
// model.ErrTokenExpired for a well-formed but stale token and
// model.ErrTokenInvalid for everything else.
func (c *Codec) Decode(tokenString string) (Payload, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, model.ErrTokenInvalid
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.clock))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Payload{}, model.ErrTokenExpired
		}
		return Payload{}, model.ErrTokenInvalid
	}
	if !parsed.Valid {
		return Payload{}, model.ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Payload{}, model.ErrTokenInvalid
	}

	payload := Payload{}
	payload.Subject, _ = claims["sub"].(string)
	if role, ok := claims["role"].(string); ok {
		payload.Role = model.Role(role)
	}
	payload.Username, _ = claims["username"].(string)

	if rawPerms, ok := claims["perms"].([]interface{}); ok {
		payload.Permissions = make([]string, 0, len(rawPerms))
		for _, raw := range rawPerms {
			if perm, ok := raw.(string); ok {
				payload.Permissions = append(payload.Permissions, perm)
			}
		}
	}

	if iat, ok := claims["iat"].(float64); ok {
		payload.IssuedAt = time.Unix(int64(iat), 0).UTC()
	}
	if exp, ok := claims["exp"].(float64); ok {
		payload.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}

	if payload.Subject == "" {
		return Payload{}, model.ErrTokenInvalid
	}

	return payload, nil
}

// IsExpired reports whether the token is past its expiry. Any decode
// failure counts as expired (fail closed).
func (c *Codec) IsExpired(tokenString string) bool {
	_, err := c.Decode(tokenString)
	return err != nil
}
