package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

var (
	ErrTokenExpired      = errors.New("token has expired")
	ErrTokenInvalid      = errors.New("invalid token")
	ErrTokenTypeMismatch = errors.New("token type mismatch")
)

// Claims sub 为用户邮箱
type Claims struct {
	Type TokenType `json:"type"`
	jwt.RegisteredClaims
}

type JWTer struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
	Now        func() time.Time // 测试注入
}

func (j *JWTer) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j *JWTer) ttl(t TokenType) time.Duration {
	if t == TokenRefresh {
		return j.RefreshTTL
	}
	return j.AccessTTL
}

// Issue 返回签名后的 token 及其过期时间
func (j *JWTer) Issue(email string, typ TokenType) (string, time.Time, error) {
	if typ != TokenAccess && typ != TokenRefresh {
		return "", time.Time{}, fmt.Errorf("unknown token type %q", typ)
	}
	now := j.now()
	exp := now.Add(j.ttl(typ))
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    j.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(j.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, exp, nil
}

func (j *JWTer) IssueAccess(email string) (string, time.Time, error) {
	return j.Issue(email, TokenAccess)
}

func (j *JWTer) IssueRefresh(email string) (string, time.Time, error) {
	return j.Issue(email, TokenRefresh)
}

// Parse 校验签名、过期时间以及 type 是否为 want
func (j *JWTer) Parse(tokenStr string, want TokenType) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected alg %v", token.Header["alg"])
		}
		return j.Secret, nil
	},
		jwt.WithIssuer(j.Issuer),
		jwt.WithLeeway(j.Leeway),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || c.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if c.Type != want {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrTokenTypeMismatch, want, c.Type)
	}
	return c, nil
}
