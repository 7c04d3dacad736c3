package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrTokenInvalid = errors.New("invalid token")

// Tokens signs and verifies HS256 access tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

type Claims struct {
	UserID  string
	RollNo  string
	IsAdmin bool
	Expires time.Time
}

// Issue returns a signed access token and its expiry.
func (t *Tokens) Issue(userID, rollNo string, isAdmin bool) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := jwt.MapClaims{
		"user_id":  userID,
		"roll_no":  rollNo,
		"is_admin": isAdmin,
		"iat":      now.Unix(),
		"exp":      exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies signature and expiry. isAdmin in the token is informational;
// authorization reads the stored user.
func (t *Tokens) Parse(raw string) (*Claims, error) {
	tok, err := jwt.Parse(raw, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrTokenInvalid
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	uid, _ := mc["user_id"].(string)
	if uid == "" {
		return nil, ErrTokenInvalid
	}
	c := &Claims{UserID: uid}
	c.RollNo, _ = mc["roll_no"].(string)
	c.IsAdmin, _ = mc["is_admin"].(bool)
	if exp, ok := mc["exp"].(float64); ok {
		c.Expires = time.Unix(int64(exp), 0)
	}
	return c, nil
}
