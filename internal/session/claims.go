package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// トークンの種別。アクセストークンと更新トークンを取り違えないようにクレームに含める。
const (
	kindAccess  = "access"
	kindRenewal = "renewal"
)

// claims はトークンのクレーム。
type claims struct {
	jwt.RegisteredClaims
	// Kind はトークンの種別。
	Kind string `json:"kind"`
}

func (m *Manager) sign(subject, kind string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Kind: kind,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, expiresAt, nil
}

// parse はトークンの署名・有効期限・種別を検証する。
func (m *Manager) parse(token, kind string) (*claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: トークンが空です", ErrInvalidCredential)
	}

	c := &claims{}
	_, err := jwt.ParseWithClaims(token, c, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && m.signatureValid(token) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredCredential, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	if c.Kind != kind {
		return nil, fmt.Errorf("%w: トークン種別が一致しません", ErrInvalidCredential)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: subjectがありません", ErrInvalidCredential)
	}
	return c, nil
}

// signatureValid はクレームの検証を行わずに署名のみを確認する。
// 期限切れと判定する前に、改ざんされたトークンでないことを保証する。
func (m *Manager) signatureValid(token string) bool {
	_, err := jwt.ParseWithClaims(token, &claims{}, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return err == nil
}

func (m *Manager) keyFunc(_ *jwt.Token) (any, error) {
	return m.secret, nil
}
