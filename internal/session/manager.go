// Package session はアクセストークンと更新トークンの発行・検証・ローテーション・失効を提供する。
//
// アクセストークンは署名と有効期限のみで検証するステートレスな資格情報。
// 更新トークンはアイデンティティごとに1つだけ有効で、その値のダイジェストを
// credential.SessionRepository に保持する。ローテーションはversionによる
// 比較交換で行うため、同じ更新トークンを使った同時ローテーションは1つしか成功しない。
package session

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/bookgate/internal/credential"
)

const (
	// DefaultAccessTTL はアクセストークンの既定の有効期間。
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRenewalTTL は更新トークンの既定の有効期間。
	DefaultRenewalTTL = 7 * 24 * time.Hour
)

var (
	// ErrInvalidCredential は署名不正・形式不正・失効済みなどで資格情報が無効であることを表す。
	ErrInvalidCredential = errors.New("資格情報が無効です")
	// ErrExpiredCredential は資格情報の有効期限が切れていることを表す。
	ErrExpiredCredential = errors.New("資格情報の有効期限が切れています")
)

// Pair は発行されたアクセストークンと更新トークンの組。
type Pair struct {
	AccessCredential  string
	RenewalCredential string
	AccessExpiresAt   time.Time
	RenewalExpiresAt  time.Time
}

// Manager はトークンのライフサイクルを管理する。
// 並行に使用して安全で、署名鍵以外の共有状態はリポジトリにのみ存在する。
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	renewalTTL time.Duration
	sessions   credential.SessionRepository
	now        func() time.Time
}

// Option はManagerの設定を変更する。
type Option func(*Manager)

// WithAccessTTL はアクセストークンの有効期間を設定する。
func WithAccessTTL(d time.Duration) Option {
	return func(m *Manager) { m.accessTTL = d }
}

// WithRenewalTTL は更新トークンの有効期間を設定する。
func WithRenewalTTL(d time.Duration) Option {
	return func(m *Manager) { m.renewalTTL = d }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager はManagerを生成する。
func NewManager(secret []byte, sessions credential.SessionRepository, opts ...Option) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("署名鍵が空です")
	}
	if sessions == nil {
		return nil, errors.New("SessionRepositoryが指定されていません")
	}

	m := &Manager{
		secret:     secret,
		accessTTL:  DefaultAccessTTL,
		renewalTTL: DefaultRenewalTTL,
		sessions:   sessions,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.accessTTL <= 0 || m.renewalTTL <= 0 {
		return nil, fmt.Errorf("有効期間は正の値である必要があります: access=%s, renewal=%s", m.accessTTL, m.renewalTTL)
	}
	return m, nil
}

// AccessTTL はアクセストークンの有効期間を返す。
func (m *Manager) AccessTTL() time.Duration {
	return m.accessTTL
}

// Issue は新しいトークンの組を発行し、更新トークンを現在の値として保存する。
// 以前の更新トークンは暗黙に無効になる。
func (m *Manager) Issue(ctx context.Context, identityID string) (Pair, error) {
	if identityID == "" {
		return Pair{}, errors.New("アイデンティティIDが空です")
	}

	pair, err := m.newPair(identityID)
	if err != nil {
		return Pair{}, err
	}
	if err := m.sessions.PutSession(ctx, identityID, digest(pair.RenewalCredential)); err != nil {
		return Pair{}, fmt.Errorf("更新トークンの保存に失敗: %w", err)
	}
	return pair, nil
}

// VerifyAccess はアクセストークンを検証してアイデンティティIDを返す。
// ストアは参照しない。
func (m *Manager) VerifyAccess(token string) (string, error) {
	c, err := m.parse(token, kindAccess)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// Rotate は更新トークンを検証し、新しいトークンの組と交換する。
// 提示された値が現在保存されている値と一致しない場合（ローテーション済み・失効済み）は
// ErrInvalidCredential を返す。
func (m *Manager) Rotate(ctx context.Context, renewal string) (Pair, error) {
	c, err := m.parse(renewal, kindRenewal)
	if err != nil {
		return Pair{}, err
	}
	identityID := c.Subject

	current, err := m.sessions.Session(ctx, identityID)
	if errors.Is(err, credential.ErrNotFound) {
		return Pair{}, fmt.Errorf("%w: セッションが存在しません", ErrInvalidCredential)
	}
	if err != nil {
		return Pair{}, fmt.Errorf("セッションの取得に失敗: %w", err)
	}
	if current.RenewalDigest == "" ||
		subtle.ConstantTimeCompare([]byte(current.RenewalDigest), []byte(digest(renewal))) != 1 {
		return Pair{}, fmt.Errorf("%w: 更新トークンが現在の値と一致しません", ErrInvalidCredential)
	}

	pair, err := m.newPair(identityID)
	if err != nil {
		return Pair{}, err
	}
	err = m.sessions.SwapSession(ctx, identityID, current.Version, digest(pair.RenewalCredential))
	if errors.Is(err, credential.ErrVersionConflict) {
		return Pair{}, fmt.Errorf("%w: 更新トークンは既に使用されました", ErrInvalidCredential)
	}
	if err != nil {
		return Pair{}, fmt.Errorf("更新トークンの保存に失敗: %w", err)
	}
	return pair, nil
}

// Revoke はアイデンティティの更新トークンを失効させる。
func (m *Manager) Revoke(ctx context.Context, identityID string) error {
	if err := m.sessions.ClearSession(ctx, identityID); err != nil {
		return fmt.Errorf("更新トークンの失効に失敗: %w", err)
	}
	return nil
}

func (m *Manager) newPair(identityID string) (Pair, error) {
	now := m.now()

	access, accessExp, err := m.sign(identityID, kindAccess, now, m.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	renewal, renewalExp, err := m.sign(identityID, kindRenewal, now, m.renewalTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessCredential:  access,
		RenewalCredential: renewal,
		AccessExpiresAt:   accessExp,
		RenewalExpiresAt:  renewalExp,
	}, nil
}

// digest は更新トークンを保存用のダイジェストに変換する。
func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
