// Package credential はアイデンティティとセッション（更新トークン）の永続化を提供する。
//
// アイデンティティの寿命とセッションの寿命を分けるため、IdentityRepository と
// SessionRepository の2つのインターフェースに分離している。セッションは
// アイデンティティごとに1件で、version による比較交換で更新する。
package credential

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound はレコードが存在しないことを表す。
	ErrNotFound = errors.New("レコードが見つかりません")
	// ErrHandleTaken はハンドルが既に登録済みであることを表す。
	ErrHandleTaken = errors.New("ハンドルは既に使用されています")
	// ErrVersionConflict は比較交換でversionが一致しなかったことを表す。
	ErrVersionConflict = errors.New("セッションのバージョンが競合しました")
	// ErrBadLogin はハンドルまたはパスワードが一致しないことを表す。
	ErrBadLogin = errors.New("ハンドルまたはパスワードが正しくありません")
)

// Identity はログイン可能な利用者。
type Identity struct {
	// ID は不変の一意識別子。
	ID string
	// Handle はログインに使うハンドル。大文字小文字を区別しない。
	Handle string
	// PasswordHash はbcryptハッシュ。
	PasswordHash string
	// DisplayName は表示名。
	DisplayName string
}

// Session はアイデンティティに紐づく現在の更新トークンの状態。
type Session struct {
	IdentityID string
	// RenewalDigest は現在有効な更新トークンのダイジェスト。空なら有効な更新トークンは無い。
	RenewalDigest string
	// Version は書き込みのたびに加算される楽観的排他制御用の値。
	Version int64
}

// IdentityRepository はアイデンティティの永続化を担う。
type IdentityRepository interface {
	// CreateIdentity はアイデンティティを登録する。ハンドル重複時は ErrHandleTaken。
	CreateIdentity(ctx context.Context, identity Identity) error
	// IdentityByHandle はハンドルで検索する。存在しない場合は ErrNotFound。
	IdentityByHandle(ctx context.Context, handle string) (Identity, error)
	// IdentityByID はIDで検索する。存在しない場合は ErrNotFound。
	IdentityByID(ctx context.Context, id string) (Identity, error)
}

// SessionRepository はアイデンティティごとの更新トークン状態の永続化を担う。
type SessionRepository interface {
	// Session は現在の状態を返す。一度も発行されていない場合は ErrNotFound。
	Session(ctx context.Context, identityID string) (Session, error)
	// PutSession はダイジェストを無条件に上書きし、versionを進める。
	PutSession(ctx context.Context, identityID, digest string) error
	// SwapSession はversionが一致する場合のみダイジェストを置き換える。
	// 一致しない場合は ErrVersionConflict。
	SwapSession(ctx context.Context, identityID string, version int64, digest string) error
	// ClearSession はダイジェストを消去し、versionを進める。状態が無ければ何もしない。
	ClearSession(ctx context.Context, identityID string) error
}

// NormalizeHandle はハンドルを比較用に正規化する。
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}
