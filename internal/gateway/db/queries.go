package db

import (
	"context"
	"database/sql"
)

// Identity は identities テーブルの行。
type Identity struct {
	ID           string
	Handle       string
	PasswordHash string
	DisplayName  string
}

// Session は sessions テーブルの行。
type Session struct {
	IdentityID    string
	RenewalDigest sql.NullString
	Version       int64
}

// CreateIdentityParams はCreateIdentityの引数。
type CreateIdentityParams struct {
	ID           string
	Handle       string
	PasswordHash string
	DisplayName  string
}

const createIdentity = `
INSERT INTO identities (id, handle, password_hash, display_name)
VALUES (?, ?, ?, ?)
`

// CreateIdentity はアイデンティティを挿入する。
func (q *Queries) CreateIdentity(ctx context.Context, arg CreateIdentityParams) error {
	_, err := q.db.ExecContext(ctx, createIdentity, arg.ID, arg.Handle, arg.PasswordHash, arg.DisplayName)
	return err
}

const getIdentityByHandle = `
SELECT id, handle, password_hash, display_name
FROM identities
WHERE handle = ?
`

// GetIdentityByHandle はハンドルでアイデンティティを取得する。
func (q *Queries) GetIdentityByHandle(ctx context.Context, handle string) (Identity, error) {
	var i Identity
	err := q.db.QueryRowContext(ctx, getIdentityByHandle, handle).Scan(
		&i.ID, &i.Handle, &i.PasswordHash, &i.DisplayName,
	)
	return i, err
}

const getIdentityByID = `
SELECT id, handle, password_hash, display_name
FROM identities
WHERE id = ?
`

// GetIdentityByID はIDでアイデンティティを取得する。
func (q *Queries) GetIdentityByID(ctx context.Context, id string) (Identity, error) {
	var i Identity
	err := q.db.QueryRowContext(ctx, getIdentityByID, id).Scan(
		&i.ID, &i.Handle, &i.PasswordHash, &i.DisplayName,
	)
	return i, err
}

const getSession = `
SELECT identity_id, renewal_digest, version
FROM sessions
WHERE identity_id = ?
`

// GetSession はアイデンティティのセッション行を取得する。
func (q *Queries) GetSession(ctx context.Context, identityID string) (Session, error) {
	var s Session
	err := q.db.QueryRowContext(ctx, getSession, identityID).Scan(
		&s.IdentityID, &s.RenewalDigest, &s.Version,
	)
	return s, err
}

const upsertSession = `
INSERT INTO sessions (identity_id, renewal_digest, version, updated_at)
VALUES (?, ?, 1, datetime('now'))
ON CONFLICT(identity_id) DO UPDATE SET
    renewal_digest = excluded.renewal_digest,
    version = sessions.version + 1,
    updated_at = excluded.updated_at
`

// UpsertSession は更新トークンのダイジェストを無条件に上書きする。
func (q *Queries) UpsertSession(ctx context.Context, identityID string, digest sql.NullString) error {
	_, err := q.db.ExecContext(ctx, upsertSession, identityID, digest)
	return err
}

// SwapSessionDigestParams はSwapSessionDigestの引数。
type SwapSessionDigestParams struct {
	RenewalDigest sql.NullString
	IdentityID    string
	Version       int64
}

const swapSessionDigest = `
UPDATE sessions
SET renewal_digest = ?, version = version + 1, updated_at = datetime('now')
WHERE identity_id = ? AND version = ?
`

// SwapSessionDigest はversionが一致する場合のみダイジェストを更新し、更新行数を返す。
func (q *Queries) SwapSessionDigest(ctx context.Context, arg SwapSessionDigestParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, swapSessionDigest, arg.RenewalDigest, arg.IdentityID, arg.Version)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const clearSessionDigest = `
UPDATE sessions
SET renewal_digest = NULL, version = version + 1, updated_at = datetime('now')
WHERE identity_id = ?
`

// ClearSessionDigest はダイジェストをNULLにする。
func (q *Queries) ClearSessionDigest(ctx context.Context, identityID string) error {
	_, err := q.db.ExecContext(ctx, clearSessionDigest, identityID)
	return err
}
