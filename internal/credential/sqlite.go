package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	gatewaydb "github.com/nao1215/bookgate/internal/gateway/db"
)

// SQLiteStore はSQLiteを使ったIdentityRepositoryとSessionRepositoryの実装。
type SQLiteStore struct {
	queries *gatewaydb.Queries
}

var (
	_ IdentityRepository = (*SQLiteStore)(nil)
	_ SessionRepository  = (*SQLiteStore)(nil)
)

// NewSQLiteStore はSQLiteStoreを生成する。
func NewSQLiteStore(db gatewaydb.DBTX) *SQLiteStore {
	return &SQLiteStore{queries: gatewaydb.New(db)}
}

// CreateIdentity はアイデンティティを登録する。
func (s *SQLiteStore) CreateIdentity(ctx context.Context, identity Identity) error {
	err := s.queries.CreateIdentity(ctx, gatewaydb.CreateIdentityParams{
		ID:           identity.ID,
		Handle:       NormalizeHandle(identity.Handle),
		PasswordHash: identity.PasswordHash,
		DisplayName:  identity.DisplayName,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrHandleTaken
		}
		return fmt.Errorf("アイデンティティの登録に失敗: %w", err)
	}
	return nil
}

// IdentityByHandle はハンドルでアイデンティティを取得する。
func (s *SQLiteStore) IdentityByHandle(ctx context.Context, handle string) (Identity, error) {
	row, err := s.queries.GetIdentityByHandle(ctx, NormalizeHandle(handle))
	if err != nil {
		return Identity{}, wrapNotFound(err, "アイデンティティの取得に失敗")
	}
	return toIdentity(row), nil
}

// IdentityByID はIDでアイデンティティを取得する。
func (s *SQLiteStore) IdentityByID(ctx context.Context, id string) (Identity, error) {
	row, err := s.queries.GetIdentityByID(ctx, id)
	if err != nil {
		return Identity{}, wrapNotFound(err, "アイデンティティの取得に失敗")
	}
	return toIdentity(row), nil
}

// Session はセッション状態を取得する。
func (s *SQLiteStore) Session(ctx context.Context, identityID string) (Session, error) {
	row, err := s.queries.GetSession(ctx, identityID)
	if err != nil {
		return Session{}, wrapNotFound(err, "セッションの取得に失敗")
	}
	return Session{
		IdentityID:    row.IdentityID,
		RenewalDigest: row.RenewalDigest.String,
		Version:       row.Version,
	}, nil
}

// PutSession はダイジェストを無条件に上書きする。
func (s *SQLiteStore) PutSession(ctx context.Context, identityID, digest string) error {
	if err := s.queries.UpsertSession(ctx, identityID, nullString(digest)); err != nil {
		return fmt.Errorf("セッションの保存に失敗: %w", err)
	}
	return nil
}

// SwapSession はversionが一致する場合のみダイジェストを置き換える。
func (s *SQLiteStore) SwapSession(ctx context.Context, identityID string, version int64, digest string) error {
	affected, err := s.queries.SwapSessionDigest(ctx, gatewaydb.SwapSessionDigestParams{
		RenewalDigest: nullString(digest),
		IdentityID:    identityID,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("セッションの更新に失敗: %w", err)
	}
	if affected != 1 {
		return ErrVersionConflict
	}
	return nil
}

// ClearSession はダイジェストを消去する。
func (s *SQLiteStore) ClearSession(ctx context.Context, identityID string) error {
	if err := s.queries.ClearSessionDigest(ctx, identityID); err != nil {
		return fmt.Errorf("セッションの消去に失敗: %w", err)
	}
	return nil
}

func toIdentity(row gatewaydb.Identity) Identity {
	return Identity{
		ID:           row.ID,
		Handle:       row.Handle,
		PasswordHash: row.PasswordHash,
		DisplayName:  row.DisplayName,
	}
}

func wrapNotFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation はSQLiteの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
