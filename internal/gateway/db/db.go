// Package db はGatewayサービスのSQLiteクエリを提供する。
//
// identities テーブルにログイン用のアイデンティティを、sessions テーブルに
// アイデンティティごとの現在の更新トークン（ダイジェスト）を保持する。
package db

import (
	"context"
	"database/sql"
	"embed"

	"github.com/sirupsen/logrus"

	"github.com/nao1215/bookgate/pkg/migration"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DBTX は *sql.DB と *sql.Tx の両方が満たすクエリ実行インターフェース。
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries はGatewayサービスのクエリ実行オブジェクト。
type Queries struct {
	db DBTX
}

// New はQueriesを生成する。
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Migrate は埋め込まれたマイグレーションを適用する。
func Migrate(ctx context.Context, db *sql.DB, logger logrus.FieldLogger) error {
	return migration.Run(ctx, db, migrations, "migrations", logger)
}
