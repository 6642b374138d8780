package migration

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"

	"github.com/nao1215/bookgate/pkg/logging"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDB接続に失敗: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("バージョン順に適用され再実行ではスキップされること", func(t *testing.T) {
		t.Parallel()

		db := openMemoryDB(t)
		fsys := fstest.MapFS{
			"migrations/000002_add_column.up.sql": {Data: []byte("ALTER TABLE books ADD COLUMN title TEXT NOT NULL DEFAULT '';")},
			"migrations/000001_create.up.sql":     {Data: []byte("CREATE TABLE books (id TEXT PRIMARY KEY);")},
			"migrations/000001_create.down.sql":   {Data: []byte("DROP TABLE books;")},
			"migrations/README.md":                {Data: []byte("無視される")},
		}

		ctx := context.Background()
		if err := Run(ctx, db, fsys, "migrations", logging.Discard()); err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}
		if err := Run(ctx, db, fsys, "migrations", nil); err != nil {
			t.Fatalf("2回目のRun()でエラーが発生: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("件数の取得に失敗: %v", err)
		}
		if count != 2 {
			t.Errorf("適用済み件数 = %d, want 2", count)
		}
		if _, err := db.Exec("INSERT INTO books (id, title) VALUES ('b1', 'Go')"); err != nil {
			t.Errorf("マイグレーション後のテーブルに挿入できない: %v", err)
		}
	})

	t.Run("不正なSQLの場合はエラーを返し記録されないこと", func(t *testing.T) {
		t.Parallel()

		db := openMemoryDB(t)
		fsys := fstest.MapFS{
			"m/000001_broken.up.sql": {Data: []byte("CREATE TABL broken;")},
		}

		if err := Run(context.Background(), db, fsys, "m", nil); err == nil {
			t.Fatal("エラーが返されるべき")
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("件数の取得に失敗: %v", err)
		}
		if count != 0 {
			t.Errorf("適用済み件数 = %d, want 0", count)
		}
	})

	t.Run("バージョンが重複している場合はエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		db := openMemoryDB(t)
		fsys := fstest.MapFS{
			"m/000001_a.up.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
			"m/000001_b.up.sql": {Data: []byte("CREATE TABLE b (id TEXT);")},
		}

		if err := Run(context.Background(), db, fsys, "m", nil); err == nil {
			t.Fatal("エラーが返されるべき")
		}
	})
}
