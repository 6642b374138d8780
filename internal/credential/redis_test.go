package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisSessions(t *testing.T) (*RedisSessions, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	sessions, err := NewRedisSessions(context.Background(), mr.Addr(), "", "bookgate:")
	if err != nil {
		t.Fatalf("NewRedisSessions()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })
	return sessions, mr
}

func TestRedisSessions(t *testing.T) {
	t.Parallel()

	t.Run("PutSessionで保存した状態を取得できること", func(t *testing.T) {
		t.Parallel()

		sessions, mr := newTestRedisSessions(t)
		ctx := context.Background()

		if err := sessions.PutSession(ctx, "id-1", "digest-1"); err != nil {
			t.Fatalf("PutSession()でエラーが発生: %v", err)
		}
		got, err := sessions.Session(ctx, "id-1")
		if err != nil {
			t.Fatalf("Session()でエラーが発生: %v", err)
		}
		if got.RenewalDigest != "digest-1" {
			t.Errorf("RenewalDigest = %q, want %q", got.RenewalDigest, "digest-1")
		}
		if got.Version != 1 {
			t.Errorf("Version = %d, want 1", got.Version)
		}
		if v := mr.HGet("bookgate:session:id-1", "digest"); v != "digest-1" {
			t.Errorf("Redis上のdigest = %q, want %q", v, "digest-1")
		}
	})

	t.Run("SwapSessionは一致するversionでのみ成功すること", func(t *testing.T) {
		t.Parallel()

		sessions, _ := newTestRedisSessions(t)
		ctx := context.Background()

		if err := sessions.PutSession(ctx, "id-1", "digest-1"); err != nil {
			t.Fatalf("PutSession()でエラーが発生: %v", err)
		}
		if err := sessions.SwapSession(ctx, "id-1", 1, "digest-2"); err != nil {
			t.Fatalf("SwapSession()でエラーが発生: %v", err)
		}
		if err := sessions.SwapSession(ctx, "id-1", 1, "digest-3"); !errors.Is(err, ErrVersionConflict) {
			t.Errorf("err = %v, want %v", err, ErrVersionConflict)
		}

		got, _ := sessions.Session(ctx, "id-1")
		if got.RenewalDigest != "digest-2" || got.Version != 2 {
			t.Errorf("got = %+v, want digest-2/version 2", got)
		}
	})

	t.Run("存在しないセッションのSwapSessionは競合として扱うこと", func(t *testing.T) {
		t.Parallel()

		sessions, _ := newTestRedisSessions(t)
		if err := sessions.SwapSession(context.Background(), "none", 0, "d"); !errors.Is(err, ErrVersionConflict) {
			t.Errorf("err = %v, want %v", err, ErrVersionConflict)
		}
	})

	t.Run("ClearSessionでダイジェストが空になりversionが進むこと", func(t *testing.T) {
		t.Parallel()

		sessions, _ := newTestRedisSessions(t)
		ctx := context.Background()

		if err := sessions.PutSession(ctx, "id-1", "digest-1"); err != nil {
			t.Fatalf("PutSession()でエラーが発生: %v", err)
		}
		if err := sessions.ClearSession(ctx, "id-1"); err != nil {
			t.Fatalf("ClearSession()でエラーが発生: %v", err)
		}

		got, err := sessions.Session(ctx, "id-1")
		if err != nil {
			t.Fatalf("Session()でエラーが発生: %v", err)
		}
		if got.RenewalDigest != "" {
			t.Errorf("RenewalDigest = %q, want empty", got.RenewalDigest)
		}
		if got.Version != 2 {
			t.Errorf("Version = %d, want 2", got.Version)
		}
	})

	t.Run("セッションが無い場合はErrNotFoundを返すこと", func(t *testing.T) {
		t.Parallel()

		sessions, _ := newTestRedisSessions(t)
		if _, err := sessions.Session(context.Background(), "none"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want %v", err, ErrNotFound)
		}
		if err := sessions.ClearSession(context.Background(), "none"); err != nil {
			t.Errorf("存在しないセッションの消去はエラーにならないべき: %v", err)
		}
	})

	t.Run("接続できない場合はエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		if _, err := NewRedisSessions(context.Background(), addr, "", ""); err == nil {
			t.Error("エラーが返されるべき")
		}
	})
}
