package proxy

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

func TestNewTable(t *testing.T) {
	t.Parallel()

	backend := &url.URL{Scheme: "http", Host: "backend:4001"}

	invalid := []struct {
		name  string
		rules []Rule
	}{
		{name: "ルールが空", rules: nil},
		{name: "プレフィックスが空", rules: []Rule{{Prefix: "", Target: backend}}},
		{name: "プレフィックスが相対パス", rules: []Rule{{Prefix: "api", Target: backend}}},
		{name: "転送先が未設定", rules: []Rule{{Prefix: "/api"}}},
		{name: "転送先のスキームが不正", rules: []Rule{{Prefix: "/api", Target: &url.URL{Scheme: "ftp", Host: "x"}}}},
		{name: "未知の書き換え方式", rules: []Rule{{Prefix: "/api", Target: backend, Strategy: "regex"}}},
		{name: "replaceの置換先が相対パス", rules: []Rule{{Prefix: "/api", Target: backend, Strategy: StrategyReplace, To: "v1"}}},
		{name: "プレフィックスの重複", rules: []Rule{
			{Name: "a", Prefix: "/api", Target: backend},
			{Name: "b", Prefix: "/api/", Target: backend},
		}},
		{name: "先行する広いルールに隠される", rules: []Rule{
			{Name: "broad", Prefix: "/api", Target: backend},
			{Name: "narrow", Prefix: "/api/v1", Target: backend},
		}},
	}
	for _, tt := range invalid {
		t.Run(tt.name+"の場合はエラーになること", func(t *testing.T) {
			t.Parallel()

			if _, err := NewTable(tt.rules); !errors.Is(err, ErrInvalidRoute) {
				t.Errorf("NewTable() error = %v, want %v", err, ErrInvalidRoute)
			}
		})
	}

	t.Run("具体的なルールを先に並べれば重なりを許容すること", func(t *testing.T) {
		t.Parallel()

		table, err := NewTable([]Rule{
			{Name: "narrow", Prefix: "/api/v1/", Target: backend},
			{Name: "broad", Prefix: "/api", Target: backend},
		})
		if err != nil {
			t.Fatalf("NewTable() error = %v", err)
		}
		got, ok := table.Match("/api/v1/books")
		if !ok || got.Name != "narrow" {
			t.Errorf("Match() = (%q, %v), want (%q, true)", got.Name, ok, "narrow")
		}
		got, ok = table.Match("/api/v2/books")
		if !ok || got.Name != "broad" {
			t.Errorf("Match() = (%q, %v), want (%q, true)", got.Name, ok, "broad")
		}
		if got.Strategy != StrategyPreserve {
			t.Errorf("Strategy = %q, want %q", got.Strategy, StrategyPreserve)
		}
	})

	t.Run("authとauthenticationはセグメント境界で区別されること", func(t *testing.T) {
		t.Parallel()

		table, err := NewTable([]Rule{
			{Name: "auth", Prefix: "/api/v1/auth", Target: backend},
			{Name: "authentication", Prefix: "/api/v1/authentication", Target: backend},
		})
		if err != nil {
			t.Fatalf("NewTable() error = %v", err)
		}
		if got, _ := table.Match("/api/v1/auth/login"); got.Name != "auth" {
			t.Errorf("Match(/api/v1/auth/login) = %q, want %q", got.Name, "auth")
		}
		if got, _ := table.Match("/api/v1/authentication/login"); got.Name != "authentication" {
			t.Errorf("Match(/api/v1/authentication/login) = %q, want %q", got.Name, "authentication")
		}
		if _, ok := table.Match("/api/v1/books"); ok {
			t.Error("一致しないパスでは false が返るべき")
		}
	})
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("YAMLからルールを読み込めること", func(t *testing.T) {
		t.Parallel()

		const doc = `
routes:
  - name: books
    prefix: /api/v1/bookstore
    target: http://bookstore:4001
    rewrite:
      strategy: replace
      to: /api/v1/books
  - name: me
    prefix: /api/v1/me
    target: https://profile.internal/base
    rewrite:
      strategy: strip
    auth: true
`
		table, err := Parse(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		rules := table.Rules()
		if len(rules) != 2 {
			t.Fatalf("len(rules) = %d, want 2", len(rules))
		}
		if rules[0].Strategy != StrategyReplace || rules[0].To != "/api/v1/books" {
			t.Errorf("rules[0] = %+v", rules[0])
		}
		if rules[0].RequireAuth {
			t.Error("rules[0].RequireAuth = true, want false")
		}
		if !rules[1].RequireAuth {
			t.Error("rules[1].RequireAuth = false, want true")
		}
		if got := rules[1].Rewrite("/api/v1/me/profile"); got != "/base/profile" {
			t.Errorf("Rewrite() = %q, want %q", got, "/base/profile")
		}
	})

	t.Run("未知のキーはエラーになること", func(t *testing.T) {
		t.Parallel()

		const doc = `
routes:
  - prefix: /api
    target: http://backend
    rewite:
      strategy: strip
`
		if _, err := Parse(strings.NewReader(doc)); !errors.Is(err, ErrInvalidRoute) {
			t.Errorf("Parse() error = %v, want %v", err, ErrInvalidRoute)
		}
	})

	t.Run("転送先URLが不正な場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		const doc = `
routes:
  - prefix: /api
    target: backend:4001
`
		if _, err := Parse(strings.NewReader(doc)); !errors.Is(err, ErrInvalidRoute) {
			t.Errorf("Parse() error = %v, want %v", err, ErrInvalidRoute)
		}
	})
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	if _, err := LoadFile("testdata/does-not-exist.yaml"); err == nil {
		t.Error("存在しないファイルではエラーが返るべき")
	}

	table, err := LoadFile("testdata/routes.yaml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got, ok := table.Match("/api/v1/authentication/login"); !ok || got.Name != "authentication" {
		t.Errorf("Match() = (%q, %v), want (%q, true)", got.Name, ok, "authentication")
	}
}
