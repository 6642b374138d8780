package proxy

import (
	"net/url"
	"testing"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", raw, err)
	}
	return u
}

func TestRuleMatches(t *testing.T) {
	t.Parallel()

	rule := Rule{Prefix: "/api/v1/auth"}
	tests := []struct {
		path string
		want bool
	}{
		{path: "/api/v1/auth", want: true},
		{path: "/api/v1/auth/", want: true},
		{path: "/api/v1/auth/login", want: true},
		{path: "/api/v1/authentication", want: false},
		{path: "/api/v1/authentication/login", want: false},
		{path: "/api/v1", want: false},
		{path: "/other", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			if got := rule.Matches(tt.path); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}

	t.Run("ルートプレフィックスは全てのパスに一致すること", func(t *testing.T) {
		t.Parallel()

		root := Rule{Prefix: "/"}
		if !root.Matches("/anything/here") {
			t.Error("Matches() = false, want true")
		}
	})
}

func TestValidPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want bool
	}{
		{path: "/", want: true},
		{path: "/api/v1/books/42", want: true},
		{path: "/api/v1/books/", want: true},
		{path: "/api/v1/books/..hidden", want: true},
		{path: "/api/v1/books/a.b", want: true},
		{path: "/api/v1/books/../../x", want: false},
		{path: "/pub/../priv/secret", want: false},
		{path: "/pub/./secret", want: false},
		{path: "/pub/..", want: false},
		{path: `/pub/..\priv`, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			if got := ValidPath(tt.path); got != tt.want {
				t.Errorf("ValidPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestRuleRewrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule Rule
		path string
		want string
	}{
		{
			name: "replaceでプレフィックスが置き換わること",
			rule: Rule{Prefix: "/api/v1/bookstore", Strategy: StrategyReplace, To: "/api/v1/books"},
			path: "/api/v1/bookstore/42",
			want: "/api/v1/books/42",
		},
		{
			name: "replaceで残りが空の場合はスラッシュが補われること",
			rule: Rule{Prefix: "/api/v1/bookstore", Strategy: StrategyReplace, To: "/api/v1/books"},
			path: "/api/v1/bookstore",
			want: "/api/v1/books/",
		},
		{
			name: "replaceで置換先の末尾スラッシュが二重にならないこと",
			rule: Rule{Prefix: "/auth", Strategy: StrategyReplace, To: "/api/v1/auth/"},
			path: "/auth/login",
			want: "/api/v1/auth/login",
		},
		{
			name: "stripでプレフィックスが取り除かれること",
			rule: Rule{Prefix: "/svc", Strategy: StrategyStrip},
			path: "/svc/items/1",
			want: "/items/1",
		},
		{
			name: "stripで残りが空の場合はルートになること",
			rule: Rule{Prefix: "/svc", Strategy: StrategyStrip},
			path: "/svc",
			want: "/",
		},
		{
			name: "preserveでパスがそのまま転送されること",
			rule: Rule{Prefix: "/svc", Strategy: StrategyPreserve},
			path: "/svc/items",
			want: "/svc/items",
		},
		{
			name: "転送先のベースパスが前に付くこと",
			rule: Rule{Prefix: "/svc", Strategy: StrategyStrip, Target: &url.URL{Path: "/base/"}},
			path: "/svc/items",
			want: "/base/items",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rule := tt.rule
			if rule.Target == nil {
				rule.Target = mustURL(t, "http://backend:4001")
			}
			if got := rule.Rewrite(tt.path); got != tt.want {
				t.Errorf("Rewrite(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}

	t.Run("エンコードされたパスはRawPathも書き換えられること", func(t *testing.T) {
		t.Parallel()

		rule := Rule{Prefix: "/svc", Strategy: StrategyStrip, Target: mustURL(t, "http://backend")}
		in := mustURL(t, "http://gw/svc/a%2Fb")
		p, raw := rule.rewriteURL(in)
		if p != "/a/b" {
			t.Errorf("path = %q, want %q", p, "/a/b")
		}
		if raw != "/a%2Fb" {
			t.Errorf("rawPath = %q, want %q", raw, "/a%2Fb")
		}
	})
}
