package proxy

import (
	"net/url"
	"strings"
)

// Strategy はバックエンド側のパスを組み立てる書き換え方式。
type Strategy string

const (
	// StrategyReplace は一致したプレフィックスを To に置き換える。
	StrategyReplace Strategy = "replace"
	// StrategyStrip は一致したプレフィックスを取り除く。
	StrategyStrip Strategy = "strip"
	// StrategyPreserve はパスをそのまま転送する。
	StrategyPreserve Strategy = "preserve"
)

// Rule はパスプレフィックスとバックエンドの対応を表すルーティングルール。
// 起動時に読み込まれ、以降は変更されない。
type Rule struct {
	// Name はログとメトリクスに使用するルール名。
	Name string
	// Prefix はセグメント境界で照合するパスプレフィックス。末尾のスラッシュは持たない。
	Prefix string
	// Target は転送先のベースURL。
	Target *url.URL
	// Strategy はパスの書き換え方式。
	Strategy Strategy
	// To は StrategyReplace で使用する置換後のプレフィックス。
	To string
	// RequireAuth が true の場合、転送前にBearerトークンを検証する。
	RequireAuth bool
}

// Matches はパスがルールのプレフィックスにセグメント境界で一致するかを返す。
// プレフィックス "/api/v1/auth" は "/api/v1/auth" と "/api/v1/auth/..." に一致し、
// "/api/v1/authentication" には一致しない。
func (r Rule) Matches(path string) bool {
	if r.Prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	if !strings.HasPrefix(path, r.Prefix) {
		return false
	}
	return len(path) == len(r.Prefix) || path[len(r.Prefix)] == '/'
}

// ValidPath はパスが "." や ".." のセグメントを含まないかを返す。
// 照合と書き換えはパスを正規化せずに行うため、ドットセグメントを含むパスは転送しない。
// URL.Path はデコード済みなので "%2e%2e" も ".." として検出される。
func ValidPath(path string) bool {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	for _, seg := range segments {
		if seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// Rewrite は一致したパスからバックエンド側のパスを組み立てる。
// Matches が true を返すパスに対してのみ呼び出すこと。
func (r Rule) Rewrite(path string) string {
	rest := path
	if r.Prefix != "/" {
		rest = path[len(r.Prefix):]
	}
	if rest == "" {
		rest = "/"
	}

	var p string
	switch r.Strategy {
	case StrategyReplace:
		p = strings.TrimSuffix(r.To, "/") + rest
	case StrategyStrip:
		p = rest
	default:
		p = path
	}
	return joinPath(r.Target.Path, p)
}

// rewriteURL は転送先URLのPathとRawPathを組み立てる。
// RawPathがプレフィックスで始まらない場合はRawPathを捨て、Pathから再エンコードさせる。
func (r Rule) rewriteURL(in *url.URL) (string, string) {
	p := r.Rewrite(in.Path)
	if in.RawPath == "" || !r.Matches(in.RawPath) {
		return p, ""
	}
	raw := r.Rewrite(in.RawPath)
	if u, err := url.PathUnescape(raw); err != nil || u != p {
		return p, ""
	}
	return p, raw
}

func joinPath(base, p string) string {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return p
	}
	return base + p
}
