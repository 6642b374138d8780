package httpclient

import (
	"net"
	"net/http"
	"time"
)

// Options は上流接続用トランスポートの設定。
type Options struct {
	// DialTimeout はTCP接続確立のタイムアウト。
	DialTimeout time.Duration
	// ResponseHeaderTimeout はリクエスト送信完了からレスポンスヘッダー受信までのタイムアウト。
	// 0の場合は無制限。
	ResponseHeaderTimeout time.Duration
	// IdleConnTimeout はアイドル接続を保持する時間。
	IdleConnTimeout time.Duration
	// MaxIdleConnsPerHost はホストごとのアイドル接続の上限。
	MaxIdleConnsPerHost int
}

// DefaultOptions はデフォルトのトランスポート設定を返す。
func DefaultOptions() Options {
	return Options{
		DialTimeout:           5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   32,
	}
}

// NewTransport は設定に従った *http.Transport を生成する。
// ボディ全体に対するタイムアウトは設定しない。
func NewTransport(opts Options) *http.Transport {
	def := DefaultOptions()
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = def.DialTimeout
	}
	if opts.IdleConnTimeout <= 0 {
		opts.IdleConnTimeout = def.IdleConnTimeout
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	if opts.ResponseHeaderTimeout < 0 {
		opts.ResponseHeaderTimeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   opts.DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       opts.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
	}
}
