package gateway

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/bookgate/internal/proxy"
	"github.com/nao1215/bookgate/internal/session"
	"github.com/nao1215/bookgate/pkg/httpclient"
)

// DefaultJWTSecret は JWT_SECRET 未設定時に使用する開発用の署名鍵。
const DefaultJWTSecret = "dev-secret-key"

const (
	// sessionStoreSQLite はセッションをアイデンティティと同じSQLiteに保存する。
	sessionStoreSQLite = "sqlite"
	// sessionStoreRedis はセッションをRedisに保存する。
	sessionStoreRedis = "redis"
)

// reservedPaths はゲートウェイ自身が処理するパス。ルーティングルールと重なってはならない。
var reservedPaths = []string{"/session", "/health", "/metrics"}

// Config はGatewayサービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// JWTSecret はトークン署名用の秘密鍵。
	JWTSecret string
	// AccessTTL はアクセストークンの有効期間。
	AccessTTL time.Duration
	// RenewalTTL は更新トークンの有効期間。
	RenewalTTL time.Duration
	// DatabaseDSN はSQLiteの接続文字列。
	DatabaseDSN string
	// SessionStore はセッションの保存先（sqlite または redis）。
	SessionStore string
	// RedisAddr はRedisのアドレス。
	RedisAddr string
	// RedisPassword はRedisのパスワード。
	RedisPassword string
	// RoutesFile はルーティング設定YAMLのパス。空の場合は組み込みのルートを使用する。
	RoutesFile string
	// BookstoreURL は組み込みルートの転送先。
	BookstoreURL string
	// Upstream は上流接続のトランスポート設定。
	Upstream httpclient.Options
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string
	// LogLevel はログレベル。
	LogLevel string
	// LogFormat はログ形式（json または text）。
	LogFormat string
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() (Config, error) {
	cfg := Config{
		Port:          getEnvOr("PORT", "8080"),
		JWTSecret:     getEnvOr("JWT_SECRET", DefaultJWTSecret),
		DatabaseDSN:   getEnvOr("DATABASE_DSN", "file:/data/gateway.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"),
		SessionStore:  strings.ToLower(getEnvOr("SESSION_STORE", sessionStoreSQLite)),
		RedisAddr:     getEnvOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RoutesFile:    os.Getenv("ROUTES_FILE"),
		BookstoreURL:  getEnvOr("BOOKSTORE_API_URL", "http://localhost:4001"),
		LogLevel:      getEnvOr("LOG_LEVEL", "info"),
		LogFormat:     getEnvOr("LOG_FORMAT", "json"),
	}

	for _, o := range strings.Split(getEnvOr("FRONTEND_URL", "http://localhost:3000"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	def := httpclient.DefaultOptions()
	var errs []error
	cfg.AccessTTL = getDurationOr("ACCESS_TOKEN_TTL", session.DefaultAccessTTL, &errs)
	cfg.RenewalTTL = getDurationOr("RENEWAL_TOKEN_TTL", session.DefaultRenewalTTL, &errs)
	cfg.ShutdownTimeout = getDurationOr("SHUTDOWN_TIMEOUT", 10*time.Second, &errs)
	cfg.Upstream = httpclient.Options{
		DialTimeout:           getDurationOr("UPSTREAM_DIAL_TIMEOUT", def.DialTimeout, &errs),
		ResponseHeaderTimeout: getDurationOr("UPSTREAM_RESPONSE_TIMEOUT", def.ResponseHeaderTimeout, &errs),
		IdleConnTimeout:       def.IdleConnTimeout,
		MaxIdleConnsPerHost:   getIntOr("UPSTREAM_MAX_IDLE_CONNS_PER_HOST", def.MaxIdleConnsPerHost, &errs),
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT が空です"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET が空です"))
	}
	if c.AccessTTL <= 0 || c.RenewalTTL <= 0 {
		errs = append(errs, errors.New("トークンの有効期間は正の値である必要があります"))
	}
	if c.AccessTTL >= c.RenewalTTL {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_TTL (%s) は RENEWAL_TOKEN_TTL (%s) より短い必要があります", c.AccessTTL, c.RenewalTTL))
	}
	switch c.SessionStore {
	case sessionStoreSQLite:
	case sessionStoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("SESSION_STORE=redis の場合は REDIS_ADDR が必要です"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE %q は未対応です", c.SessionStore))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN が空です"))
	}
	return errors.Join(errs...)
}

// UsesDefaultSecret は開発用の署名鍵を使用しているかを返す。
func (c Config) UsesDefaultSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}

// RouteTable はルーティングテーブルを構築する。
// RoutesFile が指定されていればYAMLを読み込み、無ければ組み込みのルートを使用する。
func (c Config) RouteTable() (*proxy.Table, error) {
	var (
		table *proxy.Table
		err   error
	)
	if c.RoutesFile != "" {
		table, err = proxy.LoadFile(c.RoutesFile)
	} else {
		table, err = defaultRoutes(c.BookstoreURL)
	}
	if err != nil {
		return nil, err
	}
	if err := checkReserved(table); err != nil {
		return nil, err
	}
	return table, nil
}

// defaultRoutes は書籍APIへの組み込みルートを返す。
func defaultRoutes(bookstoreURL string) (*proxy.Table, error) {
	target, err := proxy.ParseTarget(bookstoreURL)
	if err != nil {
		return nil, err
	}
	return proxy.NewTable([]proxy.Rule{
		{
			Name:     "authentication",
			Prefix:   "/api/v1/authentication",
			Target:   target,
			Strategy: proxy.StrategyReplace,
			To:       "/api/v1/auth",
		},
		{
			Name:     "bookstore",
			Prefix:   "/api/v1/bookstore",
			Target:   target,
			Strategy: proxy.StrategyReplace,
			To:       "/api/v1/books",
		},
	})
}

func checkReserved(table *proxy.Table) error {
	for _, rule := range table.Rules() {
		for _, p := range reservedPaths {
			reserved := proxy.Rule{Prefix: p}
			if rule.Matches(p) || reserved.Matches(rule.Prefix) {
				return fmt.Errorf("%w: ルール %s (%s) はゲートウェイのパス %s と重なります", proxy.ErrInvalidRoute, rule.Name, rule.Prefix, p)
			}
		}
	}
	return nil
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOr(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s の値 %q が不正です: %w", key, v, err))
		return defaultValue
	}
	return d
}

func getIntOr(key string, defaultValue int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s の値 %q が不正です: %w", key, v, err))
		return defaultValue
	}
	return n
}
