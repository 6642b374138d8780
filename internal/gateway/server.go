package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/nao1215/bookgate/internal/credential"
	gatewaydb "github.com/nao1215/bookgate/internal/gateway/db"
	"github.com/nao1215/bookgate/internal/proxy"
	"github.com/nao1215/bookgate/internal/session"
	"github.com/nao1215/bookgate/pkg/httpclient"
	"github.com/nao1215/bookgate/pkg/middleware"
)

// Server はAPI Gatewayサービスの HTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// logger は構造化ロガー。
	logger logrus.FieldLogger
	// identities はログイン用アイデンティティのリポジトリ。
	identities credential.IdentityRepository
	// manager はトークンのライフサイクルを管理する。
	manager *session.Manager
	// proxy はルーティングテーブルに従う転送処理。
	proxy *proxy.Proxy
	// registry は /metrics で公開するPrometheusレジストリ。
	registry *prometheus.Registry
	// metrics はセッション操作のメトリクス。
	metrics *Metrics
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout time.Duration
	// closers はClose時に解放するリソース。
	closers []io.Closer
}

// dependencies はServerの構築に必要な部品。
type dependencies struct {
	port            string
	logger          logrus.FieldLogger
	identities      credential.IdentityRepository
	manager         *session.Manager
	table           *proxy.Table
	transport       http.RoundTripper
	registry        *prometheus.Registry
	allowedOrigins  []string
	shutdownTimeout time.Duration
}

// NewServer は設定に従ってデータベースとセッションストアを初期化し、Gatewayサーバーを生成する。
func NewServer(ctx context.Context, cfg Config, logger logrus.FieldLogger) (*Server, error) {
	table, err := cfg.RouteTable()
	if err != nil {
		return nil, fmt.Errorf("ルーティング設定の読み込みに失敗: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// SQLiteの書き込みは単一接続に直列化する。
	sqlDB.SetMaxOpenConns(1)
	closers := []io.Closer{sqlDB}
	fail := func(err error) (*Server, error) {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}

	if err := gatewaydb.Migrate(ctx, sqlDB, logger); err != nil {
		return fail(fmt.Errorf("マイグレーションに失敗: %w", err))
	}

	store := credential.NewSQLiteStore(sqlDB)
	var sessions credential.SessionRepository = store
	if cfg.SessionStore == sessionStoreRedis {
		rs, err := credential.NewRedisSessions(ctx, cfg.RedisAddr, cfg.RedisPassword, "bookgate:")
		if err != nil {
			return fail(err)
		}
		closers = append(closers, rs)
		sessions = rs
	}

	manager, err := session.NewManager([]byte(cfg.JWTSecret), sessions,
		session.WithAccessTTL(cfg.AccessTTL),
		session.WithRenewalTTL(cfg.RenewalTTL),
	)
	if err != nil {
		return fail(err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := newServer(dependencies{
		port:            cfg.Port,
		logger:          logger,
		identities:      store,
		manager:         manager,
		table:           table,
		transport:       httpclient.NewTransport(cfg.Upstream),
		registry:        registry,
		allowedOrigins:  cfg.AllowedOrigins,
		shutdownTimeout: cfg.ShutdownTimeout,
	})
	s.closers = append(closers, s.closers...)

	logger.WithFields(logrus.Fields{
		"session_store": cfg.SessionStore,
		"routes":        len(table.Rules()),
	}).Info("Gatewayサーバーを初期化しました")
	return s, nil
}

func newServer(deps dependencies) *Server {
	if deps.shutdownTimeout <= 0 {
		deps.shutdownTimeout = 10 * time.Second
	}

	s := &Server{
		router:          gin.New(),
		port:            deps.port,
		logger:          deps.logger,
		identities:      deps.identities,
		manager:         deps.manager,
		proxy:           proxy.New(deps.table, deps.transport, deps.logger, proxy.NewMetrics(deps.registry)),
		registry:        deps.registry,
		metrics:         NewMetrics(deps.registry),
		shutdownTimeout: deps.shutdownTimeout,
	}
	s.closers = []io.Closer{s.proxy}
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.RequestLogger(s.logger))
	s.router.Use(middleware.CORS(deps.allowedOrigins))
	s.setupRoutes()
	return s
}

// Handler はサーバーのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctx がキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.WithField("addr", srv.Addr).Info("Gatewayサーバーを起動します")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()

		s.logger.Info("Gatewayサーバーを停止します")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Close はプロキシ、セッションストア、データベースの順に解放する。
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// セッション（トークン発行・更新・失効）
	sess := s.router.Group("/session")
	{
		sess.POST("", s.handleLogin())
		sess.POST("/refresh", s.handleRefresh())
		sess.POST("/register", s.handleRegister())

		authed := sess.Group("", middleware.BearerAuth(s.manager))
		authed.POST("/revoke", s.handleRevoke())
		authed.GET("/me", s.handleMe())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	// 上記以外はルーティングテーブルに従って転送する
	s.router.NoRoute(s.handleProxy())
}

// handleProxy はルーティングテーブルに一致したバックエンドへ転送するハンドラを返す。
// 認証が必要なルートではBearerトークンを検証してから転送する。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !proxy.ValidPath(c.Request.URL.Path) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "不正なパスです"})
			return
		}
		route, ok := s.proxy.Match(c.Request.URL.Path)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "ルートが見つかりません"})
			return
		}
		if route.RequireAuth && !middleware.Authenticate(c, s.manager) {
			return
		}
		route.ServeHTTP(c.Writer, c.Request)
	}
}
