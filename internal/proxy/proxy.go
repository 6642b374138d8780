package proxy

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nao1215/bookgate/pkg/middleware"
)

// badGatewayBody は上流に到達できなかった場合のレスポンスボディ。
const badGatewayBody = "Bad Gateway"

// Proxy はルーティングテーブルに従ってリクエストをバックエンドに転送する。
type Proxy struct {
	routes  []*Route
	logger  logrus.FieldLogger
	metrics *Metrics
	// errorLog はReverseProxyの内部ログをロガーに流すパイプ。Closeで閉じる。
	errorLog *io.PipeWriter
}

// Route はルールと、そのルール専用のリバースプロキシの組。
type Route struct {
	Rule
	handler *httputil.ReverseProxy
	logger  logrus.FieldLogger
	metrics *Metrics
}

// New はルーティングテーブルからプロキシを生成する。
// transport が nil の場合は http.DefaultTransport を使用する。metrics は nil でもよい。
func New(table *Table, transport http.RoundTripper, logger logrus.FieldLogger, metrics *Metrics) *Proxy {
	if transport == nil {
		transport = http.DefaultTransport
	}

	p := &Proxy{logger: logger, metrics: metrics}
	var errorLog *log.Logger
	if wl, ok := logger.(interface {
		WriterLevel(logrus.Level) *io.PipeWriter
	}); ok {
		p.errorLog = wl.WriterLevel(logrus.WarnLevel)
		errorLog = log.New(p.errorLog, "", 0)
	}

	for _, rule := range table.Rules() {
		rt := &Route{
			Rule:    rule,
			logger:  logger.WithField("route", rule.Name),
			metrics: metrics,
		}
		rt.handler = &httputil.ReverseProxy{
			Rewrite:        rt.rewrite,
			Transport:      transport,
			FlushInterval:  -1,
			ErrorLog:       errorLog,
			ErrorHandler:   rt.handleError,
			ModifyResponse: rt.modifyResponse,
		}
		p.routes = append(p.routes, rt)
	}
	return p
}

// Close はReverseProxyの内部ログ用パイプを閉じる。Close後に転送してはならない。
func (p *Proxy) Close() error {
	if p.errorLog == nil {
		return nil
	}
	return p.errorLog.Close()
}

// Match はパスに最初に一致したルートを返す。
func (p *Proxy) Match(path string) (*Route, bool) {
	for _, rt := range p.routes {
		if rt.Matches(path) {
			return rt, true
		}
	}
	p.metrics.observeUnmatched()
	return nil, false
}

// ServeHTTP は一致したルートに転送し、一致しない場合は404を返す。
// 認証ゲートを経由しないため、認証が必要なルートはゲートウェイ側で Match してから転送すること。
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !ValidPath(r.URL.Path) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"不正なパスです"}`)
		return
	}
	rt, ok := p.Match(r.URL.Path)
	if !ok {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"ルートが見つかりません"}`)
		return
	}
	rt.ServeHTTP(w, r)
}

// ServeHTTP はリクエストをバッファリングせずにバックエンドへ転送し、レスポンスを中継する。
// レスポンスヘッダー送信後に上流が失敗した場合は http.ErrAbortHandler でパニックし、接続を切断する。
func (rt *Route) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		rt.metrics.observeDuration(rt.Name, time.Since(start))
	}()
	rt.handler.ServeHTTP(w, r)
}

func (rt *Route) rewrite(pr *httputil.ProxyRequest) {
	out := pr.Out
	out.URL.Scheme = rt.Target.Scheme
	out.URL.Host = rt.Target.Host
	out.URL.Path, out.URL.RawPath = rt.rewriteURL(pr.In.URL)
	switch {
	case rt.Target.RawQuery == "":
	case out.URL.RawQuery == "":
		out.URL.RawQuery = rt.Target.RawQuery
	default:
		out.URL.RawQuery = rt.Target.RawQuery + "&" + out.URL.RawQuery
	}
	// Hostヘッダーは転送先に合わせる。
	out.Host = ""

	pr.SetXForwarded()

	out.Header.Del(middleware.HeaderUserID)
	if userID, ok := middleware.UserIDFromContext(pr.In.Context()); ok {
		out.Header.Set(middleware.HeaderUserID, userID)
	}

	rt.logger.WithFields(logrus.Fields{
		"method": pr.In.Method,
		"path":   pr.In.URL.Path,
		"target": out.URL.String(),
	}).Debug("リクエストを転送します")
}

func (rt *Route) modifyResponse(resp *http.Response) error {
	rt.metrics.observeResponse(rt.Name, resp.StatusCode)
	return nil
}

func (rt *Route) handleError(w http.ResponseWriter, r *http.Request, err error) {
	reason := failureReason(r, err)
	rt.metrics.observeFailure(rt.Name, reason)

	entry := rt.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"reason": reason,
	}).WithError(err)
	if reason == "canceled" {
		entry.Info("クライアントが転送中にリクエストを中断しました")
	} else {
		entry.Error("バックエンドへの転送に失敗しました")
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = io.WriteString(w, badGatewayBody)
}

func failureReason(r *http.Request, err error) string {
	if errors.Is(err, context.Canceled) || r.Context().Err() != nil {
		return "canceled"
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "timeout"
	}
	return "unavailable"
}
