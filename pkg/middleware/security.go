package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// securityHeaders はレスポンスに付与するセキュリティ関連ヘッダー。
var securityHeaders = [...]struct{ name, value string }{
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Origin-Agent-Cluster", "?1"},
	{"Referrer-Policy", "no-referrer"},
	{"Strict-Transport-Security", "max-age=15552000; includeSubDomains"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-DNS-Prefetch-Control", "off"},
	{"X-Download-Options", "noopen"},
	{"X-Frame-Options", "SAMEORIGIN"},
	{"X-Permitted-Cross-Domain-Policies", "none"},
	{"X-XSS-Protection", "0"},
}

// SecurityHeaders はセキュリティ関連のレスポンスヘッダーを付与するGinミドルウェアを返す。
// ヘッダーはレスポンスの送信直前に付与し、ハンドラやバックエンドが同名のヘッダーを
// 設定済みの場合はその値を優先する。
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &securityWriter{ResponseWriter: c.Writer}
		c.Next()
	}
}

// securityWriter はヘッダー送信前にセキュリティヘッダーを補う。
type securityWriter struct {
	gin.ResponseWriter
	applied bool
}

func (w *securityWriter) apply() {
	if w.applied {
		return
	}
	w.applied = true
	h := w.Header()
	for _, sh := range securityHeaders {
		if h.Get(sh.name) == "" {
			h.Set(sh.name, sh.value)
		}
	}
	h.Del("X-Powered-By")
}

func (w *securityWriter) WriteHeader(code int) {
	w.apply()
	w.ResponseWriter.WriteHeader(code)
}

func (w *securityWriter) WriteHeaderNow() {
	w.apply()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *securityWriter) Write(b []byte) (int, error) {
	w.apply()
	return w.ResponseWriter.Write(b)
}

func (w *securityWriter) WriteString(s string) (int, error) {
	w.apply()
	return w.ResponseWriter.WriteString(s)
}

func (w *securityWriter) Flush() {
	w.apply()
	w.ResponseWriter.Flush()
}

// Unwrap は http.ResponseController が元のライターに到達できるようにする。
func (w *securityWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
