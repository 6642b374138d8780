package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	t.Run("ゲートウェイが返すレスポンスにセキュリティヘッダーが付与されること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(SecurityHeaders())
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		for _, sh := range securityHeaders {
			if got := w.Header().Get(sh.name); got != sh.value {
				t.Errorf("%s = %q, want %q", sh.name, got, sh.value)
			}
		}
	})

	t.Run("ステータスを指定せずに書き込んだ場合も付与されること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(SecurityHeaders())
		router.GET("/raw", func(c *gin.Context) {
			_, _ = c.Writer.WriteString("raw")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/raw", nil))

		if got := w.Header().Get("X-Frame-Options"); got != "SAMEORIGIN" {
			t.Errorf("X-Frame-Options = %q, want %q", got, "SAMEORIGIN")
		}
	})

	t.Run("ハンドラが設定したヘッダーは上書きしないこと", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(SecurityHeaders())
		router.GET("/frame", func(c *gin.Context) {
			c.Header("X-Frame-Options", "DENY")
			c.Status(http.StatusNoContent)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/frame", nil))

		if got := w.Header().Values("X-Frame-Options"); len(got) != 1 || got[0] != "DENY" {
			t.Errorf("X-Frame-Options = %v, want [DENY]", got)
		}
	})

	t.Run("転送したレスポンスではバックエンドの値を優先し重複させないこと", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Referrer-Policy", "strict-origin")
			w.Header().Set("X-Powered-By", "Express")
			_, _ = io.WriteString(w, "proxied")
		}))
		t.Cleanup(backend.Close)
		target, err := url.Parse(backend.URL)
		if err != nil {
			t.Fatalf("url.Parse() error = %v", err)
		}
		rp := &httputil.ReverseProxy{
			Rewrite:       func(pr *httputil.ProxyRequest) { pr.SetURL(target) },
			FlushInterval: -1,
		}

		router := gin.New()
		router.Use(SecurityHeaders())
		router.NoRoute(gin.WrapH(rp))
		gateway := httptest.NewServer(router)
		t.Cleanup(gateway.Close)

		resp, err := http.Get(gateway.URL + "/books")
		if err != nil {
			t.Fatalf("http.Get() error = %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if string(body) != "proxied" {
			t.Errorf("body = %q, want %q", body, "proxied")
		}
		if got := resp.Header.Values("Referrer-Policy"); len(got) != 1 || got[0] != "strict-origin" {
			t.Errorf("Referrer-Policy = %v, want [strict-origin]", got)
		}
		if got := resp.Header.Values("X-Content-Type-Options"); len(got) != 1 || got[0] != "nosniff" {
			t.Errorf("X-Content-Type-Options = %v, want [nosniff]", got)
		}
		if got := resp.Header.Get("X-Powered-By"); got != "" {
			t.Errorf("X-Powered-By = %q, want empty string", got)
		}
	})
}
