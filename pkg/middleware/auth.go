package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Verifier はアクセストークンを検証し、アイデンティティIDを返す。
type Verifier interface {
	VerifyAccess(token string) (string, error)
}

const (
	// contextKeyUserID はGinコンテキストにアイデンティティIDを格納するキー。
	contextKeyUserID = "user_id"
	// HeaderUserID は内部サービスにアイデンティティIDを伝播するHTTPヘッダーキー。
	HeaderUserID = "X-User-ID"
)

// userIDKey はcontext.Contextにアイデンティティを格納するキーの型。
type userIDKey struct{}

// BearerAuth はAuthorizationヘッダーのBearerトークンを検証するGinミドルウェアを返す。
// 検証に失敗した場合は401を返してリクエストを中断する。
func BearerAuth(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Authenticate(c, v) {
			return
		}
		c.Next()
	}
}

// Authenticate はリクエストのBearerトークンを検証する。
// 成功した場合はアイデンティティIDをGinコンテキストとリクエストのcontext.Contextの両方に設定してtrueを返す。
// 失敗した場合は401を書き込み、リクエストを中断してfalseを返す。
func Authenticate(c *gin.Context, v Verifier) bool {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		abortUnauthorized(c, "Authorizationヘッダーが必要です")
		return false
	}

	scheme, token, found := strings.Cut(authHeader, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		abortUnauthorized(c, "Bearer トークン形式が不正です")
		return false
	}

	userID, err := v.VerifyAccess(token)
	if err != nil {
		abortUnauthorized(c, "トークンが無効です")
		return false
	}

	c.Set(contextKeyUserID, userID)
	c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), userID))
	return true
}

// GetUserID はGinコンテキストからアイデンティティIDを取得する。
// BearerAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(contextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// WithUserID はcontext.ContextにアイデンティティIDを設定する。
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext はcontext.ContextからアイデンティティIDを取得する。
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

func abortUnauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", `Bearer realm="bookgate"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": message})
}

