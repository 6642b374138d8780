package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nao1215/bookgate/internal/credential"
	"github.com/nao1215/bookgate/internal/session"
)

// 結果ラベル。メトリクスとログで共通に使用する。
const (
	resultSuccess  = "success"
	resultInvalid  = "invalid"
	resultExpired  = "expired"
	resultBadLogin = "bad_login"
	resultConflict = "conflict"
	resultError    = "error"
)

// classify はエラーをHTTPステータス、クライアント向けメッセージ、結果ラベルに対応付ける。
func classify(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusOK, "", resultSuccess
	case errors.Is(err, session.ErrExpiredCredential):
		return http.StatusUnauthorized, "トークンの有効期限が切れています", resultExpired
	case errors.Is(err, session.ErrInvalidCredential):
		return http.StatusUnauthorized, "トークンが無効です", resultInvalid
	case errors.Is(err, credential.ErrBadLogin):
		return http.StatusUnauthorized, "ハンドルまたはパスワードが正しくありません", resultBadLogin
	case errors.Is(err, credential.ErrHandleTaken):
		return http.StatusConflict, "ハンドルは既に使用されています", resultConflict
	default:
		return http.StatusInternalServerError, "内部サーバーエラーが発生しました", resultError
	}
}

// respondError はエラーに対応するステータスで {"message": ...} を返す。
// 500の場合は詳細をログにのみ出力する。
func (s *Server) respondError(c *gin.Context, op string, err error) {
	status, message, result := classify(err)
	s.metrics.observe(op, result)

	entry := s.logger.WithFields(logrus.Fields{
		"operation": op,
		"result":    result,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("セッション操作に失敗しました")
	} else {
		entry.Info("セッション操作を拒否しました")
	}

	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Bearer realm="bookgate"`)
	}
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

// respondBadRequest はリクエスト形式の不備を400で返す。
func (s *Server) respondBadRequest(c *gin.Context, op string, err error) {
	s.metrics.observe(op, "bad_request")
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "リクエストが不正です: " + err.Error()})
}
