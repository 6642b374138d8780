package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nao1215/bookgate/internal/credential"
	"github.com/nao1215/bookgate/internal/session"
	"github.com/nao1215/bookgate/pkg/middleware"
)

// セッション操作名。
const (
	opLogin    = "login"
	opRegister = "register"
	opRefresh  = "refresh"
	opRevoke   = "revoke"
	opMe       = "me"
)

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Handle   string `json:"handle" binding:"required,email"`
	Password string `json:"password" binding:"required,max=72"`
}

// registerRequest はアイデンティティ登録リクエストのボディ。
type registerRequest struct {
	Handle      string `json:"handle" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6,max=72"`
	DisplayName string `json:"displayName" binding:"max=100"`
}

// refreshRequest は更新トークンによる再発行リクエストのボディ。
type refreshRequest struct {
	RenewalCredential string `json:"renewalCredential" binding:"required"`
}

// identityResponse はクライアントに返すアイデンティティ。秘密情報は含めない。
type identityResponse struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
}

// credentialResponse は発行したトークンの組。
type credentialResponse struct {
	AccessCredential  string            `json:"accessCredential"`
	RenewalCredential string            `json:"renewalCredential"`
	TokenType         string            `json:"tokenType"`
	ExpiresIn         int64             `json:"expiresIn"`
	RenewalExpiresAt  time.Time         `json:"renewalExpiresAt"`
	Identity          *identityResponse `json:"identity,omitempty"`
}

func (s *Server) newCredentialResponse(pair session.Pair, identity *credential.Identity) credentialResponse {
	resp := credentialResponse{
		AccessCredential:  pair.AccessCredential,
		RenewalCredential: pair.RenewalCredential,
		TokenType:         "Bearer",
		ExpiresIn:         int64(s.manager.AccessTTL() / time.Second),
		RenewalExpiresAt:  pair.RenewalExpiresAt.UTC(),
	}
	if identity != nil {
		resp.Identity = toIdentityResponse(*identity)
	}
	return resp
}

func toIdentityResponse(identity credential.Identity) *identityResponse {
	return &identityResponse{
		ID:          identity.ID,
		Handle:      identity.Handle,
		DisplayName: identity.DisplayName,
	}
}

// handleLogin はハンドルとパスワードを検証してトークンを発行するハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondBadRequest(c, opLogin, err)
			return
		}

		ctx := c.Request.Context()
		identity, err := credential.VerifyLogin(ctx, s.identities, req.Handle, req.Password)
		if err != nil {
			s.respondError(c, opLogin, err)
			return
		}

		pair, err := s.manager.Issue(ctx, identity.ID)
		if err != nil {
			s.respondError(c, opLogin, err)
			return
		}

		s.metrics.observe(opLogin, resultSuccess)
		c.JSON(http.StatusOK, s.newCredentialResponse(pair, &identity))
	}
}

// handleRegister はアイデンティティを登録してトークンを発行するハンドラを返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondBadRequest(c, opRegister, err)
			return
		}

		hash, err := credential.HashPassword(req.Password)
		if err != nil {
			s.respondError(c, opRegister, err)
			return
		}

		identity := credential.Identity{
			ID:           uuid.New().String(),
			Handle:       credential.NormalizeHandle(req.Handle),
			PasswordHash: hash,
			DisplayName:  req.DisplayName,
		}
		ctx := c.Request.Context()
		if err := s.identities.CreateIdentity(ctx, identity); err != nil {
			s.respondError(c, opRegister, err)
			return
		}

		pair, err := s.manager.Issue(ctx, identity.ID)
		if err != nil {
			s.respondError(c, opRegister, err)
			return
		}

		s.metrics.observe(opRegister, resultSuccess)
		c.JSON(http.StatusCreated, s.newCredentialResponse(pair, &identity))
	}
}

// handleRefresh は更新トークンを1回限りで消費し、新しいトークンの組を発行するハンドラを返す。
func (s *Server) handleRefresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondBadRequest(c, opRefresh, err)
			return
		}

		pair, err := s.manager.Rotate(c.Request.Context(), req.RenewalCredential)
		if err != nil {
			s.respondError(c, opRefresh, err)
			return
		}

		s.metrics.observe(opRefresh, resultSuccess)
		c.JSON(http.StatusOK, s.newCredentialResponse(pair, nil))
	}
}

// handleRevoke は認証済みアイデンティティの更新トークンを失効させるハンドラを返す。
func (s *Server) handleRevoke() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.manager.Revoke(c.Request.Context(), middleware.GetUserID(c)); err != nil {
			s.respondError(c, opRevoke, err)
			return
		}

		s.metrics.observe(opRevoke, resultSuccess)
		c.JSON(http.StatusOK, gin.H{"message": "セッションを終了しました"})
	}
}

// handleMe は認証済みアイデンティティの情報を返すハンドラを返す。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := s.identities.IdentityByID(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			if errors.Is(err, credential.ErrNotFound) {
				s.metrics.observe(opMe, "not_found")
				c.JSON(http.StatusNotFound, gin.H{"message": "アイデンティティが見つかりません"})
				return
			}
			s.respondError(c, opMe, err)
			return
		}

		s.metrics.observe(opMe, resultSuccess)
		c.JSON(http.StatusOK, toIdentityResponse(identity))
	}
}
