package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/gsfran/qmfg-tools/internal/pouching/service"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	authSvc *service.AuthService
}

func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// LoginReq 登录请求
type LoginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	user, pair, err := h.authSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		Unauthorized(c, err.Error())
		return
	}
	Success(c, gin.H{
		"user":   user,
		"tokens": pair,
	})
}

// RefreshReq 刷新Token请求
type RefreshReq struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	pair, err := h.authSvc.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		Unauthorized(c, err.Error())
		return
	}
	Success(c, pair)
}

// Logout POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req RefreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	if err := h.authSvc.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"logged_out": true})
}

// Me GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authSvc.GetCurrentUser(c.Request.Context(), GetUserID(c))
	if err != nil {
		NotFound(c, "用户不存在")
		return
	}
	Success(c, user)
}
