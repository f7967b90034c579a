package handlers

import (
	"net/http"

	"Guardian/internal/auth"
	"Guardian/pkg/errors"
	"Guardian/pkg/middleware"
	"Guardian/pkg/response"
	"Guardian/pkg/websocket"

	"github.com/gin-gonic/gin"
)

type otpRequest struct {
	NationalID string `json:"nationalId" binding:"required"`
}

type otpVerifyRequest struct {
	NationalID string `json:"nationalId" binding:"required"`
	Code       string `json:"otp" binding:"required"`
}

type tokenResponse struct {
	Token    string        `json:"token"`
	Identity auth.Identity `json:"identity"`
}

func (h *Handlers) handleRequestOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.Validation("invalid request: %v", err))
		return
	}
	if err := h.login.RequestOTP(c.Request.Context(), req.NationalID); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "OTP sent to registered mobile"})
}

func (h *Handlers) handleVerifyOTP(c *gin.Context) {
	var req otpVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.Validation("invalid request: %v", err))
		return
	}
	token, id, err := h.login.VerifyOTP(c.Request.Context(), req.NationalID, req.Code)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, tokenResponse{Token: token, Identity: id})
}

// ValidateToken 供 BearerAuth 使用
func (h *Handlers) ValidateToken(token string) (middleware.Claims, error) {
	id, err := h.tokens.ValidateToken(token)
	if err != nil {
		return middleware.Claims{}, err
	}
	return middleware.Claims{UserID: id.ID, Name: id.Name, Role: id.Role}, nil
}

// AuthenticateSocket 从升级请求中解析令牌
func (h *Handlers) AuthenticateSocket(r *http.Request) (websocket.Principal, error) {
	token := middleware.ExtractToken(r)
	if token == "" {
		return websocket.Principal{}, errors.Unauthorized("missing token")
	}
	id, err := h.tokens.ValidateToken(token)
	if err != nil {
		return websocket.Principal{}, err
	}
	return websocket.Principal{ID: id.ID, Name: id.Name, Role: id.Role}, nil
}

func currentIdentity(c *gin.Context) auth.Identity {
	claims := middleware.CurrentClaims(c)
	return auth.Identity{ID: claims.UserID, Name: claims.Name, Role: claims.Role}
}
