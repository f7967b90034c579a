package middleware

import (
	"net/http"
	"strings"

	"Guardian/pkg/errors"
	"Guardian/pkg/response"

	"github.com/gin-gonic/gin"
)

// 上下文中的身份键
const (
	ContextUserID   = "user_id"
	ContextUserName = "user_name"
	ContextUserRole = "user_role"
)

// Claims 令牌解析出的身份
type Claims struct {
	UserID string
	Name   string
	Role   string
}

// TokenValidator 校验令牌并返回身份
type TokenValidator func(token string) (Claims, error)

// ExtractToken 依次从 Authorization 头、token 查询参数读取令牌
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return strings.TrimSpace(h)
	}
	return r.URL.Query().Get("token")
}

// BearerAuth 要求请求携带有效令牌，身份写入上下文
func BearerAuth(validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c.Request)
		if token == "" {
			response.Fail(c, errors.Unauthorized("missing token"))
			return
		}
		claims, err := validate(token)
		if err != nil {
			if errors.GetCode(err) == errors.CodeUnknown {
				err = errors.WrapCode(err, errors.CodeUnauthorized, "invalid token")
			}
			response.Fail(c, err)
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserName, claims.Name)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

// RequireRole 仅允许指定角色访问，须在 BearerAuth 之后使用
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextUserRole)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		response.AbortWithStatus(c, http.StatusForbidden, "insufficient role")
	}
}

// CurrentUserID 当前请求的身份ID，未认证时为空
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// CurrentClaims 当前请求的身份
func CurrentClaims(c *gin.Context) Claims {
	return Claims{
		UserID: c.GetString(ContextUserID),
		Name:   c.GetString(ContextUserName),
		Role:   c.GetString(ContextUserRole),
	}
}
