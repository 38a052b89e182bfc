package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/kiosk-devices/internal/service"
)

// 上下文键
const (
	ContextOperator = "operator"
	ContextRole     = "role"
	ContextToken    = "token"
)

// AuthMiddleware JWT认证中间件
type AuthMiddleware struct {
	authService service.AuthService
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(authService service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// RequireAuth 需要认证的中间件；未配置密钥时直接放行
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return m.require(nil)
}

// RequireRole 需要特定角色的中间件；未配置密钥时直接放行
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return m.require(roles)
}

func (m *AuthMiddleware) require(roles []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.authService.Enabled() {
			c.Next()
			return
		}

		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "NO_TOKEN",
				"message": "缺少认证令牌",
			})
			return
		}

		claims, err := m.authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "INVALID_TOKEN",
				"message": "无效的令牌",
				"details": err.Error(),
			})
			return
		}

		if len(roles) > 0 && !containsRole(roles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "INSUFFICIENT_PERMISSION",
				"message": "权限不足",
			})
			return
		}

		c.Set(ContextOperator, claims.Operator)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextToken, token)
		c.Next()
	}
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// extractToken 从请求中提取令牌
func extractToken(c *gin.Context) string {
	// 1. Authorization: Bearer
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		parts := strings.SplitN(bearer, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// 2. X-Access-Token
	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	// 3. Query参数，浏览器 WebSocket 无法设置请求头
	return c.Query("token")
}

// GetOperator 从上下文获取操作员
func GetOperator(c *gin.Context) (string, bool) {
	if v, exists := c.Get(ContextOperator); exists {
		if name, ok := v.(string); ok {
			return name, true
		}
	}
	return "", false
}

// GetRole 从上下文获取角色
func GetRole(c *gin.Context) (string, bool) {
	if v, exists := c.Get(ContextRole); exists {
		if r, ok := v.(string); ok {
			return r, true
		}
	}
	return "", false
}
