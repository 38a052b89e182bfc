package service

import (
	"context"
	"time"

	"github.com/wfunc/kiosk-devices/internal/utils"
)

// AuthService 操作员鉴权服务接口
type AuthService interface {
	// Enabled 未配置密钥时返回 false，此时控制面不做鉴权
	Enabled() bool
	IssueToken(ctx context.Context, operator, role string) (*TokenResponse, error)
	ValidateToken(ctx context.Context, token string) (*utils.JWTClaims, error)
}

// TokenResponse 签发结果
type TokenResponse struct {
	Token     string    `json:"token"`
	Operator  string    `json:"operator"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}
