package service

import (
	"context"
	"errors"

	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
	"github.com/wfunc/kiosk-devices/internal/utils"
	"go.uber.org/zap"
)

type authService struct {
	jwt     *utils.JWTManager
	enabled bool
	logger  *zap.Logger
}

// NewAuthService 创建鉴权服务
func NewAuthService(jwtManager *utils.JWTManager, enabled bool, log *zap.Logger) AuthService {
	return &authService{
		jwt:     jwtManager,
		enabled: enabled,
		logger:  log.Named("auth"),
	}
}

func (s *authService) Enabled() bool {
	return s.enabled
}

// IssueToken 签发操作员令牌
func (s *authService) IssueToken(ctx context.Context, operator, role string) (*TokenResponse, error) {
	if !s.enabled {
		return nil, apperrors.New(apperrors.ErrConfigMissing, "security.jwt.secret 未配置")
	}
	switch role {
	case "", utils.RoleOperator, utils.RoleService:
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "未知角色: %s", role)
	}

	token, expiresAt, err := s.jwt.GenerateToken(operator, role)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidParam)
	}
	if role == "" {
		role = utils.RoleOperator
	}

	s.logger.Info("签发操作员令牌",
		zap.String("operator", operator),
		zap.String("role", role),
		zap.Time("expires_at", expiresAt))
	return &TokenResponse{
		Token:     token,
		Operator:  operator,
		Role:      role,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateToken 校验令牌
func (s *authService) ValidateToken(ctx context.Context, token string) (*utils.JWTClaims, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return nil, apperrors.Wrap(err, apperrors.ErrTokenExpired)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrTokenInvalid)
	}
	return claims, nil
}
