package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/kiosk-devices/internal/config"
	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
	"github.com/wfunc/kiosk-devices/internal/repository"
	"github.com/wfunc/kiosk-devices/internal/utils"
	"go.uber.org/zap"
)

func TestAuthServiceIssueAndValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWTSecret = "test-secret"
	auth := NewServices(nil, cfg, zap.NewNop()).Auth
	require.True(t, auth.Enabled())

	resp, err := auth.IssueToken(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.Operator)
	assert.Equal(t, utils.RoleOperator, resp.Role)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	claims, err := auth.ValidateToken(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Operator)

	_, err = auth.ValidateToken(context.Background(), "garbage")
	assert.True(t, apperrors.Is(err, apperrors.ErrTokenInvalid))
}

func TestAuthServiceRejectsUnknownRole(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWTSecret = "test-secret"
	auth := NewServices(nil, cfg, nil).Auth

	_, err := auth.IssueToken(context.Background(), "alice", "root")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParam))

	_, err = auth.IssueToken(context.Background(), "", utils.RoleService)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParam))
}

func TestAuthServiceDisabledWithoutSecret(t *testing.T) {
	auth := NewServices(nil, DefaultConfig(), nil).Auth
	assert.False(t, auth.Enabled())

	_, err := auth.IssueToken(context.Background(), "alice", "")
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigMissing))
}

func TestAuthServiceExpiredToken(t *testing.T) {
	jwtManager := utils.NewJWTManager("test-secret", "", -time.Minute)
	auth := NewAuthService(jwtManager, true, zap.NewNop())

	resp, err := auth.IssueToken(context.Background(), "alice", "")
	require.NoError(t, err)
	_, err = auth.ValidateToken(context.Background(), resp.Token)
	assert.True(t, apperrors.Is(err, apperrors.ErrTokenExpired))
}

func TestConfigFrom(t *testing.T) {
	c := ConfigFrom(&config.Config{
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: "s", Issuer: "kiosk-7", ExpireHours: 2}},
		Ledger:   config.LedgerConfig{FrameLog: false, BatchSize: 10, FlushInterval: time.Second},
	})
	assert.Equal(t, "s", c.JWTSecret)
	assert.Equal(t, "kiosk-7", c.JWTIssuer)
	assert.Equal(t, 2*time.Hour, c.TokenExpiry)
	assert.False(t, c.FrameLog)
	assert.Equal(t, 10, c.BatchSize)
	assert.Equal(t, time.Second, c.FlushInterval)

	assert.Equal(t, DefaultConfig(), ConfigFrom(nil))
}

func TestNewServicesWithDB(t *testing.T) {
	db := repository.SetupTestDB(t)
	services := NewServices(db, DefaultConfig(), zap.NewNop())
	defer services.Close()

	assert.NotNil(t, services.Ledger)
	assert.NotNil(t, services.Frames)
	assert.False(t, services.Auth.Enabled())

	cfg := DefaultConfig()
	cfg.FrameLog = false
	assert.Nil(t, NewServices(db, cfg, zap.NewNop()).Frames)
}
