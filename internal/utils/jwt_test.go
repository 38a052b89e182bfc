package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
)

// JWTTestSuite JWT工具测试套件
type JWTTestSuite struct {
	suite.Suite
	manager *JWTManager
}

func (suite *JWTTestSuite) SetupTest() {
	suite.manager = NewJWTManager("test-secret-key", "kiosk-test", time.Hour)
}

func (suite *JWTTestSuite) TestNewJWTManagerDefaults() {
	manager := NewJWTManager("secret", "", 12*time.Hour)
	suite.Equal("kiosk-devices", manager.issuer)
	suite.Equal(12*time.Hour, manager.GetTokenExpiry())
}

func (suite *JWTTestSuite) TestGenerateAndValidate() {
	token, expiresAt, err := suite.manager.GenerateToken("alice", "")
	suite.Require().NoError(err)
	suite.NotEmpty(token)
	suite.WithinDuration(time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := suite.manager.ValidateToken(token)
	suite.Require().NoError(err)
	suite.Equal("alice", claims.Operator)
	suite.Equal(RoleOperator, claims.Role)
	suite.Equal("alice", claims.Subject)
	suite.Equal("kiosk-test", claims.Issuer)
}

func (suite *JWTTestSuite) TestGenerateRequiresOperator() {
	_, _, err := suite.manager.GenerateToken("", RoleService)
	suite.Error(err)
}

func (suite *JWTTestSuite) TestValidateInvalidToken() {
	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := suite.manager.ValidateToken(token)
		suite.ErrorIs(err, ErrInvalidToken, token)
	}
}

func (suite *JWTTestSuite) TestValidateTamperedToken() {
	token, _, err := suite.manager.GenerateToken("bob", RoleService)
	suite.Require().NoError(err)

	parts := strings.Split(token, ".")
	suite.Require().Len(parts, 3)
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]
	_, err = suite.manager.ValidateToken(tampered)
	suite.ErrorIs(err, ErrInvalidToken)
}

func (suite *JWTTestSuite) TestValidateWrongSecret() {
	token, _, err := suite.manager.GenerateToken("bob", RoleOperator)
	suite.Require().NoError(err)

	other := NewJWTManager("another-secret", "kiosk-test", time.Hour)
	_, err = other.ValidateToken(token)
	suite.ErrorIs(err, ErrInvalidToken)
}

func (suite *JWTTestSuite) TestValidateWrongIssuer() {
	token, _, err := suite.manager.GenerateToken("bob", RoleOperator)
	suite.Require().NoError(err)

	other := NewJWTManager("test-secret-key", "someone-else", time.Hour)
	_, err = other.ValidateToken(token)
	suite.ErrorIs(err, ErrInvalidToken)
}

func (suite *JWTTestSuite) TestExpiredToken() {
	issued := time.Now().Add(-2 * time.Hour)
	suite.manager.now = func() time.Time { return issued }
	token, _, err := suite.manager.GenerateToken("carol", RoleOperator)
	suite.Require().NoError(err)

	suite.manager.now = time.Now
	_, err = suite.manager.ValidateToken(token)
	suite.ErrorIs(err, ErrExpiredToken)
}

func (suite *JWTTestSuite) TestRejectsOtherSigningMethod() {
	claims := &JWTClaims{
		Operator: "mallory",
		Role:     RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "kiosk-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	suite.Require().NoError(err)

	_, err = suite.manager.ValidateToken(token)
	suite.ErrorIs(err, ErrInvalidToken)
}

func TestJWTSuite(t *testing.T) {
	suite.Run(t, new(JWTTestSuite))
}
