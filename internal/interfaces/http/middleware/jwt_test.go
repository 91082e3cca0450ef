package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/infrastructure/auth"
	"github.com/erp/fundflow/internal/infrastructure/config"
	"github.com/erp/fundflow/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService(expiration time.Duration) *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		Issuer:                "fundflow-test",
		AccessTokenExpiration: expiration,
	})
}

func newTestToken(t *testing.T, svc *auth.JWTService, roles ...string) (string, auth.GenerateTokenInput) {
	t.Helper()
	input := auth.GenerateTokenInput{
		TenantID:    uuid.New(),
		UserID:      uuid.New(),
		DisplayName: "Amani Kabila",
		Roles:       roles,
	}
	token, _, err := svc.GenerateAccessToken(input)
	require.NoError(t, err)
	return token, input
}

func serveWithToken(router *gin.Engine, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set(AuthHeaderKey, header)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	svc := newTestJWTService(15 * time.Minute)
	token, input := newTestToken(t, svc, "accountant", "unknown-role")

	router := gin.New()
	router.Use(JWTAuthMiddleware(svc))
	router.GET("/test", func(c *gin.Context) {
		tenantID, ok := GetTenantID(c)
		require.True(t, ok)
		assert.Equal(t, input.TenantID, tenantID)

		actor, ok := GetActor(c)
		require.True(t, ok)
		assert.Equal(t, input.UserID, actor.UserID)
		assert.Equal(t, "Amani Kabila", actor.DisplayName)
		assert.Equal(t, []fundrequest.Role{fundrequest.RoleAccountant}, actor.Roles)

		assert.Equal(t, input.TenantID.String(), GetJWTTenantID(c))
		assert.Equal(t, input.UserID.String(), GetJWTUserID(c))
		assert.NotNil(t, GetJWTClaims(c))
		c.Status(http.StatusOK)
	})

	w := serveWithToken(router, "/test", BearerPrefix+token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	svc := newTestJWTService(15 * time.Minute)
	expired := newTestJWTService(-time.Minute)
	expiredToken, _ := newTestToken(t, expired)
	other := auth.NewJWTService(config.JWTConfig{
		Secret:                "another-secret-key-at-least-32-chars",
		Issuer:                "fundflow-test",
		AccessTokenExpiration: time.Minute,
	})
	foreignToken, _ := newTestToken(t, other)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", dto.ErrCodeTokenInvalid},
		{"wrong scheme", "Basic dXNlcjpwYXNz", dto.ErrCodeTokenInvalid},
		{"empty token", BearerPrefix, dto.ErrCodeTokenInvalid},
		{"garbage token", BearerPrefix + "not-a-jwt", dto.ErrCodeTokenInvalid},
		{"expired token", BearerPrefix + expiredToken, dto.ErrCodeTokenExpired},
		{"foreign signature", BearerPrefix + foreignToken, dto.ErrCodeTokenInvalid},
	}

	router := gin.New()
	router.Use(JWTAuthMiddleware(svc))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveWithToken(router, "/test", tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	svc := newTestJWTService(time.Minute)
	cfg := DefaultJWTConfig(svc)
	cfg.SkipPathPrefixes = []string{"/public"}

	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(cfg))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/public/info", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/private", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serveWithToken(router, "/health", "").Code)
	assert.Equal(t, http.StatusOK, serveWithToken(router, "/public/info", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serveWithToken(router, "/private", "").Code)
}

func TestJWTAuthMiddleware_CustomOnError(t *testing.T) {
	cfg := DefaultJWTConfig(newTestJWTService(time.Minute))
	var captured error
	cfg.OnError = func(c *gin.Context, err error) {
		captured = err
		c.AbortWithStatus(http.StatusTeapot)
	}

	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(cfg))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serveWithToken(router, "/test", "")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.ErrorIs(t, captured, auth.ErrInvalidToken)
}

func TestPrincipalHelpers_NotAuthenticated(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetTenantID(c)
	assert.False(t, ok)
	_, ok = GetActor(c)
	assert.False(t, ok)
	assert.Nil(t, GetJWTClaims(c))
	assert.Empty(t, GetJWTUserID(c))
}
