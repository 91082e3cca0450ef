package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/fundflow/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type validationInput struct {
	Beneficiary string          `json:"beneficiary" binding:"required,max=10"`
	Amount      decimal.Decimal `json:"amount" binding:"required,gt=0"`
	Currency    string          `json:"currency" binding:"required,oneof=USD CDF"`
}

func newValidationRouter() *gin.Engine {
	SetupValidator()

	router := gin.New()
	router.POST("/test", func(c *gin.Context) {
		var req validationInput
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(req.Amount))
	})
	return router
}

func postJSON(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupValidator_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		SetupValidator()
		SetupValidator()
	})
}

func TestHandleValidationError(t *testing.T) {
	router := newValidationRouter()

	t.Run("reports each invalid field by json name", func(t *testing.T) {
		w := postJSON(router, `{"beneficiary": "", "amount": "-5", "currency": "EUR"}`)

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)

		messages := map[string]string{}
		for _, d := range resp.Error.Details {
			messages[d.Field] = d.Message
		}
		assert.Equal(t, "This field is required", messages["beneficiary"])
		assert.Equal(t, "Must be greater than 0", messages["amount"])
		assert.Equal(t, "Must be one of: USD CDF", messages["currency"])
	})

	t.Run("string length message", func(t *testing.T) {
		w := postJSON(router, `{"beneficiary": "far too long a name", "amount": "1", "currency": "USD"}`)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Must be at most 10 characters")
	})

	t.Run("malformed json is a bad request without details", func(t *testing.T) {
		w := postJSON(router, `{"beneficiary": `)

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
		assert.Empty(t, resp.Error.Details)
	})

	t.Run("valid input passes", func(t *testing.T) {
		w := postJSON(router, `{"beneficiary": "ACME", "amount": "12.50", "currency": "CDF"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"12.5"`)
	})
}
