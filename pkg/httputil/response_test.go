package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/intelliguard/intelliguard/pkg/errors"
	"github.com/intelliguard/intelliguard/pkg/logger"
	"github.com/intelliguard/intelliguard/pkg/validator"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *ErrorResponse {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestWriteData(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusCreated, map[string]string{"id": "1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"1"}}`, rec.Body.String())
}

func TestWriteError_AppErrorWithDetails(t *testing.T) {
	appErr := apperrors.New("ACCOUNT_LOCKED", "account is temporarily locked", http.StatusLocked, apperrors.ErrLocked).
		WithDetail("locked_until", "2025-01-01T12:15:00Z")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "corr-1"))
	WriteError(rec, req, fmt.Errorf("login: %w", appErr), logger.Discard())

	assert.Equal(t, http.StatusLocked, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "ACCOUNT_LOCKED", body.Code)
	assert.Equal(t, "2025-01-01T12:15:00Z", body.Details["locked_until"])
	assert.Equal(t, "corr-1", body.RequestID)
}

func TestWriteError_InternalHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteError(rec, req, errors.New("pq: relation users does not exist"), logger.Discard())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.NotContains(t, rec.Body.String(), "relation users")
}

func TestWriteError_Sentinels(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperrors.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{apperrors.ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS"},
		{fmt.Errorf("wrap: %w", apperrors.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT"},
		{apperrors.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, logger.Discard())
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestWriteValidationError(t *testing.T) {
	type req struct {
		Email string `json:"email" validate:"required,email"`
	}
	err := validator.Validate(req{})

	rec := httptest.NewRecorder()
	WriteValidationError(rec, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.Equal(t, "is required", body.Fields["email"])

	rec = httptest.NewRecorder()
	WriteValidationError(rec, errors.New("decode request body: unexpected EOF"))
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Code)
}

func TestParseUUID(t *testing.T) {
	rec := httptest.NewRecorder()
	_, ok := ParseUUID(rec, "not-a-uuid")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id, ok := ParseUUID(httptest.NewRecorder(), "6f1c1f7e-3a3b-4c55-9d0f-1f2e3d4c5b6a")
	assert.True(t, ok)
	assert.Equal(t, "6f1c1f7e-3a3b-4c55-9d0f-1f2e3d4c5b6a", id.String())
}
