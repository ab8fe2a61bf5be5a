package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aromatch/aromatch-api/internal/config"
	"github.com/aromatch/aromatch-api/internal/service/auth"
)

// fakeJWTService issues a fixed token.
type fakeJWTService struct {
	token       string
	generateErr error
	validateErr error
}

func (f *fakeJWTService) GenerateToken(ctx context.Context) (string, error) {
	return f.token, f.generateErr
}

func (f *fakeJWTService) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	return &auth.Claims{Subject: "admin"}, nil
}

// fakeVerifier accepts exactly one password.
type fakeVerifier struct {
	accepted string
}

func (f *fakeVerifier) Compare(hashedPassword, password string) error {
	if password == f.accepted {
		return nil
	}
	return errors.New("password mismatch")
}

func newTestAuthHandler(jwt auth.JWTService) *AuthHandler {
	cfg := config.AuthConfig{
		JWTSecret:            "0123456789abcdef0123456789abcdef",
		AdminPasswordHash:    "$2a$10$fakehashfortests",
		TokenLifetimeMinutes: 30,
	}
	return NewAuthHandler(jwt, &fakeVerifier{accepted: "s3cret"}, cfg, testLogger())
}

func postToken(t *testing.T, handler *AuthHandler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/admin/token", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.Token(rec, req)
	return rec
}

func TestTokenEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("issues token for correct password", func(t *testing.T) {
		t.Parallel()

		handler := newTestAuthHandler(&fakeJWTService{token: "signed-token"})
		rec := postToken(t, handler, TokenRequest{Password: "s3cret"})

		require.Equal(t, http.StatusOK, rec.Code)
		var resp TokenResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "signed-token", resp.Token)
		assert.WithinDuration(t, time.Now().Add(30*time.Minute), resp.ExpiresAt, 5*time.Second)
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		t.Parallel()

		handler := newTestAuthHandler(&fakeJWTService{token: "signed-token"})
		rec := postToken(t, handler, TokenRequest{Password: "guess"})

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Invalid credentials", resp.Error)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		t.Parallel()

		handler := newTestAuthHandler(&fakeJWTService{token: "signed-token"})
		rec := postToken(t, handler, TokenRequest{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		t.Parallel()

		handler := newTestAuthHandler(&fakeJWTService{token: "signed-token"})

		req := httptest.NewRequest(http.MethodPost, "/admin/token", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		handler.Token(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("signing failure maps to 500", func(t *testing.T) {
		t.Parallel()

		handler := newTestAuthHandler(&fakeJWTService{generateErr: errors.New("bad key")})
		rec := postToken(t, handler, TokenRequest{Password: "s3cret"})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
