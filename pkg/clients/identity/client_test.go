package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/consignments/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.IdentityConfig{BaseURL: srv.URL + "/", APIKey: "test-key"})
}

func TestAPIClient_SignIn(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/accounts:signInWithPassword", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var body credentialsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ops@example.com", body.Email)
		assert.Equal(t, "hunter22", body.Password)
		assert.True(t, body.ReturnSecureToken)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"localId":"uid-1","email":"ops@example.com","idToken":"tok","refreshToken":"ref","expiresIn":"3600"}`))
	})

	identity, err := client.SignIn(context.Background(), "ops@example.com", "hunter22")

	require.NoError(t, err)
	assert.Equal(t, "uid-1", identity.UID)
	assert.Equal(t, "ops@example.com", identity.Email)
	assert.Equal(t, "tok", identity.IDToken)
}

func TestAPIClient_SignUpUsesSignUpEndpoint(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts:signUp", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"localId":"uid-2","email":"new@example.com"}`))
	})

	identity, err := client.SignUp(context.Background(), "new@example.com", "secret1")

	require.NoError(t, err)
	assert.Equal(t, "uid-2", identity.UID)
}

func TestAPIClient_ProviderErrors(t *testing.T) {
	cases := []struct {
		raw     string
		code    string
		message string
	}{
		{raw: "INVALID_LOGIN_CREDENTIALS", code: "INVALID_LOGIN_CREDENTIALS", message: "The email or password is incorrect."},
		{raw: "WEAK_PASSWORD : Password should be at least 6 characters", code: "WEAK_PASSWORD", message: "Password should be at least 6 characters."},
		{raw: "SOMETHING_NEW", code: "SOMETHING_NEW", message: "Authentication failed. Please try again."},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"code": 400, "message": tc.raw},
				})
			})

			_, err := client.SignIn(context.Background(), "a@b.c", "x")

			var authErr *Error
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, tc.code, authErr.Code)
			assert.Equal(t, tc.message, authErr.Message)
			assert.Equal(t, http.StatusBadRequest, authErr.Status)
		})
	}
}

func TestAPIClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(config.IdentityConfig{BaseURL: srv.URL, APIKey: "k"})

	_, err := client.SignIn(context.Background(), "a@b.c", "x")

	assert.ErrorIs(t, err, ErrTransport)
}
