package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/consignments/internal/config"
	"github.com/mamadbah2/consignments/internal/domain/models"
)

// Client exposes the identity provider operations used by the session manager.
type Client interface {
	SignUp(ctx context.Context, email, password string) (models.Identity, error)
	SignIn(ctx context.Context, email, password string) (models.Identity, error)
}

// Error is an authentication failure. Message is safe to show to users.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("identity provider: %s (%s)", e.Message, e.Code)
}

// ErrTransport is wrapped into every failure to reach the provider.
var ErrTransport = errors.New("identity provider unreachable")

// APIClient is a resty-backed implementation of Client for the managed
// email/password identity REST API.
type APIClient struct {
	httpClient *resty.Client
	apiKey     string
}

// NewClient builds an identity API client using the provided configuration values.
func NewClient(cfg config.IdentityConfig) *APIClient {
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	restyClient := resty.New()
	restyClient.
		SetBaseURL(base).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)

	return &APIClient{
		httpClient: restyClient,
		apiKey:     cfg.APIKey,
	}
}

type credentialsRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type authResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

// apiError represents the provider error payload.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignUp registers a new email/password account and signs it in.
func (c *APIClient) SignUp(ctx context.Context, email, password string) (models.Identity, error) {
	return c.authenticate(ctx, "v1/accounts:signUp", email, password)
}

// SignIn verifies email/password credentials.
func (c *APIClient) SignIn(ctx context.Context, email, password string) (models.Identity, error) {
	return c.authenticate(ctx, "v1/accounts:signInWithPassword", email, password)
}

func (c *APIClient) authenticate(ctx context.Context, path, email, password string) (models.Identity, error) {
	result := new(authResponse)
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(credentialsRequest{Email: email, Password: password, ReturnSecureToken: true}).
		SetResult(result).
		SetError(apiErr).
		Post(path)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return models.Identity{}, newError(resp.StatusCode(), apiErr.Error.Message)
	}

	if result.LocalID == "" {
		return models.Identity{}, &Error{Code: "EMPTY_RESPONSE", Message: "Authentication failed. Please try again.", Status: resp.StatusCode()}
	}

	return models.Identity{
		UID:          result.LocalID,
		Email:        result.Email,
		IDToken:      result.IDToken,
		RefreshToken: result.RefreshToken,
	}, nil
}

var friendlyMessages = map[string]string{
	"EMAIL_NOT_FOUND":             "No account exists for this email.",
	"INVALID_PASSWORD":            "The password is incorrect.",
	"INVALID_LOGIN_CREDENTIALS":   "The email or password is incorrect.",
	"USER_DISABLED":               "This account has been disabled.",
	"EMAIL_EXISTS":                "An account already exists for this email.",
	"INVALID_EMAIL":               "The email address is badly formatted.",
	"MISSING_PASSWORD":            "A password is required.",
	"WEAK_PASSWORD":               "Password should be at least 6 characters.",
	"TOO_MANY_ATTEMPTS_TRY_LATER": "Too many attempts. Try again later.",
}

func newError(status int, raw string) *Error {
	// Messages look like "WEAK_PASSWORD : Password should be at least 6 characters".
	code := raw
	if idx := strings.Index(raw, " "); idx > 0 {
		code = raw[:idx]
	}
	if code == "" {
		code = http.StatusText(status)
	}

	message, ok := friendlyMessages[code]
	if !ok {
		message = "Authentication failed. Please try again."
	}
	return &Error{Code: code, Message: message, Status: status}
}
