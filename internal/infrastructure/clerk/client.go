// Package clerk is the REST client for the hosted identity provider.
package clerk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/logger"
	appCtx "github.com/baechuer/medimg-identity/internal/pkg/context"
)

type Config struct {
	BaseURL   string // e.g. https://api.clerk.com/v1
	SecretKey string
	Timeout   time.Duration
}

// Client talks to the provider backend API. Every call carries the secret
// key and the caller's request id.
type Client struct {
	baseURL   string
	secretKey string
	timeout   time.Duration
	http      *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		timeout:   cfg.Timeout,
		// No global timeout - we set per-request timeouts
		http: &http.Client{Timeout: 0},
	}
}

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("identity provider error [%d] %s: %s", e.StatusCode, e.Code, e.Message)
}

type apiErrors struct {
	Errors []struct {
		Code        string `json:"code"`
		Message     string `json:"message"`
		LongMessage string `json:"long_message"`
	} `json:"errors"`
}

func decodeError(resp *http.Response) *StatusError {
	se := &StatusError{
		StatusCode: resp.StatusCode,
		Code:       "provider_error",
		Message:    fmt.Sprintf("unexpected status: %d", resp.StatusCode),
	}
	var body apiErrors
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil && len(body.Errors) > 0 {
		se.Code = body.Errors[0].Code
		se.Message = body.Errors[0].Message
	}
	return se
}

// ---- users ----

func (c *Client) GetUser(ctx context.Context, userID string) (domain.Identity, error) {
	var u domain.ProviderUser
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &u)
	if err != nil {
		return domain.Identity{}, mapStatus(err, domain.ErrUserNotFound())
	}
	return u.Identity(), nil
}

// UpdatePublicMetadata merges meta into the user's public metadata.
func (c *Client) UpdatePublicMetadata(ctx context.Context, userID string, meta map[string]any) error {
	return c.UpdateMetadata(ctx, userID, meta, nil)
}

// UpdateMetadata merges both bags in a single call; a nil bag is left alone.
// The provider deep-merges, so a key set to nil is removed.
func (c *Client) UpdateMetadata(ctx context.Context, userID string, public, unsafe map[string]any) error {
	body := map[string]any{}
	if public != nil {
		body["public_metadata"] = public
	}
	if unsafe != nil {
		body["unsafe_metadata"] = unsafe
	}
	err := c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(userID)+"/metadata", body, nil)
	return mapStatus(err, domain.ErrUserNotFound())
}

// ---- sessions ----

func (c *Client) RevokeSession(ctx context.Context, sessionID string) error {
	err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/revoke", nil, nil)
	return mapStatus(err, domain.New(domain.KindNotFound, "session_not_found", "session not found"))
}

// ---- sign-ins ----

type signInFactor struct {
	Strategy       string `json:"strategy"`
	EmailAddressID string `json:"email_address_id,omitempty"`
	PhoneNumberID  string `json:"phone_number_id,omitempty"`
	SafeIdentifier string `json:"safe_identifier,omitempty"`
}

type signInPayload struct {
	ID                     string         `json:"id"`
	Status                 string         `json:"status"`
	Identifier             string         `json:"identifier"`
	UserID                 string         `json:"user_id"`
	CreatedSessionID       string         `json:"created_session_id"`
	SupportedSecondFactors []signInFactor `json:"supported_second_factors"`
}

func (p signInPayload) toDomain() domain.SignIn {
	si := domain.SignIn{
		ID:         p.ID,
		Status:     domain.SignInStatus(p.Status),
		Identifier: p.Identifier,
		UserID:     p.UserID,
		SessionID:  p.CreatedSessionID,
	}
	for _, f := range p.SupportedSecondFactors {
		si.SupportedSecondFactors = append(si.SupportedSecondFactors, domain.Factor{
			Strategy:       f.Strategy,
			EmailAddressID: f.EmailAddressID,
			PhoneNumberID:  f.PhoneNumberID,
			SafeIdentifier: f.SafeIdentifier,
		})
	}
	return si
}

func (c *Client) GetSignIn(ctx context.Context, signInID string) (domain.SignIn, error) {
	var p signInPayload
	if err := c.do(ctx, http.MethodGet, "/sign_ins/"+url.PathEscape(signInID), nil, &p); err != nil {
		return domain.SignIn{}, mapStatus(err, domain.ErrSignInNotFound())
	}
	return p.toDomain(), nil
}

func (c *Client) PrepareSecondFactor(ctx context.Context, signInID string, f domain.Factor) error {
	body := signInFactor{
		Strategy:       f.Strategy,
		EmailAddressID: f.EmailAddressID,
		PhoneNumberID:  f.PhoneNumberID,
	}
	err := c.do(ctx, http.MethodPost, "/sign_ins/"+url.PathEscape(signInID)+"/prepare_second_factor", body, nil)
	return mapStatus(err, domain.ErrSignInNotFound())
}

func (c *Client) AttemptSecondFactor(ctx context.Context, signInID, strategy, code string) (domain.SignIn, error) {
	body := map[string]string{"strategy": strategy, "code": code}
	var p signInPayload
	err := c.do(ctx, http.MethodPost, "/sign_ins/"+url.PathEscape(signInID)+"/attempt_second_factor", body, &p)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusUnprocessableEntity || se.StatusCode == http.StatusBadRequest) {
			return domain.SignIn{}, domain.ErrInvalidCode()
		}
		return domain.SignIn{}, mapStatus(err, domain.ErrSignInNotFound())
	}
	return p.toDomain(), nil
}

// ---- transport ----

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if reqID := appCtx.GetRequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	log := logger.WithCtx(ctx).With().
		Str("method", method).
		Str("path", path).
		Logger()

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Dur("duration", time.Since(start)).Msg("identity_provider_request_failed")
		return domain.ErrProviderUnavailable(err)
	}
	defer resp.Body.Close()

	log.Debug().Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("identity_provider_request_completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.ErrProviderUnavailable(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// mapStatus converts provider status errors into the domain taxonomy.
// notFound is returned for 404s since its meaning depends on the call.
func mapStatus(err error, notFound *domain.Error) error {
	if err == nil {
		return nil
	}
	var se *StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.StatusCode == http.StatusNotFound:
		notFound.Cause = se
		return notFound
	case se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500:
		return domain.ErrProviderUnavailable(se)
	default:
		// 401/403 mean a bad secret key; other 4xx mean we sent something wrong.
		return domain.ErrInternal(se)
	}
}
