package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// ============================================================================
// HTTP Remote Data Facade
//
// Talks to the hosted backend's REST API. Authenticates with email/password
// for a bearer token, caches the token in memory and in the local store so
// restarts don't force a fresh login, and re-authenticates once on 401.
// Transport failures map to SERVICE_UNAVAILABLE so the sync pass treats
// them as transient and retries on the next pass.
// ============================================================================

const kvAuthTokenKey = kvPrefix + "auth_token"

// HTTPFacade implements RemoteDataFacade over the backend's REST API.
type HTTPFacade struct {
	baseURL    string
	email      string
	password   string
	authToken  string
	httpClient *http.Client
}

// NewHTTPFacade creates a facade for the backend at baseURL.
// Restores a cached auth token from the local store when one is present.
func NewHTTPFacade(baseURL, email, password string, timeout time.Duration) *HTTPFacade {
	f := &HTTPFacade{
		baseURL:  baseURL,
		email:    email,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	var cached string
	if found, err := kvGet(kvAuthTokenKey, &cached); err == nil && found {
		f.authToken = cached
	}

	return f
}

// Create posts a new record to the backend.
func (f *HTTPFacade) Create(ctx context.Context, table string, payload Payload) Result {
	return f.do(ctx, http.MethodPost, f.baseURL+"/api/v1/"+table, payload)
}

// Update patches an existing record.
func (f *HTTPFacade) Update(ctx context.Context, table, id string, payload Payload) Result {
	return f.do(ctx, http.MethodPatch, f.baseURL+"/api/v1/"+table+"/"+id, payload)
}

// SoftDelete marks a record deleted. The backend keeps the row and flips
// is_deleted. The sync layer never hard-deletes.
func (f *HTTPFacade) SoftDelete(ctx context.Context, table, id string) Result {
	return f.do(ctx, http.MethodDelete, f.baseURL+"/api/v1/"+table+"/"+id, nil)
}

// apiEnvelope is the backend's response shape for data operations.
type apiEnvelope struct {
	Data  Payload      `json:"data"`
	Error *RemoteError `json:"error"`
}

// do runs one facade operation: marshal, authenticate, send, re-auth once
// on 401, decode. Any transport-level failure comes back as a transient
// SERVICE_UNAVAILABLE result rather than an error return, so callers have
// a single result shape to branch on.
func (f *HTTPFacade) do(ctx context.Context, method, url string, payload Payload) Result {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return transientResult(serr.Wrap(err, "failed to marshal payload"))
		}
	}

	if err := f.ensureToken(ctx); err != nil {
		return transientResult(err)
	}

	resp, err := f.send(ctx, method, url, body)
	if err != nil {
		return transientResult(err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		if err := f.login(ctx); err != nil {
			return transientResult(serr.Wrap(err, "re-authentication failed after 401"))
		}
		resp, err = f.send(ctx, method, url, body)
		if err != nil {
			return transientResult(err)
		}
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return transientResult(serr.Wrap(err, "failed to decode backend response"))
	}

	if envelope.Error != nil {
		return Result{Data: envelope.Data, Err: envelope.Error}
	}
	if resp.StatusCode >= 400 {
		return Result{Err: &RemoteError{
			Code:    RemoteCodeUnavailable,
			Message: fmt.Sprintf("backend returned status %d", resp.StatusCode),
		}}
	}

	return Result{Data: envelope.Data}
}

// send builds and executes one request with the bearer token attached.
func (f *HTTPFacade) send(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, serr.Wrap(err, "failed to create backend request")
	}
	req.Header.Set("Content-Type", "application/json")
	if f.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.authToken)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, serr.Wrap(err, "backend request failed")
	}
	return resp, nil
}

// ensureToken logs in when there is no usable cached token. A cached token
// whose exp claim has passed is discarded up front instead of spending a
// guaranteed 401 round trip.
func (f *HTTPFacade) ensureToken(ctx context.Context) error {
	if f.authToken != "" && !tokenExpired(f.authToken) {
		return nil
	}
	return f.login(ctx)
}

// tokenExpired checks the token's exp claim without verifying the
// signature. Verification is the backend's job; we only need to know
// whether sending it is pointless.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true // Unparseable tokens are treated as expired
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false // No exp claim, let the backend decide
	}
	return exp.Before(time.Now())
}

// login exchanges credentials for a bearer token and persists it for reuse
// across restarts.
func (f *HTTPFacade) login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"email":    f.email,
		"password": f.password,
	})
	if err != nil {
		return serr.Wrap(err, "failed to marshal login request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/api/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return serr.Wrap(err, "failed to create login request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return serr.Wrap(err, "login request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serr.New(fmt.Sprintf("login failed with status %d", resp.StatusCode))
	}

	var loginResp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return serr.Wrap(err, "failed to decode login response")
	}
	if loginResp.Data.Token == "" {
		return serr.New("login response missing token")
	}

	f.authToken = loginResp.Data.Token

	if err := kvPut(kvAuthTokenKey, f.authToken); err != nil {
		logger.LogErr(err, "failed to persist auth token")
	}

	return nil
}

// transientResult wraps a transport-level error as a retryable result.
func transientResult(err error) Result {
	return Result{Err: &RemoteError{
		Code:    RemoteCodeUnavailable,
		Message: err.Error(),
	}}
}
