// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package transport is the REST transport shared by every service
// client: auth-header injection, retry with exponential backoff,
// DNS caching, NDJSON streaming, and the ServiceError envelope.
//
// Token handling is transparent. Before each request the transport
// asks the session manager for the active session's token, refreshing
// it when it is within the refresh window of expiry. Refresh is
// serialized per session; concurrent requests share one refresh.
package transport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
	"github.com/AleutianAI/AleutianKnowledge/session"
)

// tracer is the OpenTelemetry tracer for transport operations.
var tracer = otel.Tracer("aleutian.knowledge.transport")

// Version is the SDK version reported in the User-Agent header.
const Version = "1.0.0"

const (
	defaultTimeout       = 60 * time.Second
	defaultMaxRetries    = 3
	defaultRefreshWindow = 120 * time.Second
	defaultBackoff       = 500 * time.Millisecond
	defaultMaxBackoff    = 10 * time.Second

	// snippetLimit bounds how much of an error response body is kept
	// in the ServiceError envelope.
	snippetLimit = 2048
)

// Config configures a transport client. The zero value is usable;
// every field has a documented default.
type Config struct {
	// AuthServiceURL is the base URL of the authentication service,
	// the one exposing /user/login and /user/refresh.
	AuthServiceURL string

	// Timeout is the per-request default. Default: 60 s.
	Timeout time.Duration

	// MaxRetries bounds retry attempts for transient faults.
	// Default: 3.
	MaxRetries int

	// InitialBackoff and MaxBackoff shape the exponential backoff
	// between retries. Defaults: 500 ms and 10 s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RefreshWindow triggers a token refresh when the access token
	// expires within it. Default: 120 s.
	RefreshWindow time.Duration

	// DNSCacheTTL bounds DNS cache entries. Default: 300 s.
	DNSCacheTTL time.Duration

	// Logger for transport events. Default: slog.Default().
	Logger *slog.Logger
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.RefreshWindow <= 0 {
		c.RefreshWindow = defaultRefreshWindow
	}
	if c.DNSCacheTTL <= 0 {
		c.DNSCacheTTL = defaultDNSTTL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// RequestOptions tune a single request.
type RequestOptions struct {
	// Params are appended to the URL query string.
	Params url.Values

	// Headers are merged over the defaults.
	Headers http.Header

	// OverwriteToken bypasses the session manager and is sent
	// verbatim; no refresh is attempted.
	OverwriteToken string

	// NoAuth omits the Authorization header entirely (login calls).
	NoAuth bool

	// Timeout overrides the client default for this call.
	Timeout time.Duration
}

// Response is a completed HTTP exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is the shared REST transport. One connection pool per
// client; safe for concurrent use.
type Client struct {
	cfg      Config
	http     *http.Client
	resolver *CachedResolver
	manager  *session.TokenManager

	mu        sync.RWMutex
	sessionID string
}

// New builds a transport client bound to the process-wide session
// manager.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	resolver := NewCachedResolver(cfg.DNSCacheTTL)
	httpTransport := http.DefaultTransport.(*http.Transport).Clone()
	httpTransport.DialContext = resolver.DialContext
	return &Client{
		cfg:      cfg,
		resolver: resolver,
		manager:  session.Manager(),
		http: &http.Client{
			Transport: httpTransport,
			// Per-request timeouts come from context; the client-level
			// timeout is a final safety net for streaming-free calls.
		},
	}
}

// Close releases idle connections. Always safe to call.
func (c *Client) Close() {
	if t, ok := c.http.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// Manager exposes the bound session manager.
func (c *Client) Manager() *session.TokenManager { return c.manager }

// SessionID returns the active session id, empty before login.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Client) setSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// UseSession switches the client to an already-registered session.
func (c *Client) UseSession(id string) error {
	if !c.manager.HasSession(id) {
		return apierrors.Newf(apierrors.KindValidation, "unknown session %s", id)
	}
	c.setSessionID(id)
	return nil
}

// loginResponse is the auth service's token envelope. ExpirationDate
// is audit-only; expiry scheduling uses the token's exp claim.
type loginResponse struct {
	AccessToken    string `json:"accessToken"`
	RefreshToken   string `json:"refreshToken"`
	ExpirationDate string `json:"expirationDate"`
}

// Login authenticates with a tenant API key and external user id and
// registers a permanent session as the client's active session.
func (c *Client) Login(ctx context.Context, tenantAPIKey, externalUserID string) (session.Session, error) {
	if tenantAPIKey == "" || externalUserID == "" {
		return nil, apierrors.Validation("tenant API key and external user id are required")
	}
	access, refresh, expiration, err := c.loginRequest(ctx, tenantAPIKey, externalUserID)
	if err != nil {
		return nil, err
	}
	s, err := c.manager.AddSession(access, refresh, tenantAPIKey, externalUserID)
	if err != nil {
		return nil, err
	}
	c.setSessionID(s.ID())
	c.cfg.Logger.Info("logged in",
		"session_id", s.ID(), "kind", s.Kind().String(), "expiration_date", expiration)
	return s, nil
}

// RegisterToken registers externally obtained tokens as the active
// session. Without a refresh token the session is timed; with one it
// is refreshable.
func (c *Client) RegisterToken(accessToken, refreshToken string) (session.Session, error) {
	s, err := c.manager.AddSession(accessToken, refreshToken, "", "")
	if err != nil {
		return nil, err
	}
	c.setSessionID(s.ID())
	return s, nil
}

// Logout removes the active session.
func (c *Client) Logout() {
	if id := c.SessionID(); id != "" {
		c.manager.RemoveSession(id)
		c.setSessionID("")
	}
}

// loginRequest performs the raw login exchange.
func (c *Client) loginRequest(ctx context.Context, tenantAPIKey, externalUserID string) (access, refresh, expiration string, err error) {
	headers := http.Header{}
	headers.Set("x-tenant-api-key", tenantAPIKey)
	resp, err := c.Post(ctx, c.cfg.AuthServiceURL+"/user/login",
		map[string]string{"externalUserId": externalUserID},
		&RequestOptions{Headers: headers, NoAuth: true})
	if err != nil {
		return "", "", "", err
	}
	var lr loginResponse
	if err := json.Unmarshal(resp.Body, &lr); err != nil {
		return "", "", "", apierrors.Wrap(
			apierrors.New(apierrors.KindParse, "malformed login response"), err)
	}
	return lr.AccessToken, lr.RefreshToken, lr.ExpirationDate, nil
}

// refreshRequest exchanges a refresh token for a new pair.
func (c *Client) refreshRequest(ctx context.Context, refreshToken string) (string, string, error) {
	resp, err := c.Post(ctx, c.cfg.AuthServiceURL+"/user/refresh",
		map[string]string{"refreshToken": refreshToken},
		&RequestOptions{NoAuth: true})
	if err != nil {
		return "", "", err
	}
	var lr loginResponse
	if err := json.Unmarshal(resp.Body, &lr); err != nil {
		return "", "", apierrors.Wrap(
			apierrors.New(apierrors.KindParse, "malformed refresh response"), err)
	}
	return lr.AccessToken, lr.RefreshToken, nil
}

// loginFor adapts loginRequest to the session manager's fallback
// signature.
func (c *Client) loginFor(ctx context.Context, tenantAPIKey, externalUserID string) (string, string, error) {
	access, refresh, _, err := c.loginRequest(ctx, tenantAPIKey, externalUserID)
	return access, refresh, err
}

// token returns the bearer token for a request, refreshing the active
// session when it is inside the refresh window.
func (c *Client) token(ctx context.Context, opt *RequestOptions) (string, error) {
	if opt != nil && opt.OverwriteToken != "" {
		return opt.OverwriteToken, nil
	}
	id := c.SessionID()
	if id == "" {
		return "", apierrors.New(apierrors.KindAuthExpired, "no active session; log in first")
	}
	s, ok := c.manager.GetSession(id)
	if !ok {
		return "", apierrors.Newf(apierrors.KindAuthExpired, "session %s no longer registered", id)
	}
	if s.ExpiresIn() >= c.cfg.RefreshWindow {
		return s.AccessToken(), nil
	}
	if !s.Refreshable() {
		if s.ExpiresIn() <= 0 {
			return "", apierrors.New(apierrors.KindAuthExpired, "timed session expired")
		}
		return s.AccessToken(), nil
	}
	return c.manager.RefreshSession(ctx, id, c.refreshRequest, c.loginFor)
}

// ForceRefresh refreshes the active session immediately.
func (c *Client) ForceRefresh(ctx context.Context) (string, error) {
	id := c.SessionID()
	if id == "" {
		return "", apierrors.New(apierrors.KindAuthExpired, "no active session; log in first")
	}
	return c.manager.RefreshSession(ctx, id, c.refreshRequest, c.loginFor)
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, rawURL string, opt *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, "", opt)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, rawURL string, opt *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodDelete, rawURL, nil, "", opt)
}

// Post issues a POST with a JSON body. A nil body sends no payload.
func (c *Client) Post(ctx context.Context, rawURL string, body any, opt *RequestOptions) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, rawURL, payload, "application/json", opt)
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, rawURL string, body any, opt *RequestOptions) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPatch, rawURL, payload, "application/json", opt)
}

// DeleteBody issues a DELETE carrying a JSON body (bulk deletes).
func (c *Client) DeleteBody(ctx context.Context, rawURL string, body any, opt *RequestOptions) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodDelete, rawURL, payload, "application/json", opt)
}

// PostBytes issues a POST with a raw byte body (UIM uploads).
func (c *Client) PostBytes(ctx context.Context, rawURL string, body []byte, contentType string, opt *RequestOptions) (*Response, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return c.do(ctx, http.MethodPost, rawURL, body, contentType, opt)
}

// FilePart describes the binary part of a multipart upload.
type FilePart struct {
	Field    string
	FileName string
	MimeType string
	Data     []byte
}

// PostMultipart uploads a file part plus form fields.
func (c *Client) PostMultipart(ctx context.Context, rawURL string, part FilePart, fields map[string]string, opt *RequestOptions) (*Response, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fw, err := writer.CreateFormFile(part.Field, part.FileName)
	if err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := fw.Write(part.Data); err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("building multipart body: %w", err)
		}
	}
	if part.MimeType != "" {
		if err := writer.WriteField("mimeType", part.MimeType); err != nil {
			return nil, fmt.Errorf("building multipart body: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}
	return c.do(ctx, http.MethodPost, rawURL, buf.Bytes(), writer.FormDataContentType(), opt)
}

// encodeBody marshals a JSON body, passing through raw bytes and nil.
func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, apierrors.Wrap(
				apierrors.New(apierrors.KindValidation, "request body is not serializable"), err)
		}
		return payload, nil
	}
}

// do runs the request with auth, retries and the error envelope.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, contentType string, opt *RequestOptions) (*Response, error) {
	ctx, span := tracer.Start(ctx, "transport."+method)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", rawURL),
	)

	timeout := c.cfg.Timeout
	if opt != nil && opt.Timeout > 0 {
		timeout = opt.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fullURL, err := appendParams(rawURL, opt)
	if err != nil {
		return nil, err
	}

	token := ""
	noAuth := opt != nil && opt.NoAuth
	if !noAuth {
		token, err = c.token(ctx, opt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	resp, err := c.doRetry(ctx, method, fullURL, body, contentType, token, opt)

	// One forced refresh on 401, then a single replay. Requests with
	// an overwrite token are replayed by the caller, not here.
	if err != nil && !noAuth && (opt == nil || opt.OverwriteToken == "") {
		if errors.Is(err, apierrors.ErrAuthExpired) && c.SessionID() != "" {
			if refreshed, rerr := c.ForceRefresh(ctx); rerr == nil {
				resp, err = c.doRetry(ctx, method, fullURL, body, contentType, refreshed, opt)
			}
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

// doRetry runs the backoff loop around a single request shape.
func (c *Client) doRetry(ctx context.Context, method, fullURL string, body []byte, contentType, token string, opt *RequestOptions) (*Response, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialBackoff
	policy.MaxInterval = c.cfg.MaxBackoff

	var out *Response
	attempt := 0
	operation := func() error {
		attempt++
		resp, err := c.once(ctx, method, fullURL, body, contentType, token, opt)
		if err != nil {
			var svcErr *apierrors.ServiceError
			if errors.As(err, &svcErr) && svcErr.Retryable() {
				c.cfg.Logger.Warn("retrying request",
					"method", method, "url", fullURL, "attempt", attempt, "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		out = resp
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(c.cfg.MaxRetries)), ctx))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		if ctxErr := ctx.Err(); ctxErr != nil && !isServiceError(err) {
			return nil, c.envelope(method, fullURL, body, opt, 0, ctxMessage(ctxErr), ctxErr)
		}
		return nil, err
	}
	return out, nil
}

// once performs a single HTTP exchange.
func (c *Client) once(ctx context.Context, method, fullURL string, body []byte, contentType, token string, opt *RequestOptions) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Validation("building request for %s", fullURL), err)
	}
	c.setHeaders(req, contentType, token, opt)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, c.envelope(method, fullURL, body, opt, 0, ctxMessage(ctx.Err()), ctx.Err())
		}
		return nil, c.envelope(method, fullURL, body, opt, 0, "network failure", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.envelope(method, fullURL, body, opt, 0, "reading response body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(payload)
		if len(snippet) > snippetLimit {
			snippet = snippet[:snippetLimit]
		}
		svcErr := apierrors.FromResponse(method, fullURL, resp.StatusCode, snippet)
		svcErr.PayloadDigest = payloadDigest(body)
		svcErr.Params = paramsMap(opt)
		return nil, svcErr
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: payload}, nil
}

// setHeaders applies defaults plus per-request overrides.
func (c *Client) setHeaders(req *http.Request, contentType, token string, opt *RequestOptions) {
	req.Header.Set("User-Agent", "AleutianKnowledge/"+Version)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if opt != nil {
		for k, values := range opt.Headers {
			req.Header.Del(k)
			for _, v := range values {
				req.Header.Add(k, v)
			}
		}
	}
}

// envelope builds a transport-level ServiceError.
func (c *Client) envelope(method, fullURL string, body []byte, opt *RequestOptions, status int, msg string, cause error) *apierrors.ServiceError {
	e := &apierrors.ServiceError{
		Kind:          apierrors.KindTransient,
		Method:        method,
		URL:           fullURL,
		StatusCode:    status,
		Message:       msg,
		PayloadDigest: payloadDigest(body),
		Params:        paramsMap(opt),
	}
	return apierrors.Wrap(e, cause)
}

// appendParams merges query parameters into the URL.
func appendParams(rawURL string, opt *RequestOptions) (string, error) {
	if opt == nil || len(opt.Params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", apierrors.Wrap(apierrors.Validation("invalid URL %q", rawURL), err)
	}
	q := u.Query()
	for k, values := range opt.Params {
		for _, v := range values {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// payloadDigest hashes the request body for log correlation.
func payloadDigest(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// paramsMap flattens query parameters for the error envelope.
func paramsMap(opt *RequestOptions) map[string]string {
	if opt == nil || len(opt.Params) == 0 {
		return nil
	}
	out := make(map[string]string, len(opt.Params))
	for k := range opt.Params {
		out[k] = opt.Params.Get(k)
	}
	return out
}

// isServiceError reports whether err already carries the envelope.
func isServiceError(err error) bool {
	var svcErr *apierrors.ServiceError
	return errors.As(err, &svcErr)
}

// ctxMessage distinguishes caller cancellation from a deadline in the
// error envelope.
func ctxMessage(err error) string {
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "timeout"
}
