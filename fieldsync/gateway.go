// ABOUTME: Authenticated request gateway wrapping all outbound API calls.
// ABOUTME: Attaches bearer tokens and recovers from one expired-token failure.
package fieldsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Gateway sends authenticated requests to the remote API. Every request
// carries the current access token and the device identifier so the server
// can tell writers apart; a 401 response triggers exactly one
// token refresh followed by one retry. A failed refresh de-authenticates
// the device entirely.
type Gateway struct {
	base     string
	device   string
	hc       *http.Client
	tokens   TokenStore
	onLogout func()
	log      *zap.Logger
}

// NewGateway builds a gateway over the given token store. onLogout, if
// non-nil, runs after a failed refresh clears the stored tokens, so the app
// can drop its cached user. A nil logger is replaced with a no-op one.
func NewGateway(cfg Config, tokens TokenStore, onLogout func(), log *zap.Logger) *Gateway {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		base:     strings.TrimSuffix(cfg.BaseURL, "/"),
		device:   cfg.DeviceID,
		hc:       &http.Client{Timeout: cfg.Timeout},
		tokens:   tokens,
		onLogout: onLogout,
		log:      log,
	}
}

// Do sends method+path with the given body and headers. The Authorization
// header is always overwritten with the stored bearer token; other caller
// headers are preserved. Callers own the returned response body.
func (g *Gateway) Do(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error) {
	t, err := g.tokens.Tokens()
	if err != nil {
		return nil, err
	}
	if t.Access == "" {
		return nil, ErrNoToken
	}

	resp, err := g.send(ctx, method, path, body, header, t.Access)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// One refresh, one retry. A second 401 is returned as-is.
	refreshed, rerr := g.refresh(ctx, t.Refresh)
	if rerr != nil {
		g.log.Warn("token refresh failed, logging out", zap.Error(rerr))
		_ = g.tokens.Clear()
		if g.onLogout != nil {
			g.onLogout()
		}
		return resp, nil
	}
	_ = resp.Body.Close()

	retried, err := g.send(ctx, method, path, body, header, refreshed.Access)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	return retried, nil
}

func (g *Gateway) send(ctx context.Context, method, path string, body []byte, header http.Header, token string) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.base+path, rd)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Device-ID", g.device)
	return g.hc.Do(req)
}

// refresh exchanges the refresh token for a new token pair and persists it.
// A missing new refresh token keeps the old one.
func (g *Gateway) refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if refreshToken == "" {
		return Tokens{}, ErrNoToken
	}

	payload, err := json.Marshal(struct {
		RefreshToken string `json:"refreshToken"`
	}{refreshToken})
	if err != nil {
		return Tokens{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.base+"/api/auth/refresh", bytes.NewReader(payload))
	if err != nil {
		return Tokens{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-ID", g.device)

	resp, err := g.hc.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Tokens{}, fmt.Errorf("refresh failed: %s", resp.Status)
	}

	var body struct {
		Tokens struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Tokens{}, err
	}
	if body.Tokens.AccessToken == "" {
		return Tokens{}, fmt.Errorf("refresh returned empty access token")
	}

	t := Tokens{Access: body.Tokens.AccessToken, Refresh: body.Tokens.RefreshToken}
	if t.Refresh == "" {
		t.Refresh = refreshToken
	}
	if err := g.tokens.SetTokens(t); err != nil {
		return Tokens{}, err
	}
	return t, nil
}

// DoJSON sends a JSON body and returns the response.
func (g *Gateway) DoJSON(ctx context.Context, method, path string, v any) (*http.Response, error) {
	var body []byte
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		body = b
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return g.Do(ctx, method, path, body, h)
}

// DoMultipart sends a multipart/form-data POST with the given form fields
// plus one file part. Used by the photo binary upload path.
func (g *Gateway) DoMultipart(ctx context.Context, path string, fields map[string]string, fileField, fileName string, file io.Reader) (*http.Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	part, err := w.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set("Content-Type", w.FormDataContentType())
	return g.Do(ctx, http.MethodPost, path, buf.Bytes(), h)
}
