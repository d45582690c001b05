package shopsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// requestRefresh calls the token endpoint with the refresh_token grant.
func (m *TokenManager) requestRefresh(ctx context.Context, refreshToken string) (refreshResponse, error) {
	query := url.Values{
		"app_key":       {m.creds.AppKey},
		"app_secret":    {m.creds.AppSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.refreshURL+"?"+query.Encode(), nil)
	if err != nil {
		return refreshResponse{}, fmt.Errorf("shopsdk: create refresh request: %w", err)
	}

	status, body, err := doRequest(m.httpClient, req)
	if err != nil {
		return refreshResponse{}, fmt.Errorf("shopsdk: send refresh request: %w", err)
	}
	if !isSuccess(status) {
		return refreshResponse{}, &RefreshHTTPError{StatusCode: status, Body: string(body)}
	}

	return parseRefreshResponse(body)
}

// parseRefreshResponse accepts the payload nested under "data" or at the top
// level; clusters differ on which they use. A "data" object without an
// access_token falls back to the top level.
func parseRefreshResponse(body []byte) (refreshResponse, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return refreshResponse{}, &RefreshPayloadError{Body: string(body)}
	}

	if d := bytes.TrimSpace(envelope.Data); len(d) > 0 && d[0] == '{' {
		var nested refreshResponse
		if err := json.Unmarshal(d, &nested); err == nil && nested.AccessToken != "" {
			return nested, nil
		}
	}

	var resp refreshResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.AccessToken == "" {
		return refreshResponse{}, &RefreshPayloadError{Body: string(body)}
	}
	return resp, nil
}
