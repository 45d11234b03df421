package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const uriBodyLimit = 1 << 20

// URI issues an HTTP request and reports the status. The bearer_token
// and url_password parameters are declared secret-eligible at
// registration, so bound values are injected at call time and redacted
// from audit entries.
func URI(ctx context.Context, params map[string]any, check bool) (map[string]any, error) {
	url, err := requireString(params, "url")
	if err != nil {
		return nil, err
	}
	method := strings.ToUpper(stringParam(params, "method", "GET"))
	body := stringParam(params, "body", "")

	if check {
		return map[string]any{"changed": false, "url": url, "skipped": true}, nil
	}

	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if token := stringParam(params, "bearer_token", ""); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if user := stringParam(params, "url_username", ""); user != "" {
		req.SetBasicAuth(user, stringParam(params, "url_password", ""))
	}
	if ct := stringParam(params, "content_type", ""); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, uriBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := map[string]any{
		"changed": method != "GET" && method != "HEAD",
		"url":     url,
		"status":  resp.StatusCode,
		"body":    string(respBody),
	}
	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return out, nil
}
