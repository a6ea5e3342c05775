package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxErrorBody = 512

// postJSON sends payload to url and decodes a successful response into out.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", provider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", provider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request %s completion: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response body: %w", provider, err)
	}
	if resp.StatusCode >= 400 {
		snippet := raw
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return fmt.Errorf("%s completion failed status=%d body=%s", provider, resp.StatusCode, string(snippet))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", provider, err)
	}
	return nil
}
