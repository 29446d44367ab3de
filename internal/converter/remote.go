// internal/converter/remote.go
package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Remote talks to a conversion service over HTTP. The service exposes
// GET /health and POST /convert {source_path, target_path} and returns a JSON
// error body on failure.
type Remote struct {
	baseURL string
	client  *http.Client
}

func NewRemote(baseURL string) *Remote {
	return &Remote{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

// HealthCheck probes the service's liveness endpoint with a short timeout so
// an unreachable converter fails a conversion request fast instead of
// stalling it.
func (r *Remote) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("converter health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("converter health check: unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

func (r *Remote) Convert(ctx context.Context, sourcePath, targetPath string) error {
	convertReq := struct {
		SourcePath string `json:"source_path"`
		TargetPath string `json:"target_path"`
	}{
		SourcePath: sourcePath,
		TargetPath: targetPath,
	}

	body, err := json.Marshal(convertReq)
	if err != nil {
		return err
	}

	// Conversions are long-running; the ceiling matches the service side.
	ctx, cancel := context.WithTimeout(ctx, convertTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/convert", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w after %v", ErrTimeout, convertTimeout)
		}
		return fmt.Errorf("call converter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Error != "" {
			if errBody.Details != "" {
				return fmt.Errorf("converter: %s: %s", errBody.Error, errBody.Details)
			}
			return fmt.Errorf("converter: %s", errBody.Error)
		}
		return fmt.Errorf("converter: unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
