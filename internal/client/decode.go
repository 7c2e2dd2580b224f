package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// apiError is the JSON error body returned by the server.
type apiError struct {
	Status  int
	Message string `json:"error"`
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return e.Message
}

// decodeResponse reads a JSON body into T, turning non-2xx replies into
// *apiError.
func decodeResponse[T any](resp *http.Response) (T, error) {
	var out T
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return out, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return out, apiErr
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return out, fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
