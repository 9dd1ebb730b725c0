package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON decodes a JSON body into a generic document. Numbers stay json.Number so that
// monetary values survive a later re-encode without float rounding.
func ParseJSON(resp *Response) (any, error) {
	if len(resp.Body) == 0 {
		return nil, nil
	}

	contentType := strings.ToLower(resp.ContentType)
	if contentType != "" && !strings.Contains(contentType, "json") {
		return nil, fmt.Errorf("unexpected content type %q", resp.ContentType)
	}

	decoder := json.NewDecoder(bytes.NewReader(resp.Body))
	decoder.UseNumber()

	var result any
	if err := decoder.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return result, nil
}

// IsSuccessStatus returns true if the status code indicates success
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsRateLimitStatus returns true if the status code indicates rate limiting
func IsRateLimitStatus(statusCode int) bool {
	return statusCode == 429
}
