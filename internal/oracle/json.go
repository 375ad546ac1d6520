package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSONObject is returned when a response holds no {...} payload.
var ErrNoJSONObject = errors.New("no json object in response")

// ExtractJSON returns the JSON payload of a model response. Models sometimes
// wrap the object in prose or code fences, or emit it slightly broken, so the
// text is tried as-is, then the span from the first "{" to the last "}", then
// a repaired version of that span.
func ExtractJSON(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	if s != "" && json.Valid([]byte(s)) {
		return []byte(s), nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, ErrNoJSONObject
	}
	span := s[start : end+1]
	if json.Valid([]byte(span)) {
		return []byte(span), nil
	}

	repaired, err := jsonrepair.JSONRepair(span)
	if err != nil {
		return nil, fmt.Errorf("repair json: %w", err)
	}
	if !json.Valid([]byte(repaired)) {
		return nil, fmt.Errorf("repair json: result is still invalid")
	}
	return []byte(repaired), nil
}

// DecodeJSON extracts the JSON payload of text and unmarshals it into T.
func DecodeJSON[T any](text string) (T, error) {
	var out T
	b, err := ExtractJSON(text)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("decode json: %w", err)
	}
	return out, nil
}
