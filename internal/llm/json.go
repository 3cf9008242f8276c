package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSONObject is returned when a response contains no {...} span.
var ErrNoJSONObject = errors.New("no JSON object in response")

// ExtractJSONObject returns the outermost {...} span of an LLM response,
// after stripping markdown code fences.
func ExtractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoJSONObject
	}

	// Strip markdown code fences
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		endIdx := len(lines)
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		text = strings.Join(lines[1:endIdx], "\n")
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSONObject
	}
	return text[start : end+1], nil
}

// ParseJSONResponse decodes the JSON object embedded in an LLM response into v.
func ParseJSONResponse(text string, v any) error {
	obj, err := ExtractJSONObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("decoding response JSON: %w", err)
	}
	return nil
}
