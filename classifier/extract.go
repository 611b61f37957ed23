package classifier

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

var ErrNoJSON = errors.New("classifier: no json object in response")

// Extract returns the JSON objects embedded in s, in order, using
// string-aware bracket matching. An object left open at the end of s is
// returned as-is so it can still be repaired.
func Extract(s string) []string {
	var out []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				out = append(out, s[start:i+1])
				start = -1
			}
		}
	}
	if depth > 0 && start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

// Parse pulls the first usable verdict object out of a model response.
func Parse(text string) (*Verdict, error) {
	objs := Extract(text)
	if len(objs) == 0 {
		return nil, ErrNoJSON
	}

	var lastErr error
	for _, obj := range objs {
		var probe map[string]json.RawMessage
		if err := unmarshalJSON([]byte(obj), &probe); err != nil {
			lastErr = err
			continue
		}
		if _, ok := probe["isTopicChanged"]; !ok {
			if _, ok := probe["currentTopic"]; !ok {
				lastErr = fmt.Errorf("classifier: object has no verdict fields")
				continue
			}
		}
		var v Verdict
		if err := unmarshalJSON([]byte(obj), &v); err != nil {
			lastErr = err
			continue
		}
		return &v, nil
	}
	return nil, lastErr
}

// unmarshalJSON retries through jsonrepair when the input is not valid JSON.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return fmt.Errorf("%w (repair: %v)", err, rerr)
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}
