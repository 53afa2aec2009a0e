package dialogue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedOutput = errors.New("malformed model output")

// MalformedOutputError means the oracle replied, but not with something
// the policy can act on. Fields are never defaulted in that case.
type MalformedOutputError struct {
	Operation string
	Reason    string
	Raw       string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Operation, ErrMalformedOutput, e.Reason)
}

func (e *MalformedOutputError) Is(target error) bool {
	return target == ErrMalformedOutput
}

func (e *MalformedOutputError) MalformedOutput() bool {
	return true
}

type object struct {
	op     string
	raw    string
	fields map[string]json.RawMessage
}

// decodeObject parses the first JSON object in raw and checks that every
// required key is present and not null.
func decodeObject(op, raw string, required ...string) (*object, error) {
	body := extractObject(raw)
	if body == "" {
		return nil, &MalformedOutputError{Operation: op, Reason: "no JSON object in reply", Raw: raw}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, &MalformedOutputError{Operation: op, Reason: err.Error(), Raw: raw}
	}
	for _, key := range required {
		v, ok := fields[key]
		if !ok || string(v) == "null" {
			return nil, &MalformedOutputError{Operation: op, Reason: "missing key " + key, Raw: raw}
		}
	}
	return &object{op: op, raw: raw, fields: fields}, nil
}

func extractObject(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func (o *object) has(key string) bool {
	v, ok := o.fields[key]
	return ok && string(v) != "null"
}

func (o *object) boolField(key string) (bool, error) {
	if !o.has(key) {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(o.fields[key], &b); err != nil {
		return false, &MalformedOutputError{Operation: o.op, Reason: key + " is not a boolean", Raw: o.raw}
	}
	return b, nil
}

func (o *object) stringField(key string) (string, error) {
	if !o.has(key) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(o.fields[key], &s); err != nil {
		return "", &MalformedOutputError{Operation: o.op, Reason: key + " is not a string", Raw: o.raw}
	}
	return strings.TrimSpace(s), nil
}
