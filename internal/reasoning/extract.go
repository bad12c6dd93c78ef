package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoObject means the reply contained no '{' ... '}' span.
var ErrNoObject = errors.New("no JSON object in reply")

// ParseError is returned when a reply cannot be read as the expected JSON shape.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse reply: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// ExtractObject returns the text between the first '{' and the last '}' inclusive.
func ExtractObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

// DecodeObject extracts the object span from raw and unmarshals it into out.
func DecodeObject(raw string, out any) error {
	obj, ok := ExtractObject(raw)
	if !ok {
		return &ParseError{Raw: raw, Err: ErrNoObject}
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return &ParseError{Raw: raw, Err: err}
	}
	return nil
}

// CompleteJSON calls c once and decodes the reply's object span into out.
// It returns the raw reply alongside any *ServiceError or *ParseError.
func CompleteJSON(ctx context.Context, c Completer, prompt string, out any) (string, error) {
	raw, err := c.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return raw, DecodeObject(raw, out)
}
