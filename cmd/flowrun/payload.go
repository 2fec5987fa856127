package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	ErrInvalidPayload    = errors.New("payload is not valid JSON")
	ErrInvalidSet        = errors.New("invalid --set, expected path=value")
	ErrInvalidConnection = errors.New(
		"invalid --connection, expected name=value",
	)
)

// buildPayload applies each path=value assignment to the base JSON
// document. Values that parse as JSON are inserted raw, anything else is
// inserted as a string
func buildPayload(base []byte, sets []string) (any, error) {
	doc := bytes.TrimSpace(base)
	if len(doc) == 0 {
		doc = []byte("{}")
	}
	if !gjson.ValidBytes(doc) {
		return nil, ErrInvalidPayload
	}

	for _, s := range sets {
		path, val, ok := strings.Cut(s, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSet, s)
		}
		var err error
		if gjson.Valid(val) {
			doc, err = sjson.SetRawBytes(doc, path, []byte(val))
		} else {
			doc, err = sjson.SetBytes(doc, path, val)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSet, err)
		}
	}
	return gjson.ParseBytes(doc).Value(), nil
}

// parseConnections turns name=value flags into connection values
func parseConnections(flags []string) (map[string]any, error) {
	res := make(map[string]any, len(flags))
	for _, f := range flags {
		name, val, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidConnection, f)
		}
		res[name] = parseValue(val)
	}
	return res, nil
}

func parseValue(s string) any {
	if gjson.Valid(s) {
		return gjson.Parse(s).Value()
	}
	return s
}
