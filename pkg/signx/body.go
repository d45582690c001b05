package signx

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalBody returns the minimal-whitespace JSON form of v, which is both
// signed and sent on the wire.
//
// nil yields nil. json.RawMessage and []byte are compacted as given so the
// caller's key order survives; any other value is marshalled with HTML
// escaping disabled.
func CanonicalBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return compact(b)
	case []byte:
		return compact(b)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("signx: marshal body: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func compact(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("signx: invalid JSON body: %w", err)
	}
	return buf.Bytes(), nil
}
