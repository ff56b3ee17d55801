package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Briefing is a client intake record. Only identity, type and revision have
// a fixed meaning; every other key is carried opaquely in Fields.
type Briefing struct {
	ID      string
	Type    string
	Version int
	Fields  map[string]any
}

var (
	briefingTypeKeys    = []string{"type", "tipologia", "project_type"}
	briefingVersionKeys = []string{"version", "revision"}
)

func (b *Briefing) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("invalid briefing: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("invalid briefing: object required")
	}
	out := Briefing{}
	if v, ok := raw["id"]; ok {
		out.ID = stringValue(v)
		delete(raw, "id")
	}
	for _, k := range briefingTypeKeys {
		if v, ok := raw[k]; ok {
			out.Type = stringValue(v)
			delete(raw, k)
			break
		}
	}
	for _, k := range briefingVersionKeys {
		if v, ok := raw[k]; ok {
			n, err := intValue(v)
			if err != nil {
				return fmt.Errorf("invalid briefing %s: %w", k, err)
			}
			out.Version = n
			delete(raw, k)
			break
		}
	}
	if len(raw) > 0 {
		out.Fields = raw
	}
	*b = out
	return nil
}

// MarshalJSON flattens Fields next to the identity keys. Keys are emitted in
// sorted order so the serialization is stable, and &, < and > are written
// literally so text scans see them.
func (b Briefing) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Fields)+3)
	for k, v := range b.Fields {
		out[k] = v
	}
	out["id"] = b.ID
	out["type"] = b.Type
	out["version"] = b.Version
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func intValue(v any) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return 0, err
			}
			return int(f), nil
		}
		return int(n), nil
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, nil
		}
		return strconv.Atoi(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("unsupported value %v", v)
	}
}
