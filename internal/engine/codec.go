package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/celerix-dev/celerix-ledger/pkg/schema"
)

// Unknown fills missing text and compound cells on load.
const Unknown = "Unknown"

// undeclared is the type of columns that Create added for keys outside the
// entity definition.
const undeclared schema.FieldType = ""

func defaultFor(t schema.FieldType) any {
	if t == schema.Number {
		return 0.0
	}
	return Unknown
}

func looksStructured(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{")
}

// decodeCell turns an on-disk cell into a value. An empty cell decodes to nil.
// Compound cells holding JSON must parse. Declared text cells are returned
// as stored; undeclared cells are decoded when they hold valid JSON.
func decodeCell(t schema.FieldType, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}

	switch t {
	case schema.Number:
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return f, nil
		}
		return raw, nil

	case schema.Compound:
		if !looksStructured(raw) && !strings.HasPrefix(raw, `"`) {
			return raw, nil
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("malformed compound value: %w", err)
		}
		return v, nil

	case schema.Text:
		return raw, nil

	default:
		if looksStructured(raw) && json.Valid([]byte(raw)) {
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err == nil {
				return v, nil
			}
		}
		return raw, nil
	}
}

// encodeCell renders a value for storage. Lists and mappings become JSON.
func encodeCell(t schema.FieldType, v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		// Quote compound strings that would otherwise be read back as JSON
		// or fail to parse.
		if t == schema.Compound && (strings.HasPrefix(x, `"`) || (looksStructured(x) && !json.Valid([]byte(x)))) {
			b, err := json.Marshal(x)
			return string(b), err
		}
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case bool:
		return strconv.FormatBool(x), nil
	case json.Number:
		return x.String(), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
