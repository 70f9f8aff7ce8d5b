// Package canonical implements the single, dependency-free canonical
// JSON encoding the audit chain hashes over. It exists specifically so
// the hash input is reproducible byte-for-byte across languages and
// processes; it is deliberately not built on encoding/json's Marshal,
// which does not guarantee the number/float normalization this format
// requires.
package canonical

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Marshal renders v as canonical JSON: object keys sorted ascending by
// Unicode code point, no insignificant whitespace, floats normalized
// (integral values without a decimal point, others trimmed of trailing
// zeros and the dot), and timestamps as ISO-8601 UTC strings.
func Marshal(v interface{}) ([]byte, error) {
	var sb strings.Builder
	if err := encodeValue(&sb, v); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func encodeValue(sb *strings.Builder, v interface{}) error {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if val {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case string:
		encodeString(sb, val)
	case time.Time:
		encodeString(sb, val.UTC().Format(time.RFC3339Nano))
	case int:
		sb.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		sb.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		sb.WriteString(strconv.FormatInt(val, 10))
	case uint:
		sb.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		sb.WriteString(strconv.FormatUint(val, 10))
	case float32:
		encodeFloat(sb, float64(val))
	case float64:
		encodeFloat(sb, val)
	case map[string]interface{}:
		return encodeObject(sb, val)
	case []interface{}:
		return encodeArray(sb, val)
	case []string:
		arr := make([]interface{}, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return encodeArray(sb, arr)
	default:
		return fmt.Errorf("canonical: unsupported value type %T", v)
	}
	return nil
}

func encodeObject(sb *strings.Builder, m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		encodeString(sb, k)
		sb.WriteByte(':')
		if err := encodeValue(sb, m[k]); err != nil {
			return err
		}
	}
	sb.WriteByte('}')
	return nil
}

func encodeArray(sb *strings.Builder, arr []interface{}) error {
	sb.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := encodeValue(sb, item); err != nil {
			return err
		}
	}
	sb.WriteByte(']')
	return nil
}

func encodeString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(sb, `\u%04x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
}

// encodeFloat mirrors the source canonicalizer's normalize_value: an
// integral float is emitted with no decimal point; otherwise it is
// formatted to 10 decimal places and trimmed of trailing zeros and the
// dot.
func encodeFloat(sb *strings.Builder, val float64) {
	if !math.IsInf(val, 0) && !math.IsNaN(val) && val == math.Trunc(val) &&
		val >= -9.007199254740992e15 && val <= 9.007199254740992e15 {
		sb.WriteString(strconv.FormatInt(int64(val), 10))
		return
	}
	s := strconv.FormatFloat(val, 'f', 10, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	sb.WriteString(s)
}
