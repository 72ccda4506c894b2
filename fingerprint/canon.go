package fingerprint

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// Params is a computation's parameter set. Values must come from the closed
// set of canonicalizable kinds: nil, bool, integers, floats, strings,
// time.Time, []any (order preserved), Unordered (order ignored), nested
// Params / map[string]any, and the convenience slices []string, []int,
// []float64.
type Params map[string]any

// Unordered marks a collection whose element order must not affect the
// fingerprint. Elements are canonicalized individually and sorted by their
// encoded form before hashing. Use it only when the computation itself is
// declared order-insensitive; plain []any preserves sequence order.
type Unordered []any

// floatPrecision fixes the decimal digits floats are normalized to before
// hashing, so 0.1+0.2 and 0.3 read back from a config file can't silently
// split the cache.
const floatPrecision = 12

// UnhashableError reports a parameter value outside the canonicalizable set.
type UnhashableError struct {
	Key   string
	Value any
}

func (e *UnhashableError) Error() string {
	return fmt.Sprintf("unhashable parameter %q of type %T", e.Key, e.Value)
}

// Canonicalize produces the deterministic byte encoding of params:
// keys sorted, floats at fixed precision, every value tagged with its kind.
func Canonicalize(params Params) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeMap(&buf, "", map[string]any(params)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeMap(buf *bytes.Buffer, key string, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteString("m{")
	for _, k := range keys {
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte('=')
		if err := writeValue(buf, k, m[k]); err != nil {
			return err
		}
		buf.WriteByte(';')
	}
	buf.WriteByte('}')
	return nil
}

func writeValue(buf *bytes.Buffer, key string, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("nil")
	case bool:
		buf.WriteString("b:")
		buf.WriteString(strconv.FormatBool(x))
	case int:
		writeInt(buf, int64(x))
	case int8:
		writeInt(buf, int64(x))
	case int16:
		writeInt(buf, int64(x))
	case int32:
		writeInt(buf, int64(x))
	case int64:
		writeInt(buf, x)
	case uint:
		writeUint(buf, uint64(x))
	case uint8:
		writeUint(buf, uint64(x))
	case uint16:
		writeUint(buf, uint64(x))
	case uint32:
		writeUint(buf, uint64(x))
	case uint64:
		writeUint(buf, x)
	case float32:
		writeFloat(buf, float64(x))
	case float64:
		writeFloat(buf, x)
	case string:
		buf.WriteString("s:")
		buf.WriteString(strconv.Quote(x))
	case time.Time:
		buf.WriteString("t:")
		buf.WriteString(strconv.FormatInt(x.UTC().UnixNano(), 10))
	case []any:
		buf.WriteString("l[")
		for _, el := range x {
			if err := writeValue(buf, key, el); err != nil {
				return err
			}
			buf.WriteByte(',')
		}
		buf.WriteByte(']')
	case Unordered:
		return writeUnordered(buf, key, x)
	case []string:
		buf.WriteString("l[")
		for _, el := range x {
			buf.WriteString("s:")
			buf.WriteString(strconv.Quote(el))
			buf.WriteByte(',')
		}
		buf.WriteByte(']')
	case []int:
		buf.WriteString("l[")
		for _, el := range x {
			writeInt(buf, int64(el))
			buf.WriteByte(',')
		}
		buf.WriteByte(']')
	case []float64:
		buf.WriteString("l[")
		for _, el := range x {
			writeFloat(buf, el)
			buf.WriteByte(',')
		}
		buf.WriteByte(']')
	case Params:
		return writeMap(buf, key, map[string]any(x))
	case map[string]any:
		return writeMap(buf, key, x)
	default:
		return &UnhashableError{Key: key, Value: v}
	}
	return nil
}

func writeUnordered(buf *bytes.Buffer, key string, vals Unordered) error {
	encoded := make([]string, len(vals))
	for i, el := range vals {
		var elBuf bytes.Buffer
		if err := writeValue(&elBuf, key, el); err != nil {
			return err
		}
		encoded[i] = elBuf.String()
	}
	sort.Strings(encoded)

	buf.WriteString("u[")
	for _, e := range encoded {
		buf.WriteString(e)
		buf.WriteByte(',')
	}
	buf.WriteByte(']')
	return nil
}

func writeInt(buf *bytes.Buffer, v int64) {
	buf.WriteString("i:")
	buf.WriteString(strconv.FormatInt(v, 10))
}

func writeUint(buf *bytes.Buffer, v uint64) {
	// Normalize to the signed form when possible so int(5) and uint(5)
	// produce the same fingerprint.
	if v <= math.MaxInt64 {
		writeInt(buf, int64(v))
		return
	}
	buf.WriteString("U:")
	buf.WriteString(strconv.FormatUint(v, 10))
}

func writeFloat(buf *bytes.Buffer, v float64) {
	buf.WriteString("f:")
	buf.WriteString(strconv.FormatFloat(v, 'e', floatPrecision, 64))
}
