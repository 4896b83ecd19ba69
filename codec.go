package protect

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"time"
)

// dateLayout is the ISO-8601 profile exchanged with the engine: microsecond
// precision, explicit numeric UTC offset.
const dateLayout = "2006-01-02T15:04:05.000000-07:00"

// encodeValue converts an application value into the wire string the engine
// expects for the given data type.
func encodeValue(value any, castAs DataType) (string, error) {
	switch castAs {
	case TypeText:
		return encodeText(value)
	case TypeBoolean:
		return encodeBoolean(value)
	case TypeSmallInt, TypeInt, TypeBigInt:
		return encodeInteger(value, castAs)
	case TypeReal, TypeDouble:
		return encodeFloat(value, castAs)
	case TypeDate:
		return encodeDate(value)
	case TypeJsonb:
		return toJSONString(value)
	default:
		return "", conversionErrf(castAs, nil, "unrecognized data type %q", string(castAs))
	}
}

// decodeValue converts a wire string back into an application value.
// Integer types decode to int64, floats to float64, dates to time.Time and
// jsonb to the decoded []any or map[string]any.
func decodeValue(s string, castAs DataType) (any, error) {
	switch castAs {
	case TypeText:
		return s, nil
	case TypeBoolean:
		// Lenient by contract: exactly "true" decodes to true, every other
		// string decodes to false without error.
		return s == "true", nil
	case TypeSmallInt, TypeInt, TypeBigInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, conversionErrf(castAs, err, "parse integer %q", s)
		}
		return n, nil
	case TypeReal, TypeDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, conversionErrf(castAs, err, "parse float %q", s)
		}
		return f, nil
	case TypeDate:
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, conversionErrf(castAs, err, "parse date %q", s)
		}
		return t, nil
	case TypeJsonb:
		return fromJSONString(s)
	default:
		return nil, conversionErrf(castAs, nil, "unrecognized data type %q", string(castAs))
	}
}

func encodeText(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.Format(dateLayout), nil
	case json.Number:
		return v.String(), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 64), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	}
	if n, ok := asInt64(value); ok {
		return strconv.FormatInt(n, 10), nil
	}
	return "", conversionErrf(TypeText, nil, "cannot represent %T as text", value)
}

func encodeBoolean(value any) (string, error) {
	switch v := value.(type) {
	case bool:
		return strconv.FormatBool(v), nil
	case string:
		if v == "true" || v == "false" {
			return v, nil
		}
		return "", conversionErrf(TypeBoolean, nil, "string %q is not a boolean literal", v)
	}
	return "", conversionErrf(TypeBoolean, nil, "cannot represent %T as boolean", value)
}

// encodeInteger formats the full signed 64-bit range on strconv paths.
// Floats that carry an integral value are accepted because JSON decoding
// yields float64 for every number.
func encodeInteger(value any, castAs DataType) (string, error) {
	if n, ok := asInt64(value); ok {
		return strconv.FormatInt(n, 10), nil
	}
	switch v := value.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return "", conversionErrf(castAs, err, "number %q is not an integer", v.String())
		}
		return strconv.FormatInt(n, 10), nil
	case float32:
		return integralFloatString(float64(v), castAs)
	case float64:
		return integralFloatString(v, castAs)
	case string:
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			return "", conversionErrf(castAs, err, "string %q is not an integer", v)
		}
		return v, nil
	}
	return "", conversionErrf(castAs, nil, "cannot represent %T as integer", value)
}

func integralFloatString(f float64, castAs DataType) (string, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f > math.MaxInt64 {
		return "", conversionErrf(castAs, nil, "float %v is not an integer", f)
	}
	return strconv.FormatInt(int64(f), 10), nil
}

func encodeFloat(value any, castAs DataType) (string, error) {
	switch v := value.(type) {
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 64), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return "", conversionErrf(castAs, err, "number %q is not a float", v.String())
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case string:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return "", conversionErrf(castAs, err, "string %q is not a float", v)
		}
		return v, nil
	}
	if n, ok := asInt64(value); ok {
		return strconv.FormatFloat(float64(n), 'g', -1, 64), nil
	}
	return "", conversionErrf(castAs, nil, "cannot represent %T as float", value)
}

// encodeDate accepts a time.Time or an ISO-8601 string and normalizes both to
// the wire profile.
func encodeDate(value any) (string, error) {
	switch v := value.(type) {
	case time.Time:
		return v.Format(dateLayout), nil
	case *time.Time:
		if v == nil {
			return "", conversionErrf(TypeDate, nil, "nil time")
		}
		return v.Format(dateLayout), nil
	case string:
		t, err := parseDateString(v)
		if err != nil {
			return "", err
		}
		return t.Format(dateLayout), nil
	}
	return "", conversionErrf(TypeDate, nil, "cannot represent %T as date", value)
}

// parseDateString accepts the wire profile first, then the common RFC 3339
// forms callers hold dates in.
func parseDateString(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, conversionErrf(TypeDate, err, "parse date %q", s)
	}
	return t, nil
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return checkedUint64(uint64(v))
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return checkedUint64(v)
	}
	return 0, false
}

func checkedUint64(v uint64) (int64, bool) {
	if v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

// toJSONString encodes a structured value (slice, array, map, or struct) as
// JSON text. Bare scalars are rejected: the engine's jsonb lane and the
// configuration payloads both require an object or array root.
func toJSONString(value any) (string, error) {
	if !isStructured(value) {
		return "", conversionErrf(TypeJsonb, nil, "value of type %T is not an object or array", value)
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", conversionErrf(TypeJsonb, err, "encode json")
	}
	return string(b), nil
}

// fromJSONString decodes JSON text and requires the root to be an array or an
// object. Scalar roots are rejected.
func fromJSONString(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, conversionErrf(TypeJsonb, err, "decode json")
	}
	switch v.(type) {
	case []any, map[string]any:
		return v, nil
	}
	return nil, conversionErrf(TypeJsonb, nil, "json root must be an object or array, got %T", v)
}

func isStructured(value any) bool {
	switch value.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, time.Time:
		return false
	}
	switch rv := reflect.ValueOf(value); rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		return true
	case reflect.Pointer:
		if rv.IsNil() {
			return false
		}
		return isStructured(rv.Elem().Interface())
	}
	return false
}

// marshalContext serializes an encryption context for the engine. A nil or
// empty context is absent on the wire.
func marshalContext(ctx map[string]any) ([]byte, error) {
	if len(ctx) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(ctx)
	if err != nil {
		return nil, conversionErrf("", err, "encode context")
	}
	return b, nil
}
