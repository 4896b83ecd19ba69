package protect

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// DataType is the wire data type tag exchanged with the encryption engine.
// It is distinct from Go's native types: the engine stores and indexes values
// by these tags, and the codec converts between Go values and the tag's
// canonical string form.
type DataType string

// The closed set of wire data types.
const (
	TypeText     DataType = "text"
	TypeBoolean  DataType = "boolean"
	TypeSmallInt DataType = "small_int"
	TypeInt      DataType = "int"
	TypeBigInt   DataType = "big_int"
	TypeReal     DataType = "real"
	TypeDouble   DataType = "double"
	TypeDate     DataType = "date"
	TypeJsonb    DataType = "jsonb"
)

// Signed integer wire type boundaries, matching SQL column widths.
const (
	smallIntMin = -32768
	smallIntMax = 32767
	intMin      = -2147483648
	intMax      = 2147483647
)

// Single precision probe constants. The detection heuristic is part of the
// public contract: callers depend on where the real/double boundary falls, so
// these stay as written rather than the exact IEEE-754 limits.
const (
	singleMaxMagnitude = 3.4e38
	singleMinMagnitude = 1.18e-38
	singleProbeDigits  = 7
	singleEpsilon      = 1.0e-7
)

// parseDataType returns the DataType for a wire tag, or false if the tag is
// not one of the recognized values.
func parseDataType(s string) (DataType, bool) {
	switch DataType(s) {
	case TypeText, TypeBoolean, TypeSmallInt, TypeInt, TypeBigInt,
		TypeReal, TypeDouble, TypeDate, TypeJsonb:
		return DataType(s), true
	}
	return "", false
}

// DetectDataType infers the wire data type for an application value.
// The second result is false when the value has no wire representation
// (nil, nil pointers, channels, funcs, and structs other than time.Time);
// such values are never sent to the engine.
//
// Integers select the narrowest signed wire type that contains the value.
// Floats select between real and double by a precision probe: a value keeps
// single precision only if its magnitude fits the single range, its decimal
// form needs at most 7 fractional digits, and a float32 round trip moves it
// by less than 1e-7.
func DetectDataType(value any) (DataType, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return TypeText, true
	case []byte:
		// Byte slices take the text lane; as jsonb they would marshal to a
		// base64 scalar, which the jsonb codec rejects.
		return TypeText, true
	case bool:
		return TypeBoolean, true
	case time.Time:
		return TypeDate, true
	case *time.Time:
		if v == nil {
			return "", false
		}
		return TypeDate, true
	case int:
		return detectIntType(int64(v)), true
	case int8:
		return detectIntType(int64(v)), true
	case int16:
		return detectIntType(int64(v)), true
	case int32:
		return detectIntType(int64(v)), true
	case int64:
		return detectIntType(v), true
	case uint:
		return detectUintType(uint64(v))
	case uint8:
		return detectIntType(int64(v)), true
	case uint16:
		return detectIntType(int64(v)), true
	case uint32:
		return detectIntType(int64(v)), true
	case uint64:
		return detectUintType(v)
	case float32:
		return detectFloatType(float64(v)), true
	case float64:
		return detectFloatType(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return detectIntType(i), true
		}
		if f, err := v.Float64(); err == nil {
			return detectFloatType(f), true
		}
		return "", false
	}

	// Structured values (slices, arrays, maps) are stored as jsonb.
	// Everything else has no wire representation.
	switch rv := reflect.ValueOf(value); rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return TypeJsonb, true
	case reflect.Pointer:
		if rv.IsNil() {
			return "", false
		}
		return DetectDataType(rv.Elem().Interface())
	}
	return "", false
}

func detectIntType(v int64) DataType {
	switch {
	case v >= smallIntMin && v <= smallIntMax:
		return TypeSmallInt
	case v >= intMin && v <= intMax:
		return TypeInt
	default:
		return TypeBigInt
	}
}

func detectUintType(v uint64) (DataType, bool) {
	if v > math.MaxInt64 {
		return "", false
	}
	return detectIntType(int64(v)), true
}

// detectFloatType picks the narrowest float wire type that does not lose
// precision. Zero is always real. Magnitudes outside the single precision
// range are double. Otherwise the value is probed twice: by counting its
// fractional decimal digits, then by a float32 round trip.
func detectFloatType(v float64) DataType {
	if v == 0 {
		return TypeReal
	}
	abs := math.Abs(v)
	if abs > singleMaxMagnitude || abs < singleMinMagnitude {
		return TypeDouble
	}
	if fractionalDigits(v) > singleProbeDigits {
		return TypeDouble
	}
	if math.Abs(float64(float32(v))-v) >= singleEpsilon {
		return TypeDouble
	}
	return TypeReal
}

// fractionalDigits formats v to 8 decimal places, trims trailing zeros, and
// returns the number of fractional digits that remain.
func fractionalDigits(v float64) int {
	s := strconv.FormatFloat(v, 'f', 8, 64)
	s = strings.TrimRight(s, "0")
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	return len(s) - dot - 1
}

// defaultIndexes returns the type-driven default index set for dt. The
// returned map is freshly allocated; callers may take ownership.
func defaultIndexes(dt DataType) map[string]any {
	switch dt {
	case TypeText:
		return map[string]any{IndexUnique: map[string]any{}, IndexOre: map[string]any{}}
	case TypeBoolean:
		return map[string]any{IndexUnique: map[string]any{}}
	case TypeSmallInt, TypeInt, TypeBigInt, TypeReal, TypeDouble, TypeDate:
		return map[string]any{IndexOre: map[string]any{}}
	default:
		// jsonb carries no default index.
		return map[string]any{}
	}
}
