package protocol

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Value is a typed, recursively nested document field value. It is a closed
// sum type: exactly one variant underlies each instance, enforced by
// construction (there is no "unset" or multi-variant state to misuse).
// Values form trees; they are never cyclic.
type Value interface {
	// Validate returns an error if the Value is not well-formed.
	Validate() error
	// typeOrder returns the variant's ordinal in the cross-type total order.
	typeOrder() int
}

type (
	// NullValue is the null Value.
	NullValue struct{}
	// BoolValue is a boolean Value.
	BoolValue bool
	// IntegerValue is a 64-bit signed integer Value. It is string-encoded on
	// the wire to preserve precision across JSON intermediaries.
	IntegerValue int64
	// DoubleValue is a 64-bit floating point Value. NaN and infinities are
	// representable (and string-encoded on the wire).
	DoubleValue float64
	// TimeValue is a timestamp Value.
	TimeValue time.Time
	// StringValue is a string Value.
	StringValue string
	// BytesValue is an opaque byte string Value.
	BytesValue []byte
	// RefValue is a reference to another document, as its full resource path.
	RefValue string
	// GeoPointValue is a geographic point Value.
	GeoPointValue struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	// ArrayValue is an ordered sequence of Values. Arrays may not directly
	// nest other arrays.
	ArrayValue []Value
	// MapValue maps field names to Values. Insertion order is irrelevant.
	MapValue map[string]Value
)

// Variant ordinals of the cross-type total order. Numerics (integer and
// double) share an ordinal and compare numerically with one another.
const (
	typeOrderNull = iota
	typeOrderBool
	typeOrderNumber
	typeOrderTime
	typeOrderString
	typeOrderBytes
	typeOrderRef
	typeOrderGeoPoint
	typeOrderArray
	typeOrderMap
)

func (NullValue) typeOrder() int     { return typeOrderNull }
func (BoolValue) typeOrder() int     { return typeOrderBool }
func (IntegerValue) typeOrder() int  { return typeOrderNumber }
func (DoubleValue) typeOrder() int   { return typeOrderNumber }
func (TimeValue) typeOrder() int     { return typeOrderTime }
func (StringValue) typeOrder() int   { return typeOrderString }
func (BytesValue) typeOrder() int    { return typeOrderBytes }
func (RefValue) typeOrder() int      { return typeOrderRef }
func (GeoPointValue) typeOrder() int { return typeOrderGeoPoint }
func (ArrayValue) typeOrder() int    { return typeOrderArray }
func (MapValue) typeOrder() int      { return typeOrderMap }

// Validate returns an error if the Value is not well-formed.
func (NullValue) Validate() error    { return nil }
func (BoolValue) Validate() error    { return nil }
func (IntegerValue) Validate() error { return nil }
func (DoubleValue) Validate() error  { return nil }
func (StringValue) Validate() error  { return nil }
func (BytesValue) Validate() error   { return nil }

// Validate returns an error if the timestamp is the zero time.
func (v TimeValue) Validate() error {
	if time.Time(v).IsZero() {
		return NewValidationError("expected a non-zero timestamp")
	}
	return nil
}

// Validate returns an error if the reference is not a valid document path.
func (v RefValue) Validate() error {
	if err := ValidateDocumentPath(string(v)); err != nil {
		return ExtendContext(err, "Reference")
	}
	return nil
}

// Validate returns an error if the point is outside of latitude and
// longitude bounds.
func (v GeoPointValue) Validate() error {
	if v.Latitude < -90 || v.Latitude > 90 {
		return NewValidationError("invalid Latitude (%v; expected -90 <= Latitude <= 90)", v.Latitude)
	} else if v.Longitude < -180 || v.Longitude > 180 {
		return NewValidationError("invalid Longitude (%v; expected -180 <= Longitude <= 180)", v.Longitude)
	}
	return nil
}

// Validate returns an error if any element is invalid, or is itself an array.
func (v ArrayValue) Validate() error {
	for i, e := range v {
		if e == nil {
			return NewValidationError("element %d is nil", i)
		} else if _, ok := e.(ArrayValue); ok {
			return NewValidationError("element %d: arrays may not directly nest arrays", i)
		} else if err := e.Validate(); err != nil {
			return ExtendContext(err, "element %d", i)
		}
	}
	return nil
}

// Validate returns an error if any field name is empty or any field Value
// is invalid.
func (v MapValue) Validate() error {
	for name, e := range v {
		if name == "" {
			return NewValidationError("empty field name")
		} else if e == nil {
			return NewValidationError("field %s is nil", name)
		} else if err := e.Validate(); err != nil {
			return ExtendContext(err, "field %s", name)
		}
	}
	return nil
}

// valueEnvelope is the wire form of a Value: exactly one member is set.
// Integers and doubles are string-encoded (doubles additionally so that
// NaN and infinities survive JSON).
type valueEnvelope struct {
	Null      *bool                      `json:"null,omitempty"`
	Bool      *bool                      `json:"bool,omitempty"`
	Integer   *string                    `json:"integer,omitempty"`
	Double    *string                    `json:"double,omitempty"`
	Time      *time.Time                 `json:"time,omitempty"`
	String    *string                    `json:"string,omitempty"`
	Bytes     *[]byte                    `json:"bytes,omitempty"`
	Reference *string                    `json:"reference,omitempty"`
	GeoPoint  *GeoPointValue             `json:"geoPoint,omitempty"`
	Array     *[]json.RawMessage         `json:"array,omitempty"`
	Map       *map[string]json.RawMessage `json:"map,omitempty"`
}

// MarshalJSON implementations of each variant emit a single-member envelope.

func (NullValue) MarshalJSON() ([]byte, error) {
	var t = true
	return json.Marshal(valueEnvelope{Null: &t})
}
func (v BoolValue) MarshalJSON() ([]byte, error) {
	var b = bool(v)
	return json.Marshal(valueEnvelope{Bool: &b})
}
func (v IntegerValue) MarshalJSON() ([]byte, error) {
	var s = strconv.FormatInt(int64(v), 10)
	return json.Marshal(valueEnvelope{Integer: &s})
}
func (v DoubleValue) MarshalJSON() ([]byte, error) {
	var s string
	switch {
	case math.IsNaN(float64(v)):
		s = "NaN"
	case math.IsInf(float64(v), 1):
		s = "Infinity"
	case math.IsInf(float64(v), -1):
		s = "-Infinity"
	default:
		s = strconv.FormatFloat(float64(v), 'g', -1, 64)
	}
	return json.Marshal(valueEnvelope{Double: &s})
}
func (v TimeValue) MarshalJSON() ([]byte, error) {
	var t = time.Time(v)
	return json.Marshal(valueEnvelope{Time: &t})
}
func (v StringValue) MarshalJSON() ([]byte, error) {
	var s = string(v)
	return json.Marshal(valueEnvelope{String: &s})
}
func (v BytesValue) MarshalJSON() ([]byte, error) {
	var b = []byte(v)
	return json.Marshal(valueEnvelope{Bytes: &b})
}
func (v RefValue) MarshalJSON() ([]byte, error) {
	var s = string(v)
	return json.Marshal(valueEnvelope{Reference: &s})
}
func (v GeoPointValue) MarshalJSON() ([]byte, error) {
	// Alias type drops this MarshalJSON method so encoding the envelope
	// does not re-enter it.
	type geoPointPlain GeoPointValue
	var gp = geoPointPlain(v)
	return json.Marshal(struct {
		GeoPoint *geoPointPlain `json:"geoPoint,omitempty"`
	}{GeoPoint: &gp})
}
func (v ArrayValue) MarshalJSON() ([]byte, error) {
	var raw = make([]json.RawMessage, len(v))
	for i, e := range v {
		var b, err = json.Marshal(e)
		if err != nil {
			return nil, err
		}
		raw[i] = b
	}
	return json.Marshal(valueEnvelope{Array: &raw})
}
func (v MapValue) MarshalJSON() ([]byte, error) {
	var raw = make(map[string]json.RawMessage, len(v))
	for name, e := range v {
		var b, err = json.Marshal(e)
		if err != nil {
			return nil, err
		}
		raw[name] = b
	}
	return json.Marshal(valueEnvelope{Map: &raw})
}

// UnmarshalJSON decodes an ArrayValue from its envelope form.
func (v *ArrayValue) UnmarshalJSON(data []byte) error {
	var dec, err = UnmarshalValue(data)
	if err != nil {
		return err
	}
	var arr, ok = dec.(ArrayValue)
	if !ok {
		return NewValidationError("expected an array Value")
	}
	*v = arr
	return nil
}

// UnmarshalJSON decodes a MapValue from its envelope form.
func (v *MapValue) UnmarshalJSON(data []byte) error {
	var dec, err = UnmarshalValue(data)
	if err != nil {
		return err
	}
	var m, ok = dec.(MapValue)
	if !ok {
		return NewValidationError("expected a map Value")
	}
	*v = m
	return nil
}

// UnmarshalValue decodes a Value of any variant from its envelope form.
func UnmarshalValue(data []byte) (Value, error) {
	var env valueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch {
	case env.Null != nil:
		return NullValue{}, nil
	case env.Bool != nil:
		return BoolValue(*env.Bool), nil
	case env.Integer != nil:
		var i, err = strconv.ParseInt(*env.Integer, 10, 64)
		if err != nil {
			return nil, NewValidationError("invalid integer Value (%s)", *env.Integer)
		}
		return IntegerValue(i), nil
	case env.Double != nil:
		switch *env.Double {
		case "NaN":
			return DoubleValue(math.NaN()), nil
		case "Infinity":
			return DoubleValue(math.Inf(1)), nil
		case "-Infinity":
			return DoubleValue(math.Inf(-1)), nil
		}
		var f, err = strconv.ParseFloat(*env.Double, 64)
		if err != nil {
			return nil, NewValidationError("invalid double Value (%s)", *env.Double)
		}
		return DoubleValue(f), nil
	case env.Time != nil:
		return TimeValue(*env.Time), nil
	case env.String != nil:
		return StringValue(*env.String), nil
	case env.Bytes != nil:
		return BytesValue(*env.Bytes), nil
	case env.Reference != nil:
		return RefValue(*env.Reference), nil
	case env.GeoPoint != nil:
		return *env.GeoPoint, nil
	case env.Array != nil:
		var arr = make(ArrayValue, len(*env.Array))
		for i, raw := range *env.Array {
			var e, err = UnmarshalValue(raw)
			if err != nil {
				return nil, ExtendContext(err, "element %d", i)
			}
			arr[i] = e
		}
		return arr, nil
	case env.Map != nil:
		var m = make(MapValue, len(*env.Map))
		for name, raw := range *env.Map {
			var e, err = UnmarshalValue(raw)
			if err != nil {
				return nil, ExtendContext(err, "field %s", name)
			}
			m[name] = e
		}
		return m, nil
	default:
		return nil, NewValidationError("no Value variant is set")
	}
}

// CopyValue returns a deep copy of |v|. Documents returned from the store
// are copied so that callers may never mutate stored state.
func CopyValue(v Value) Value {
	switch vv := v.(type) {
	case BytesValue:
		return BytesValue(append([]byte(nil), vv...))
	case ArrayValue:
		var out = make(ArrayValue, len(vv))
		for i, e := range vv {
			out[i] = CopyValue(e)
		}
		return out
	case MapValue:
		var out = make(MapValue, len(vv))
		for name, e := range vv {
			out[name] = CopyValue(e)
		}
		return out
	default:
		// All other variants have value semantics.
		return v
	}
}
