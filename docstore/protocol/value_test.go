package protocol_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pb "go.scrivodb.dev/core/docstore/protocol"
)

func TestValueCrossTypeOrdering(t *testing.T) {
	// One representative of each variant, in expected total order.
	var seq = []pb.Value{
		pb.NullValue{},
		pb.BoolValue(false),
		pb.BoolValue(true),
		pb.DoubleValue(math.NaN()),
		pb.IntegerValue(-5),
		pb.DoubleValue(-4.5),
		pb.IntegerValue(3),
		pb.DoubleValue(3.5),
		pb.DoubleValue(math.Inf(1)),
		pb.TimeValue(time.Unix(100, 0)),
		pb.TimeValue(time.Unix(200, 0)),
		pb.StringValue("a"),
		pb.StringValue("b"),
		pb.BytesValue("a"),
		pb.RefValue("databases/db/documents/users/alice"),
		pb.GeoPointValue{Latitude: 1, Longitude: 2},
		pb.GeoPointValue{Latitude: 1, Longitude: 3},
		pb.ArrayValue{pb.IntegerValue(1)},
		pb.ArrayValue{pb.IntegerValue(1), pb.IntegerValue(2)},
		pb.MapValue{"a": pb.IntegerValue(1)},
		pb.MapValue{"b": pb.IntegerValue(1)},
	}
	for i := 0; i+1 < len(seq); i++ {
		require.Equal(t, -1, pb.CompareValues(seq[i], seq[i+1]),
			"expected %#v < %#v", seq[i], seq[i+1])
		require.Equal(t, 1, pb.CompareValues(seq[i+1], seq[i]))
	}
	for _, v := range seq {
		require.Zero(t, pb.CompareValues(v, v))
	}
}

func TestValueNumericComparisons(t *testing.T) {
	// Integers and doubles compare numerically with one another.
	require.Zero(t, pb.CompareValues(pb.IntegerValue(3), pb.DoubleValue(3.0)))
	require.True(t, pb.ValuesEqual(pb.IntegerValue(3), pb.DoubleValue(3.0)))
	require.False(t, pb.ValuesEqual(pb.IntegerValue(3), pb.StringValue("3")))

	// Large int64s compare exactly, without float truncation.
	var a, b = pb.IntegerValue(math.MaxInt64), pb.IntegerValue(math.MaxInt64 - 1)
	require.Equal(t, 1, pb.CompareValues(a, b))

	// NaN orders before all other numbers, and equal to itself.
	var nan = pb.DoubleValue(math.NaN())
	require.Equal(t, -1, pb.CompareValues(nan, pb.DoubleValue(math.Inf(-1))))
	require.Zero(t, pb.CompareValues(nan, nan))
}

func TestValueWireRoundTrip(t *testing.T) {
	var fields = pb.MapValue{
		"null":   pb.NullValue{},
		"bool":   pb.BoolValue(true),
		"int":    pb.IntegerValue(math.MaxInt64),
		"nan":    pb.DoubleValue(math.NaN()),
		"inf":    pb.DoubleValue(math.Inf(-1)),
		"double": pb.DoubleValue(1.25),
		"time":   pb.TimeValue(time.Unix(1000, 2000).UTC()),
		"str":    pb.StringValue("hello"),
		"bytes":  pb.BytesValue("raw"),
		"ref":    pb.RefValue("databases/db/documents/users/alice"),
		"geo":    pb.GeoPointValue{Latitude: 12.5, Longitude: -70},
		"arr":    pb.ArrayValue{pb.IntegerValue(1), pb.StringValue("two")},
		"map":    pb.MapValue{"nested": pb.IntegerValue(2)},
	}
	var b, err = json.Marshal(fields)
	require.NoError(t, err)

	var out pb.MapValue
	require.NoError(t, json.Unmarshal(b, &out))

	// NaN never compares equal under require.Equal; check it separately.
	var nan, ok = out["nan"].(pb.DoubleValue)
	require.True(t, ok)
	require.True(t, math.IsNaN(float64(nan)))

	delete(fields, "nan")
	delete(out, "nan")
	require.Equal(t, fields, out)
}

func TestValueValidationCases(t *testing.T) {
	// Arrays may not directly nest arrays.
	var err = pb.ArrayValue{pb.ArrayValue{pb.IntegerValue(1)}}.Validate()
	require.EqualError(t, err, "element 0: arrays may not directly nest arrays")

	// An array nested through a map is fine.
	require.NoError(t, pb.ArrayValue{
		pb.MapValue{"inner": pb.ArrayValue{pb.IntegerValue(1)}},
	}.Validate())

	require.EqualError(t, pb.MapValue{"": pb.IntegerValue(1)}.Validate(),
		"empty field name")
	require.EqualError(t, pb.GeoPointValue{Latitude: 91}.Validate(),
		"invalid Latitude (91; expected -90 <= Latitude <= 90)")
	require.EqualError(t, pb.TimeValue(time.Time{}).Validate(),
		"expected a non-zero timestamp")
	require.Error(t, pb.RefValue("not/a/document").Validate())
}

func TestFieldPathOperations(t *testing.T) {
	var fields = pb.MapValue{
		"name": pb.StringValue("alice"),
		"address": pb.MapValue{
			"city": pb.StringValue("berlin"),
			"zip":  pb.StringValue("10115"),
		},
	}

	var v, ok = pb.GetField(fields, "address.city")
	require.True(t, ok)
	require.Equal(t, pb.StringValue("berlin"), v)

	_, ok = pb.GetField(fields, "address.city.block")
	require.False(t, ok)
	_, ok = pb.GetField(fields, "missing")
	require.False(t, ok)

	pb.SetField(fields, "address.country", pb.StringValue("de"))
	v, ok = pb.GetField(fields, "address.country")
	require.True(t, ok)
	require.Equal(t, pb.StringValue("de"), v)

	pb.DeleteField(fields, "address.zip")
	_, ok = pb.GetField(fields, "address.zip")
	require.False(t, ok)

	var masked = pb.ApplyMask(fields, &pb.DocumentMask{
		FieldPaths: []string{"address.city", "missing"},
	})
	require.Equal(t, pb.MapValue{
		"address": pb.MapValue{"city": pb.StringValue("berlin")},
	}, masked)
}
