package protocol

import (
	"bytes"
	"math"
	"sort"
	"strings"
	"time"
)

// CompareValues is a total order over all Values, used to produce
// deterministic, cursor-resumable query orderings. Variants order on their
// type ordinal first (null < bool < numbers < timestamp < string < bytes <
// reference < geopoint < array < map), and within a common ordinal by the
// rules below. Integers and doubles share an ordinal and compare
// numerically, with NaN ordering before all other numbers.
func CompareValues(a, b Value) int {
	if ta, tb := a.typeOrder(), b.typeOrder(); ta != tb {
		return compareInt(ta, tb)
	}

	switch av := a.(type) {
	case NullValue:
		return 0
	case BoolValue:
		var bv = b.(BoolValue)
		if av == bv {
			return 0
		} else if !av {
			return -1
		}
		return 1
	case IntegerValue, DoubleValue:
		return compareNumbers(a, b)
	case TimeValue:
		var at, bt = time.Time(av), time.Time(b.(TimeValue))
		if at.Before(bt) {
			return -1
		} else if at.After(bt) {
			return 1
		}
		return 0
	case StringValue:
		return strings.Compare(string(av), string(b.(StringValue)))
	case BytesValue:
		return bytes.Compare(av, b.(BytesValue))
	case RefValue:
		return strings.Compare(string(av), string(b.(RefValue)))
	case GeoPointValue:
		var bv = b.(GeoPointValue)
		if c := compareFloat(av.Latitude, bv.Latitude); c != 0 {
			return c
		}
		return compareFloat(av.Longitude, bv.Longitude)
	case ArrayValue:
		var bv = b.(ArrayValue)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := CompareValues(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return compareInt(len(av), len(bv))
	case MapValue:
		return compareMaps(av, b.(MapValue))
	default:
		panic("invalid Value variant")
	}
}

// ValuesComparable returns whether |a| and |b| share a type class, and so
// order meaningfully relative to one another. Binary field filters over
// values of differing classes never match (they are not an error).
func ValuesComparable(a, b Value) bool {
	return a.typeOrder() == b.typeOrder()
}

// ValuesEqual returns whether |a| and |b| share a type class and compare as
// equal. An integer and a double of the same numeric value are equal.
func ValuesEqual(a, b Value) bool {
	return ValuesComparable(a, b) && CompareValues(a, b) == 0
}

func compareNumbers(a, b Value) int {
	// Integer-to-integer comparison avoids float64 truncation of large int64s.
	if ai, ok := a.(IntegerValue); ok {
		if bi, ok := b.(IntegerValue); ok {
			return compareInt64(int64(ai), int64(bi))
		}
	}
	return compareFloat(numberAsFloat(a), numberAsFloat(b))
}

func numberAsFloat(v Value) float64 {
	switch vv := v.(type) {
	case IntegerValue:
		return float64(vv)
	case DoubleValue:
		return float64(vv)
	default:
		panic("not a numeric Value")
	}
}

// compareFloat orders NaN before all other values, and NaN equal to NaN.
func compareFloat(a, b float64) int {
	var an, bn = math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareMaps orders on sorted key sequence, breaking key ties by the
// corresponding values, and finally by field count.
func compareMaps(a, b MapValue) int {
	var ak, bk = sortedKeys(a), sortedKeys(b)

	for i := 0; i < len(ak) && i < len(bk); i++ {
		if c := strings.Compare(ak[i], bk[i]); c != 0 {
			return c
		}
		if c := CompareValues(a[ak[i]], b[bk[i]]); c != 0 {
			return c
		}
	}
	return compareInt(len(ak), len(bk))
}

func sortedKeys(m MapValue) []string {
	var keys = make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func compareInt(a, b int) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func compareInt64(a, b int64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
