// Package query compiles and evaluates StructuredQueries against a document
// snapshot. Evaluation produces a deterministic, cursor-resumable total
// order: results sort on the query's explicit orderBy keys with ascending
// document path as an implicit final key.
package query

import (
	"math"
	"sort"
	"strings"
	"time"

	pb "go.scrivodb.dev/core/docstore/protocol"
)

// pathField is the implicit final sort key: the document's path.
const pathField = "__name__"

// Source is a consistent snapshot of documents, iterable in path order.
// storage.Store satisfies Source.
type Source interface {
	Ascend(prefix string, readTime time.Time, fn func(doc pb.Document) bool)
}

// Query is a compiled StructuredQuery bound to a parent path.
type Query struct {
	parent  string
	spec    pb.StructuredQuery
	// orderBy is the effective sort key list: the explicit keys of the
	// query, extended with the implicit ascending path key.
	orderBy []pb.Order
}

// Result is the evaluation of a Query against a Source.
type Result struct {
	// Documents matching the query, in query order, after projection.
	Documents []pb.Document
	// SkippedResults is the count of matched documents passed over by the
	// query offset before any were yielded.
	SkippedResults int32
	// ReadTime is the snapshot time of the evaluation.
	ReadTime time.Time
}

// Compile validates |spec| against |parent| and returns an evaluable Query.
func Compile(parent string, spec *pb.StructuredQuery) (*Query, error) {
	if err := pb.ValidateParentPath(parent); err != nil {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument, "parent: %s", err)
	} else if err = spec.Validate(); err != nil {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument, "query: %s", err)
	}

	var q = &Query{parent: parent, spec: *spec}
	q.orderBy = append(q.orderBy, spec.OrderBy...)
	q.orderBy = append(q.orderBy, pb.Order{Field: pathField, Direction: pb.Ascending})

	// A cursor carries one value per explicit orderBy key, and may carry one
	// further value bounding the implicit path key.
	for _, c := range []*pb.Cursor{spec.StartAt, spec.EndAt} {
		if c == nil {
			continue
		}
		if n := len(c.Values); n != len(spec.OrderBy) && n != len(spec.OrderBy)+1 {
			return nil, pb.NewStatusError(pb.StatusInvalidArgument,
				"cursor arity %d does not match orderBy arity %d", n, len(spec.OrderBy))
		}
	}
	return q, nil
}

// Prefix returns the path prefix which bounds the Query's document source.
func (q *Query) Prefix() string {
	if q.spec.From[0].AllDescendants {
		return q.parent + "/"
	}
	return q.parent + "/" + q.spec.From[0].CollectionID + "/"
}

// Matches returns whether |doc| is selected by the Query's collection
// selector and filters, and carries every explicit orderBy field.
// It does not consider cursors, offset or limit.
func (q *Query) Matches(doc *pb.Document) bool {
	var sel = q.spec.From[0]

	if !strings.HasPrefix(doc.Name, q.parent+"/") {
		return false
	} else if pb.CollectionOfDocument(doc.Name) != sel.CollectionID {
		return false
	} else if !sel.AllDescendants && strings.ContainsRune(
		strings.TrimPrefix(doc.Name, q.parent+"/"+sel.CollectionID+"/"), '/') {
		return false
	}

	if q.spec.Where != nil && !evalFilter(q.spec.Where, doc) {
		return false
	}
	// Documents lacking an explicit orderBy field have no place in the
	// query's total order, and are excluded.
	for _, o := range q.spec.OrderBy {
		if _, ok := pb.GetField(doc.Fields, o.Field); !ok {
			return false
		}
	}
	return true
}

// Evaluate runs the Query against |src| as of |readTime|.
func (q *Query) Evaluate(src Source, readTime time.Time) (*Result, error) {
	var matched []pb.Document

	src.Ascend(q.Prefix(), readTime, func(doc pb.Document) bool {
		if q.Matches(&doc) {
			matched = append(matched, doc)
		}
		return true
	})

	sort.SliceStable(matched, func(i, j int) bool {
		return q.compareDocs(&matched[i], &matched[j]) < 0
	})

	// Apply cursor bounds over the sorted sequence.
	var bounded = matched[:0]
	for i := range matched {
		var doc = &matched[i]
		if c := q.spec.StartAt; c != nil {
			// startAt is inclusive when Before is true.
			if cmp := q.compareToCursor(doc, c); cmp < 0 || (cmp == 0 && !c.Before) {
				continue
			}
		}
		if c := q.spec.EndAt; c != nil {
			// endAt is inclusive when Before is false.
			if cmp := q.compareToCursor(doc, c); cmp > 0 || (cmp == 0 && c.Before) {
				break
			}
		}
		bounded = append(bounded, *doc)
	}

	var result = &Result{ReadTime: readTime}

	// Offset skips matched documents, counted into SkippedResults.
	if off := int(q.spec.Offset); off < len(bounded) {
		result.SkippedResults = q.spec.Offset
		bounded = bounded[off:]
	} else {
		result.SkippedResults = int32(len(bounded))
		bounded = nil
	}
	if q.spec.Limit != nil && int(*q.spec.Limit) < len(bounded) {
		bounded = bounded[:*q.spec.Limit]
	}

	for i := range bounded {
		result.Documents = append(result.Documents, q.project(bounded[i]))
	}
	return result, nil
}

// OrderKey returns |doc|'s values of the Query's explicit orderBy keys plus
// the implicit path key, suitable as a resumption cursor at |doc|.
func (q *Query) OrderKey(doc *pb.Document) []pb.Value {
	var key = make([]pb.Value, 0, len(q.orderBy))
	for _, o := range q.spec.OrderBy {
		var v, _ = pb.GetField(doc.Fields, o.Field)
		key = append(key, v)
	}
	return append(key, pb.RefValue(doc.Name))
}

// compareDocs orders two matched documents by the effective orderBy keys.
func (q *Query) compareDocs(a, b *pb.Document) int {
	for _, o := range q.orderBy {
		var av, bv = orderField(a, o.Field), orderField(b, o.Field)
		if c := pb.CompareValues(av, bv); c != 0 {
			if o.Direction == pb.Descending {
				return -c
			}
			return c
		}
	}
	return 0
}

// compareToCursor orders |doc| relative to |c| in the query's total order:
// negative if the document precedes the cursor position.
func (q *Query) compareToCursor(doc *pb.Document, c *pb.Cursor) int {
	for i, cv := range c.Values {
		var o = q.orderBy[i]
		var dv = orderField(doc, o.Field)

		if cmp := pb.CompareValues(dv, cv); cmp != 0 {
			if o.Direction == pb.Descending {
				return -cmp
			}
			return cmp
		}
	}
	return 0
}

func orderField(doc *pb.Document, field string) pb.Value {
	if field == pathField {
		return pb.RefValue(doc.Name)
	}
	var v, _ = pb.GetField(doc.Fields, field)
	return v
}

func (q *Query) project(doc pb.Document) pb.Document {
	if q.spec.Select == nil {
		return doc
	}
	doc.Fields = pb.ApplyMask(doc.Fields, &pb.DocumentMask{FieldPaths: q.spec.Select.Fields})
	return doc
}

// evalFilter evaluates |f| against |doc|. Binary comparisons across
// incompatible value types never match; this is not an error.
func evalFilter(f pb.Filter, doc *pb.Document) bool {
	switch ff := f.(type) {
	case pb.CompositeFilter:
		for _, sub := range ff.Filters {
			if !evalFilter(sub, doc) {
				return false
			}
		}
		return true
	case pb.FieldFilter:
		return evalFieldFilter(ff, doc)
	case pb.UnaryFilter:
		return evalUnaryFilter(ff, doc)
	default:
		return false
	}
}

func evalFieldFilter(f pb.FieldFilter, doc *pb.Document) bool {
	var fv, ok = pb.GetField(doc.Fields, f.Field)
	if !ok {
		return false
	}

	if f.Op == pb.ArrayContains {
		var arr, isArr = fv.(pb.ArrayValue)
		if !isArr {
			return false
		}
		for _, e := range arr {
			if !isNaNValue(e) && pb.ValuesEqual(e, f.Value) {
				return true
			}
		}
		return false
	}

	// NaN matches no binary comparison; IS_NAN exists for that test.
	if isNaNValue(fv) || isNaNValue(f.Value) {
		return false
	} else if !pb.ValuesComparable(fv, f.Value) {
		return false
	}

	var c = pb.CompareValues(fv, f.Value)
	switch f.Op {
	case pb.LessThan:
		return c < 0
	case pb.LessThanOrEqual:
		return c <= 0
	case pb.GreaterThan:
		return c > 0
	case pb.GreaterThanOrEqual:
		return c >= 0
	case pb.Equal:
		return c == 0
	default:
		return false
	}
}

func evalUnaryFilter(f pb.UnaryFilter, doc *pb.Document) bool {
	var fv, ok = pb.GetField(doc.Fields, f.Field)
	if !ok {
		return false
	}
	switch f.Op {
	case pb.IsNull:
		var _, isNull = fv.(pb.NullValue)
		return isNull
	case pb.IsNaN:
		return isNaNValue(fv)
	default:
		return false
	}
}

func isNaNValue(v pb.Value) bool {
	var d, ok = v.(pb.DoubleValue)
	return ok && math.IsNaN(float64(d))
}
