package protocol

import (
	"encoding/json"
)

// StructuredQuery selects, filters, orders and bounds documents of one or
// more collections.
type StructuredQuery struct {
	// Select optionally projects returned documents to a subset of fields.
	Select *Projection `json:"select,omitempty"`
	// From names the queried collection(s). Exactly one selector is required.
	From []CollectionSelector `json:"from"`
	// Where optionally filters returned documents.
	Where Filter `json:"-"`
	// OrderBy gives the sort order of results. Document path ascending is
	// always an implicit final sort key.
	OrderBy []Order `json:"orderBy,omitempty"`
	// StartAt and EndAt optionally bound results. Each carries one value per
	// OrderBy key, and must match OrderBy arity exactly.
	StartAt *Cursor `json:"startAt,omitempty"`
	EndAt   *Cursor `json:"endAt,omitempty"`
	// Offset skips this many matched documents before any are yielded.
	Offset int32 `json:"offset,omitempty"`
	// Limit, if non-nil, caps the number of yielded documents.
	Limit *int32 `json:"limit,omitempty"`
}

// Projection is a set of field paths to return for each matched document.
type Projection struct {
	Fields []string `json:"fields"`
}

// CollectionSelector names a collection to query: either the collection
// with the given id directly parented by the query parent, or -- with
// AllDescendants -- every collection of that id at any depth beneath it.
type CollectionSelector struct {
	CollectionID   string `json:"collectionId"`
	AllDescendants bool   `json:"allDescendants,omitempty"`
}

// Order is a single query sort key.
type Order struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction,omitempty"`
}

// Direction of an Order.
type Direction string

const (
	Ascending  Direction = "ASCENDING"
	Descending Direction = "DESCENDING"
)

// Filter is a closed sum over query filters.
type Filter interface {
	// Validate returns an error if the Filter is not well-formed.
	Validate() error
	isFilter()
}

// CompositeOperator combines sub-filters of a CompositeFilter.
type CompositeOperator string

// CompositeAnd requires that all sub-filters match.
const CompositeAnd CompositeOperator = "AND"

// CompositeFilter combines multiple filters with a single operator.
type CompositeFilter struct {
	Op      CompositeOperator
	Filters []Filter
}

// FieldOperator is a binary comparison operator of a FieldFilter.
type FieldOperator string

const (
	LessThan           FieldOperator = "LESS_THAN"
	LessThanOrEqual    FieldOperator = "LESS_THAN_OR_EQUAL"
	GreaterThan        FieldOperator = "GREATER_THAN"
	GreaterThanOrEqual FieldOperator = "GREATER_THAN_OR_EQUAL"
	Equal              FieldOperator = "EQUAL"
	ArrayContains      FieldOperator = "ARRAY_CONTAINS"
)

// FieldFilter is a binary comparison of a document field against a Value.
// Comparisons across incompatible value types never match (not an error).
type FieldFilter struct {
	Field string
	Op    FieldOperator
	Value Value
}

// UnaryOperator is the operator of a UnaryFilter.
type UnaryOperator string

const (
	IsNaN  UnaryOperator = "IS_NAN"
	IsNull UnaryOperator = "IS_NULL"
)

// UnaryFilter is a single-operand test of a document field. It is mutually
// exclusive with binary operators on the same filter clause.
type UnaryFilter struct {
	Op    UnaryOperator
	Field string
}

func (CompositeFilter) isFilter() {}
func (FieldFilter) isFilter()     {}
func (UnaryFilter) isFilter()     {}

// Validate returns an error if the CompositeFilter is not well-formed.
func (f CompositeFilter) Validate() error {
	if f.Op != CompositeAnd {
		return NewValidationError("invalid composite operator (%s)", f.Op)
	} else if len(f.Filters) == 0 {
		return NewValidationError("expected at least one sub-filter")
	}
	for i, sub := range f.Filters {
		if sub == nil {
			return NewValidationError("sub-filter %d is nil", i)
		} else if err := sub.Validate(); err != nil {
			return ExtendContext(err, "Filters[%d]", i)
		}
	}
	return nil
}

// Validate returns an error if the FieldFilter is not well-formed.
func (f FieldFilter) Validate() error {
	if err := validateFieldPath(f.Field); err != nil {
		return ExtendContext(err, "Field")
	}
	switch f.Op {
	case LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual, Equal, ArrayContains:
		// Pass.
	default:
		return NewValidationError("invalid field operator (%s)", f.Op)
	}
	if f.Value == nil {
		return NewValidationError("expected a Value")
	} else if err := f.Value.Validate(); err != nil {
		return ExtendContext(err, "Value")
	}
	return nil
}

// Validate returns an error if the UnaryFilter is not well-formed.
func (f UnaryFilter) Validate() error {
	if f.Op != IsNaN && f.Op != IsNull {
		return NewValidationError("invalid unary operator (%s)", f.Op)
	} else if err := validateFieldPath(f.Field); err != nil {
		return ExtendContext(err, "Field")
	}
	return nil
}

// Cursor bounds a query result sequence. It carries one Value per OrderBy
// key of its query. Before determines inclusivity: a startAt cursor is
// inclusive when Before is true, and an endAt cursor is inclusive when
// Before is false.
type Cursor struct {
	Values []Value `json:"-"`
	Before bool    `json:"before,omitempty"`
}

// Validate returns an error if the Cursor is not well-formed.
func (c *Cursor) Validate() error {
	if len(c.Values) == 0 {
		return NewValidationError("expected at least one cursor value")
	}
	for i, v := range c.Values {
		if v == nil {
			return NewValidationError("Values[%d] is nil", i)
		} else if err := v.Validate(); err != nil {
			return ExtendContext(err, "Values[%d]", i)
		}
	}
	return nil
}

// Validate returns an error if the StructuredQuery is not well-formed.
// Cursor arity against OrderBy is additionally validated at evaluation,
// after implicit sort keys are appended.
func (q *StructuredQuery) Validate() error {
	if len(q.From) != 1 {
		return NewValidationError("expected exactly one From selector (got %d)", len(q.From))
	} else if err := ValidateCollectionID(q.From[0].CollectionID); err != nil {
		return ExtendContext(err, "From[0].CollectionID")
	}
	if q.Select != nil {
		for i, fp := range q.Select.Fields {
			if err := validateFieldPath(fp); err != nil {
				return ExtendContext(err, "Select.Fields[%d]", i)
			}
		}
	}
	if q.Where != nil {
		if err := q.Where.Validate(); err != nil {
			return ExtendContext(err, "Where")
		}
	}
	for i, o := range q.OrderBy {
		if err := validateFieldPath(o.Field); err != nil {
			return ExtendContext(err, "OrderBy[%d].Field", i)
		}
		switch o.Direction {
		case "", Ascending, Descending:
			// Pass.
		default:
			return NewValidationError("OrderBy[%d]: invalid direction (%s)", i, o.Direction)
		}
	}
	if q.StartAt != nil {
		if err := q.StartAt.Validate(); err != nil {
			return ExtendContext(err, "StartAt")
		}
	}
	if q.EndAt != nil {
		if err := q.EndAt.Validate(); err != nil {
			return ExtendContext(err, "EndAt")
		}
	}
	if q.Offset < 0 {
		return NewValidationError("invalid Offset (%d; expected >= 0)", q.Offset)
	}
	if q.Limit != nil && *q.Limit < 0 {
		return NewValidationError("invalid Limit (%d; expected >= 0)", *q.Limit)
	}
	return nil
}

// Wire envelopes of the Filter sum type and of types which embed Values.

type filterEnvelope struct {
	Composite *compositeFilterWire `json:"composite,omitempty"`
	Field     *fieldFilterWire     `json:"field,omitempty"`
	Unary     *UnaryFilter         `json:"unary,omitempty"`
}

type compositeFilterWire struct {
	Op      CompositeOperator `json:"op"`
	Filters []json.RawMessage `json:"filters"`
}

type fieldFilterWire struct {
	Field string          `json:"field"`
	Op    FieldOperator   `json:"op"`
	Value json.RawMessage `json:"value"`
}

func marshalFilter(f Filter) (json.RawMessage, error) {
	var env filterEnvelope

	switch ff := f.(type) {
	case CompositeFilter:
		var w = compositeFilterWire{Op: ff.Op}
		for _, sub := range ff.Filters {
			var b, err = marshalFilter(sub)
			if err != nil {
				return nil, err
			}
			w.Filters = append(w.Filters, b)
		}
		env.Composite = &w
	case FieldFilter:
		var b, err = json.Marshal(ff.Value)
		if err != nil {
			return nil, err
		}
		env.Field = &fieldFilterWire{Field: ff.Field, Op: ff.Op, Value: b}
	case UnaryFilter:
		env.Unary = &ff
	default:
		return nil, NewValidationError("invalid Filter variant")
	}
	return json.Marshal(env)
}

func unmarshalFilter(data []byte) (Filter, error) {
	var env filterEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch {
	case env.Composite != nil:
		var out = CompositeFilter{Op: env.Composite.Op}
		for i, raw := range env.Composite.Filters {
			var sub, err = unmarshalFilter(raw)
			if err != nil {
				return nil, ExtendContext(err, "Filters[%d]", i)
			}
			out.Filters = append(out.Filters, sub)
		}
		return out, nil
	case env.Field != nil:
		var v, err = UnmarshalValue(env.Field.Value)
		if err != nil {
			return nil, ExtendContext(err, "Value")
		}
		return FieldFilter{Field: env.Field.Field, Op: env.Field.Op, Value: v}, nil
	case env.Unary != nil:
		return *env.Unary, nil
	default:
		return nil, NewValidationError("no Filter variant is set")
	}
}

// MarshalJSON emits the StructuredQuery with its Filter in envelope form.
func (q StructuredQuery) MarshalJSON() ([]byte, error) {
	type alias StructuredQuery // Avoid recursion.
	var aux = struct {
		alias
		Where json.RawMessage `json:"where,omitempty"`
	}{alias: alias(q)}

	if q.Where != nil {
		var b, err = marshalFilter(q.Where)
		if err != nil {
			return nil, err
		}
		aux.Where = b
	}
	return json.Marshal(aux)
}

// UnmarshalJSON decodes a StructuredQuery and its Filter envelope.
func (q *StructuredQuery) UnmarshalJSON(data []byte) error {
	type alias StructuredQuery
	var aux = struct {
		*alias
		Where json.RawMessage `json:"where,omitempty"`
	}{alias: (*alias)(q)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Where) != 0 {
		var f, err = unmarshalFilter(aux.Where)
		if err != nil {
			return ExtendContext(err, "Where")
		}
		q.Where = f
	}
	return nil
}

// MarshalJSON emits the Cursor with its Values in envelope form.
func (c Cursor) MarshalJSON() ([]byte, error) {
	var raw = make([]json.RawMessage, len(c.Values))
	for i, v := range c.Values {
		var b, err = json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw[i] = b
	}
	return json.Marshal(struct {
		Values []json.RawMessage `json:"values"`
		Before bool              `json:"before,omitempty"`
	}{Values: raw, Before: c.Before})
}

// UnmarshalJSON decodes a Cursor and its Value envelopes.
func (c *Cursor) UnmarshalJSON(data []byte) error {
	var aux struct {
		Values []json.RawMessage `json:"values"`
		Before bool              `json:"before,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Before = aux.Before
	c.Values = c.Values[:0]
	for i, raw := range aux.Values {
		var v, err = UnmarshalValue(raw)
		if err != nil {
			return ExtendContext(err, "Values[%d]", i)
		}
		c.Values = append(c.Values, v)
	}
	return nil
}
