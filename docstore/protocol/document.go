package protocol

import (
	"strings"
	"time"
)

// Document is a named set of fields. Name is immutable once created.
// UpdateTime strictly increases with each successful write of the document,
// and CreateTime is fixed at its first creation. A "missing" document --
// a placeholder which exists only because descendant documents do -- has
// no fields and zero timestamps.
type Document struct {
	// Name is the full document resource path.
	Name string `json:"name"`
	// Fields of the document.
	Fields MapValue `json:"fields,omitempty"`
	// CreateTime is the time at which the document was first created.
	CreateTime time.Time `json:"createTime,omitzero"`
	// UpdateTime is the time of the document's most recent write.
	UpdateTime time.Time `json:"updateTime,omitzero"`
}

// Validate returns an error if the Document is not well-formed.
func (d *Document) Validate() error {
	if err := ValidateDocumentPath(d.Name); err != nil {
		return ExtendContext(err, "Name")
	} else if err = d.Fields.Validate(); err != nil {
		return ExtendContext(err, "Fields")
	}
	return nil
}

// Missing returns whether the Document is a placeholder for descendants only.
func (d *Document) Missing() bool { return d.CreateTime.IsZero() }

// Copy returns a deep copy of the Document. Documents handed out of the
// store are copied, so that returned Documents are immutable from the
// caller's perspective.
func (d *Document) Copy() Document {
	var fields MapValue
	if d.Fields != nil {
		fields = CopyValue(d.Fields).(MapValue)
	}
	return Document{
		Name:       d.Name,
		Fields:     fields,
		CreateTime: d.CreateTime,
		UpdateTime: d.UpdateTime,
	}
}

// DocumentMask is a set of document field paths, used to project reads and
// to scope the fields replaced or deleted by an update.
type DocumentMask struct {
	FieldPaths []string `json:"fieldPaths"`
}

// Validate returns an error if the DocumentMask is not well-formed.
func (m *DocumentMask) Validate() error {
	for i, fp := range m.FieldPaths {
		if err := validateFieldPath(fp); err != nil {
			return ExtendContext(err, "FieldPaths[%d]", i)
		}
	}
	return nil
}

// A field path is a dot-delimited sequence of field names addressing a
// (possibly nested) document field, eg "address.city".

func validateFieldPath(fp string) error {
	if fp == "" {
		return NewValidationError("expected a field path")
	}
	for _, seg := range strings.Split(fp, ".") {
		if seg == "" {
			return NewValidationError("field path has an empty segment (%s)", fp)
		}
	}
	return nil
}

// GetField resolves the dotted field path |fp| against |fields|.
// It returns the addressed Value, or false if any path step is absent or
// traverses a non-map Value.
func GetField(fields MapValue, fp string) (Value, bool) {
	var segs = strings.Split(fp, ".")
	var cur Value = fields

	for _, seg := range segs {
		var m, ok = cur.(MapValue)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetField sets the dotted field path |fp| to |v| within |fields|, creating
// intermediate maps as needed and replacing non-map intermediates.
func SetField(fields MapValue, fp string, v Value) {
	var segs = strings.Split(fp, ".")

	for _, seg := range segs[:len(segs)-1] {
		var next, ok = fields[seg].(MapValue)
		if !ok {
			next = make(MapValue)
			fields[seg] = next
		}
		fields = next
	}
	fields[segs[len(segs)-1]] = v
}

// DeleteField removes the dotted field path |fp| from |fields|.
// Absent paths are a no-op.
func DeleteField(fields MapValue, fp string) {
	var segs = strings.Split(fp, ".")

	for _, seg := range segs[:len(segs)-1] {
		var next, ok = fields[seg].(MapValue)
		if !ok {
			return
		}
		fields = next
	}
	delete(fields, segs[len(segs)-1])
}

// ApplyMask returns a copy of |fields| retaining only masked field paths.
func ApplyMask(fields MapValue, mask *DocumentMask) MapValue {
	if mask == nil {
		return CopyValue(fields).(MapValue)
	}
	var out = make(MapValue)
	for _, fp := range mask.FieldPaths {
		if v, ok := GetField(fields, fp); ok {
			SetField(out, fp, CopyValue(v))
		}
	}
	return out
}
