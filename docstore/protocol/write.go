package protocol

import (
	"encoding/json"
	"time"
)

// Write is a single mutation of a document: an update, a delete, or a
// server-side transform. Op is a closed sum type; exactly one operation
// underlies each Write. Ordering of Writes within a batch is significant
// and preserved.
type Write struct {
	// Op is the mutation to apply.
	Op WriteOp
	// CurrentDocument is an optional Precondition which must hold for the
	// addressed document before the Write (or any Write of its batch) applies.
	CurrentDocument *Precondition
}

// WriteOp is a closed sum over write operations.
type WriteOp interface {
	// Document returns the path of the document the operation addresses.
	Document() string
	isWriteOp()
}

// WriteUpdate replaces a document, or -- when Mask is set -- only the masked
// field paths of it (a masked path absent from Doc.Fields deletes the field).
type WriteUpdate struct {
	Doc Document `json:"doc"`
	// Mask scopes the update to the listed field paths. If nil, the entire
	// document is replaced.
	Mask *DocumentMask `json:"mask,omitempty"`
}

// WriteDelete deletes a document.
type WriteDelete struct {
	Name string `json:"name"`
}

// WriteTransform applies an ordered list of server-computed field
// transforms to a document.
type WriteTransform struct {
	Name       string           `json:"name"`
	Transforms []FieldTransform `json:"transforms"`
}

func (u WriteUpdate) Document() string    { return u.Doc.Name }
func (d WriteDelete) Document() string    { return d.Name }
func (t WriteTransform) Document() string { return t.Name }

func (WriteUpdate) isWriteOp()    {}
func (WriteDelete) isWriteOp()    {}
func (WriteTransform) isWriteOp() {}

// Validate returns an error if the Write is not well-formed.
func (w *Write) Validate() error {
	if w.Op == nil {
		return NewValidationError("expected a write operation")
	}
	switch op := w.Op.(type) {
	case WriteUpdate:
		if err := op.Doc.Validate(); err != nil {
			return ExtendContext(err, "Update")
		}
		if op.Mask != nil {
			if err := op.Mask.Validate(); err != nil {
				return ExtendContext(err, "UpdateMask")
			}
		}
	case WriteDelete:
		if err := ValidateDocumentPath(op.Name); err != nil {
			return ExtendContext(err, "Delete")
		}
	case WriteTransform:
		if err := ValidateDocumentPath(op.Name); err != nil {
			return ExtendContext(err, "Transform")
		} else if len(op.Transforms) == 0 {
			return NewValidationError("Transform: expected at least one field transform")
		}
		for i, ft := range op.Transforms {
			if err := ft.Validate(); err != nil {
				return ExtendContext(err, "Transform.Transforms[%d]", i)
			}
		}
	}
	if w.CurrentDocument != nil {
		if err := w.CurrentDocument.Validate(); err != nil {
			return ExtendContext(err, "CurrentDocument")
		}
	}
	return nil
}

// writeEnvelope is the wire form of Write: exactly one of Update, Delete or
// Transform is set.
type writeEnvelope struct {
	Update          *WriteUpdate    `json:"update,omitempty"`
	Delete          *WriteDelete    `json:"delete,omitempty"`
	Transform       *WriteTransform `json:"transform,omitempty"`
	CurrentDocument *Precondition   `json:"currentDocument,omitempty"`
}

// MarshalJSON emits the Write envelope form.
func (w Write) MarshalJSON() ([]byte, error) {
	var env = writeEnvelope{CurrentDocument: w.CurrentDocument}
	switch op := w.Op.(type) {
	case WriteUpdate:
		env.Update = &op
	case WriteDelete:
		env.Delete = &op
	case WriteTransform:
		env.Transform = &op
	case nil:
		return nil, NewValidationError("expected a write operation")
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes a Write from its envelope form.
func (w *Write) UnmarshalJSON(data []byte) error {
	var env writeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch {
	case env.Update != nil:
		w.Op = *env.Update
	case env.Delete != nil:
		w.Op = *env.Delete
	case env.Transform != nil:
		w.Op = *env.Transform
	default:
		return NewValidationError("no write operation is set")
	}
	w.CurrentDocument = env.CurrentDocument
	return nil
}

// Precondition is an optional guard on a single Write. Exists and UpdateTime
// are mutually exclusive: a Precondition requires either that the document
// does (or does not) exist, or that its current update time matches exactly.
type Precondition struct {
	Exists     *bool      `json:"exists,omitempty"`
	UpdateTime *time.Time `json:"updateTime,omitempty"`
}

// Validate returns an error if the Precondition is not well-formed.
func (p *Precondition) Validate() error {
	if p.Exists != nil && p.UpdateTime != nil {
		return NewValidationError("Exists and UpdateTime are mutually exclusive")
	} else if p.Exists == nil && p.UpdateTime == nil {
		return NewValidationError("expected Exists or UpdateTime")
	}
	return nil
}

// FieldTransform is a server-computed mutation of a single document field.
// Op is a closed sum over the supported transforms.
type FieldTransform struct {
	FieldPath string
	Op        TransformOp
}

// TransformOp is a closed sum over field transform operations.
type TransformOp interface{ isTransformOp() }

// ServerValue substitution constants.
const ServerValueRequestTime = "REQUEST_TIME"

// SetToServerValue replaces the field with a server-computed value.
// REQUEST_TIME substitutes the commit timestamp of the enclosing batch.
type SetToServerValue string

// AppendMissingElements unions the listed values into the field's array,
// appending only values not already present (set semantics, not positional).
type AppendMissingElements ArrayValue

// RemoveAllFromArray removes every occurrence of each listed value from the
// field's array.
type RemoveAllFromArray ArrayValue

func (SetToServerValue) isTransformOp()      {}
func (AppendMissingElements) isTransformOp() {}
func (RemoveAllFromArray) isTransformOp()    {}

// Validate returns an error if the FieldTransform is not well-formed.
func (ft *FieldTransform) Validate() error {
	if err := validateFieldPath(ft.FieldPath); err != nil {
		return ExtendContext(err, "FieldPath")
	}
	switch op := ft.Op.(type) {
	case SetToServerValue:
		if string(op) != ServerValueRequestTime {
			return NewValidationError("invalid server value (%s)", string(op))
		}
	case AppendMissingElements:
		if err := ArrayValue(op).Validate(); err != nil {
			return ExtendContext(err, "AppendMissingElements")
		}
	case RemoveAllFromArray:
		if err := ArrayValue(op).Validate(); err != nil {
			return ExtendContext(err, "RemoveAllFromArray")
		}
	case nil:
		return NewValidationError("expected a transform operation")
	}
	return nil
}

type fieldTransformEnvelope struct {
	FieldPath             string      `json:"fieldPath"`
	SetToServerValue      *string     `json:"setToServerValue,omitempty"`
	AppendMissingElements *ArrayValue `json:"appendMissingElements,omitempty"`
	RemoveAllFromArray    *ArrayValue `json:"removeAllFromArray,omitempty"`
}

// MarshalJSON emits the FieldTransform envelope form.
func (ft FieldTransform) MarshalJSON() ([]byte, error) {
	var env = fieldTransformEnvelope{FieldPath: ft.FieldPath}
	switch op := ft.Op.(type) {
	case SetToServerValue:
		var s = string(op)
		env.SetToServerValue = &s
	case AppendMissingElements:
		var a = ArrayValue(op)
		env.AppendMissingElements = &a
	case RemoveAllFromArray:
		var a = ArrayValue(op)
		env.RemoveAllFromArray = &a
	case nil:
		return nil, NewValidationError("expected a transform operation")
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes a FieldTransform from its envelope form.
func (ft *FieldTransform) UnmarshalJSON(data []byte) error {
	var env fieldTransformEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	ft.FieldPath = env.FieldPath
	switch {
	case env.SetToServerValue != nil:
		ft.Op = SetToServerValue(*env.SetToServerValue)
	case env.AppendMissingElements != nil:
		ft.Op = AppendMissingElements(*env.AppendMissingElements)
	case env.RemoveAllFromArray != nil:
		ft.Op = RemoveAllFromArray(*env.RemoveAllFromArray)
	default:
		return NewValidationError("no transform operation is set")
	}
	return nil
}

// WriteResult is the per-Write result of a committed batch.
type WriteResult struct {
	// UpdateTime of the document after the Write (the commit time, for
	// writes which modified the document).
	UpdateTime time.Time `json:"updateTime,omitzero"`
	// TransformResults are the computed values of each field transform of a
	// WriteTransform, in transform order.
	TransformResults ArrayValue `json:"transformResults,omitempty"`
}
