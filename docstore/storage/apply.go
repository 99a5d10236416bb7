package storage

import (
	"time"

	pb "go.scrivodb.dev/core/docstore/protocol"
)

// stagedBatch accumulates the in-progress document states of a commit.
// Writes apply in list order, and later writes of a batch observe the staged
// effects of earlier ones. Nothing is visible outside the batch until the
// Store installs all staged revisions at once.
type stagedBatch struct {
	store      *Store
	commitTime time.Time
	docs       map[string]*stagedDoc
	order      []string // Paths in first-write order.
}

type stagedDoc struct {
	existedBefore bool
	rev           revision
}

func newStagedBatch(s *Store, commitTime time.Time) *stagedBatch {
	return &stagedBatch{
		store:      s,
		commitTime: commitTime,
		docs:       make(map[string]*stagedDoc),
	}
}

// stagedOf returns the staged state of |path|, seeding it from the Store's
// current head revision on first touch.
func (b *stagedBatch) stagedOf(path string) *stagedDoc {
	if staged, ok := b.docs[path]; ok {
		return staged
	}
	var staged = &stagedDoc{}
	if e, ok := b.store.docs.Get(&docEntry{path: path}); ok && len(e.revs) != 0 {
		if head := e.head(); head.exists {
			staged.existedBefore = true
			staged.rev = revision{
				fields:     pb.CopyValue(head.fields).(pb.MapValue),
				createTime: head.createTime,
				updateTime: head.updateTime,
				exists:     true,
			}
		}
	}
	b.docs[path] = staged
	b.order = append(b.order, path)
	return staged
}

// apply stages a single Write and returns its WriteResult.
func (b *stagedBatch) apply(w *pb.Write) pb.WriteResult {
	var result = pb.WriteResult{UpdateTime: b.commitTime}

	switch op := w.Op.(type) {
	case pb.WriteUpdate:
		b.applyUpdate(op)
	case pb.WriteDelete:
		var staged = b.stagedOf(op.Name)
		staged.rev = revision{updateTime: b.commitTime}
	case pb.WriteTransform:
		result.TransformResults = b.applyTransform(op)
	}
	return result
}

func (b *stagedBatch) applyUpdate(op pb.WriteUpdate) {
	var staged = b.stagedOf(op.Doc.Name)

	if op.Mask == nil {
		// Replace the entire document.
		var createTime = b.commitTime
		if staged.rev.exists {
			createTime = staged.rev.createTime
		}
		staged.rev = revision{
			fields:     pb.CopyValue(op.Doc.Fields).(pb.MapValue),
			createTime: createTime,
			updateTime: b.commitTime,
			exists:     true,
		}
		if staged.rev.fields == nil {
			staged.rev.fields = make(pb.MapValue)
		}
		return
	}

	// Masked update: replace listed field paths which the update document
	// carries, and delete listed paths which it does not.
	b.ensureExists(staged)
	for _, fp := range op.Mask.FieldPaths {
		if v, ok := pb.GetField(op.Doc.Fields, fp); ok {
			pb.SetField(staged.rev.fields, fp, pb.CopyValue(v))
		} else {
			pb.DeleteField(staged.rev.fields, fp)
		}
	}
	staged.rev.updateTime = b.commitTime
}

// applyTransform applies field transforms in order and returns the computed
// value of each, in transform order.
func (b *stagedBatch) applyTransform(op pb.WriteTransform) pb.ArrayValue {
	var staged = b.stagedOf(op.Name)
	b.ensureExists(staged)

	var results = make(pb.ArrayValue, 0, len(op.Transforms))
	for _, ft := range op.Transforms {
		results = append(results, b.applyFieldTransform(staged, ft))
	}
	staged.rev.updateTime = b.commitTime
	return results
}

func (b *stagedBatch) applyFieldTransform(staged *stagedDoc, ft pb.FieldTransform) pb.Value {
	switch t := ft.Op.(type) {
	case pb.SetToServerValue:
		// REQUEST_TIME substitutes the commit timestamp.
		var v = pb.TimeValue(b.commitTime)
		pb.SetField(staged.rev.fields, ft.FieldPath, v)
		return v

	case pb.AppendMissingElements:
		var arr, _ = pb.GetField(staged.rev.fields, ft.FieldPath)
		var cur, ok = arr.(pb.ArrayValue)
		if !ok {
			// A non-array (or absent) field is replaced by an empty array
			// before the union applies.
			cur = nil
		}
		// Set-union semantics: append only values not already present, and
		// do not duplicate repeated requested values.
		for _, v := range t {
			if !containsValue(cur, v) {
				cur = append(cur, pb.CopyValue(v))
			}
		}
		pb.SetField(staged.rev.fields, ft.FieldPath, cur)
		return pb.CopyValue(cur)

	case pb.RemoveAllFromArray:
		var arr, _ = pb.GetField(staged.rev.fields, ft.FieldPath)
		var cur, ok = arr.(pb.ArrayValue)
		if !ok {
			cur = nil
		}
		var out pb.ArrayValue
		for _, e := range cur {
			if !containsValue(pb.ArrayValue(t), e) {
				out = append(out, e)
			}
		}
		if out == nil {
			out = pb.ArrayValue{}
		}
		pb.SetField(staged.rev.fields, ft.FieldPath, out)
		return pb.CopyValue(out)

	default:
		panic("invalid transform operation")
	}
}

// ensureExists upgrades a staged non-existent document into an empty one
// created at the commit time.
func (b *stagedBatch) ensureExists(staged *stagedDoc) {
	if !staged.rev.exists {
		staged.rev = revision{
			fields:     make(pb.MapValue),
			createTime: b.commitTime,
			updateTime: b.commitTime,
			exists:     true,
		}
	}
}

func containsValue(arr pb.ArrayValue, v pb.Value) bool {
	for _, e := range arr {
		if pb.ValuesEqual(e, v) {
			return true
		}
	}
	return false
}
