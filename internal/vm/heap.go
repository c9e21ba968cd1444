package vm

import "github.com/pkg/errors"

// ErrOutOfMemory is returned when an allocation cannot be satisfied even
// after a collection.
var ErrOutOfMemory = errors.New("vm: out of memory")

// objKind distinguishes the two heap-allocated shapes: class instances
// (vtable pointer + field slots) and integer arrays (length + element
// slots), per spec.md §3's object/array headers.
type objKind int

const (
	kindObject objKind = iota
	kindArray
)

// heapObj is one allocation: either an instance (classIdx indexes into the
// layout set's Classes, fields holds its slots) or an array (elems holds
// its slots, classIdx unused). marked is the mark-sweep collector's bit,
// cleared at the start of every mark phase.
type heapObj struct {
	kind     objKind
	classIdx int
	fields   []Value
	elems    []Value
	marked   bool
}

func (o *heapObj) size() int {
	// An object is one header word plus one word per field; an array is
	// two words plus one word per element.
	if o.kind == kindArray {
		return 2 + len(o.elems)
	}
	return 1 + len(o.fields)
}

// Heap is the bounded simulated heap the interpreter allocates objects and
// arrays into. budget is the maximum total size (in words, per heapObj.size)
// live objects may occupy; alloc triggers a collection when a request would
// exceed it, per spec.md §4.3's "stop-the-world between opcodes" rule.
type Heap struct {
	objects []*heapObj
	live     []bool // parallel to objects; false means the slot is free/tombstoned
	used     int    // sum of size() over live objects
	budget   int
	collectFn func() // set by the interpreter to roots-and-sweep; nil during construction
}

// NewHeap creates a heap with the given word budget.
func NewHeap(budget int) *Heap {
	return &Heap{budget: budget}
}

func (h *Heap) alloc(o *heapObj) (Value, error) {
	need := o.size()
	if h.used+need > h.budget && h.collectFn != nil {
		h.collectFn()
	}
	if h.used+need > h.budget {
		return 0, ErrOutOfMemory
	}
	// Reuse a tombstoned slot when available to keep the object table from
	// growing without bound across collections.
	for i, alive := range h.live {
		if !alive {
			h.objects[i] = o
			h.live[i] = true
			h.used += need
			return ptrFromHandle(i), nil
		}
	}
	h.objects = append(h.objects, o)
	h.live = append(h.live, true)
	h.used += need
	return ptrFromHandle(len(h.objects) - 1), nil
}

func (h *Heap) get(v Value) *heapObj {
	return h.objects[v.handle()]
}

// NewObject allocates a class instance with nFields zeroed (null) fields.
func (h *Heap) NewObject(classIdx, nFields int) (Value, error) {
	return h.alloc(&heapObj{kind: kindObject, classIdx: classIdx, fields: make([]Value, nFields)})
}

// NewArray allocates an integer array of the given length, zero-initialized.
func (h *Heap) NewArray(length int64) (Value, error) {
	if length < 0 {
		return 0, errors.Errorf("vm: negative array length %d", length)
	}
	return h.alloc(&heapObj{kind: kindArray, elems: make([]Value, length)})
}
