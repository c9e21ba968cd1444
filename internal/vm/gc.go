package vm

// collect runs one mark-sweep cycle: mark every object reachable from a
// live frame's locals or operand stack, then free every unmarked slot. Per
// spec.md §9 (resolving the "can an already-marked object be pushed again"
// Open Question), the mark phase short-circuits on an already-marked
// object rather than re-scanning its fields, so cyclic object graphs
// terminate.
func (in *Interp) collect() {
	h := in.heap
	for _, o := range h.objects {
		if o != nil {
			o.marked = false
		}
	}

	var mark func(v Value)
	mark = func(v Value) {
		if !v.IsPtr() || v.IsNull() {
			return
		}
		idx := v.handle()
		if idx < 0 || idx >= len(h.objects) || !h.live[idx] {
			return
		}
		o := h.objects[idx]
		if o.marked {
			return
		}
		o.marked = true
		switch o.kind {
		case kindObject:
			for _, f := range o.fields {
				mark(f)
			}
		case kindArray:
			// Leaf: array elements are integers, never references.
		}
	}

	for _, fr := range in.frames {
		for _, lv := range fr.locals {
			mark(lv)
		}
		for i := 0; i < fr.sp; i++ {
			mark(fr.stack[i])
		}
	}

	for i, alive := range h.live {
		if !alive {
			continue
		}
		o := h.objects[i]
		if !o.marked {
			h.used -= o.size()
			h.live[i] = false
			h.objects[i] = nil
		}
	}
}
