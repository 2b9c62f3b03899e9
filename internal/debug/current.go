package debug

// trackable is satisfied by pointers to the entity types.
type trackable interface {
	comparable
	Object
}

// CurrentChanged says which slots of a CurrentObject changed.
type CurrentChanged struct {
	CurrentChanged bool
	BreakChanged   bool
}

// CurrentObject holds the current selection and the break cause for one kind
// of object. Current is settable by anyone on the dispatcher; Break is only
// written through the BreakWriter returned alongside the tracker.
//
// A slot that refers to an object is cleared when that object closes.
type CurrentObject[T trackable] struct {
	Changed Event[CurrentChanged]

	current       T
	brk           T
	unhookCurrent func()
	unhookBreak   func()
}

// BreakWriter is the privileged handle that can move the Break slot.
type BreakWriter[T trackable] struct {
	c *CurrentObject[T]
}

// NewCurrentObject creates a tracker and its break writer.
func NewCurrentObject[T trackable]() (*CurrentObject[T], BreakWriter[T]) {
	c := &CurrentObject[T]{}
	return c, BreakWriter[T]{c: c}
}

// Current returns the current object, or the zero value if there is none.
func (c *CurrentObject[T]) Current() T {
	return c.current
}

// Break returns the object that caused the last pause, or the zero value.
func (c *CurrentObject[T]) Break() T {
	return c.brk
}

// SetCurrent makes v the current object. A closed object clears the slot.
func (c *CurrentObject[T]) SetCurrent(v T) {
	c.set(v, c.brk)
}

// Set moves both slots and raises one Changed notification.
func (w BreakWriter[T]) Set(current, brk T) {
	w.c.set(current, brk)
}

// Clear empties both slots.
func (w BreakWriter[T]) Clear() {
	var zero T
	w.c.set(zero, zero)
}

// SetBreak moves only the Break slot.
func (w BreakWriter[T]) SetBreak(brk T) {
	w.c.set(w.c.current, brk)
}

func (c *CurrentObject[T]) set(current, brk T) {
	var zero T
	if current != zero && current.IsClosed() {
		current = zero
	}
	if brk != zero && brk.IsClosed() {
		brk = zero
	}

	ev := CurrentChanged{
		CurrentChanged: current != c.current,
		BreakChanged:   brk != c.brk,
	}
	if !ev.CurrentChanged && !ev.BreakChanged {
		return
	}

	if ev.CurrentChanged {
		c.unhook(&c.unhookCurrent)
		c.current = current
		if current != zero {
			c.unhookCurrent = current.OnClosed(func() {
				c.unhookCurrent = nil
				c.set(zero, c.brk)
			})
		}
	}
	if ev.BreakChanged {
		c.unhook(&c.unhookBreak)
		c.brk = brk
		if brk != zero {
			c.unhookBreak = brk.OnClosed(func() {
				c.unhookBreak = nil
				c.set(c.current, zero)
			})
		}
	}

	c.Changed.Raise(ev)
}

func (c *CurrentObject[T]) unhook(fn *func()) {
	if *fn != nil {
		(*fn)()
		*fn = nil
	}
}
