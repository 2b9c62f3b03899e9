package debug

// CollectionChanged describes one change to a Collection. At least one of
// Added and Removed is non-empty.
type CollectionChanged[T any] struct {
	Added   []T
	Removed []T
}

// Collection is an insertion ordered set of objects with change notification.
//
// Mutations made by a Changed subscriber while a notification is running are
// queued and applied, each with its own notification, after the running
// notification returns.
type Collection[T comparable] struct {
	Changed Event[CollectionChanged[T]]

	items     []T
	notifying bool
	pending   []func() CollectionChanged[T]
}

// Items returns a copy of the elements in insertion order.
func (c *Collection[T]) Items() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of elements.
func (c *Collection[T]) Len() int {
	return len(c.items)
}

// Contains reports whether v is an element.
func (c *Collection[T]) Contains(v T) bool {
	return c.indexOf(v) >= 0
}

// Find returns the first element matching pred.
func (c *Collection[T]) Find(pred func(T) bool) (T, bool) {
	for _, v := range c.items {
		if pred(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Add appends the items that are not already present.
func (c *Collection[T]) Add(items ...T) {
	c.do(func() CollectionChanged[T] {
		var added []T
		for _, v := range items {
			if c.indexOf(v) < 0 {
				c.items = append(c.items, v)
				added = append(added, v)
			}
		}
		return CollectionChanged[T]{Added: added}
	})
}

// Remove removes the items that are present.
func (c *Collection[T]) Remove(items ...T) {
	c.do(func() CollectionChanged[T] {
		var removed []T
		for _, v := range items {
			if i := c.indexOf(v); i >= 0 {
				c.items = append(c.items[:i:i], c.items[i+1:]...)
				removed = append(removed, v)
			}
		}
		return CollectionChanged[T]{Removed: removed}
	})
}

// Replace makes items the new content and reports the difference as a single
// change.
func (c *Collection[T]) Replace(items ...T) {
	c.do(func() CollectionChanged[T] {
		next := make([]T, 0, len(items))
		seen := make(map[T]struct{}, len(items))
		for _, v := range items {
			if _, dup := seen[v]; !dup {
				seen[v] = struct{}{}
				next = append(next, v)
			}
		}

		var delta CollectionChanged[T]
		for _, v := range c.items {
			if _, keep := seen[v]; !keep {
				delta.Removed = append(delta.Removed, v)
			}
		}
		for _, v := range next {
			if c.indexOf(v) < 0 {
				delta.Added = append(delta.Added, v)
			}
		}
		c.items = next
		return delta
	})
}

// Clear removes every element.
func (c *Collection[T]) Clear() {
	c.Replace()
}

func (c *Collection[T]) indexOf(v T) int {
	for i, item := range c.items {
		if item == v {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) do(op func() CollectionChanged[T]) {
	if c.notifying {
		c.pending = append(c.pending, op)
		return
	}

	for op != nil {
		delta := op()
		if len(delta.Added) > 0 || len(delta.Removed) > 0 {
			c.notify(delta)
		}

		op = nil
		if len(c.pending) > 0 {
			op = c.pending[0]
			c.pending = c.pending[1:]
		}
	}
}

func (c *Collection[T]) notify(delta CollectionChanged[T]) {
	c.notifying = true
	defer func() { c.notifying = false }()
	c.Changed.Raise(delta)
}
