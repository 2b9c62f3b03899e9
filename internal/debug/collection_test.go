package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordChanges[T comparable](c *Collection[T]) *[]CollectionChanged[T] {
	var changes []CollectionChanged[T]
	c.Changed.Subscribe(func(ch CollectionChanged[T]) {
		changes = append(changes, ch)
	})
	return &changes
}

func TestCollection_AddRemoveOrder(t *testing.T) {
	var c Collection[string]
	changes := recordChanges(&c)

	c.Add("b", "a", "c")
	c.Add("a")
	c.Remove("a", "zzz")

	assert.Equal(t, []string{"b", "c"}, c.Items())
	require.Len(t, *changes, 2)
	assert.Equal(t, []string{"b", "a", "c"}, (*changes)[0].Added)
	assert.Empty(t, (*changes)[0].Removed)
	assert.Equal(t, []string{"a"}, (*changes)[1].Removed)
}

func TestCollection_NoEmptyDelta(t *testing.T) {
	var c Collection[int]
	c.Add(1)
	changes := recordChanges(&c)

	c.Add()
	c.Remove()
	c.Add(1)
	c.Remove(2)
	c.Replace(1)

	assert.Empty(t, *changes)
}

func TestCollection_Replace(t *testing.T) {
	var c Collection[int]
	c.Add(1, 2, 3)
	changes := recordChanges(&c)

	c.Replace(3, 4, 4, 1)

	assert.Equal(t, []int{3, 4, 1}, c.Items())
	require.Len(t, *changes, 1)
	assert.Equal(t, []int{4}, (*changes)[0].Added)
	assert.Equal(t, []int{2}, (*changes)[0].Removed)

	c.Clear()
	assert.Zero(t, c.Len())
	require.Len(t, *changes, 2)
	assert.Equal(t, []int{3, 4, 1}, (*changes)[1].Removed)
}

func TestCollection_ReentrantMutationIsQueued(t *testing.T) {
	var c Collection[int]

	var log []string
	depth := 0
	c.Changed.Subscribe(func(ch CollectionChanged[int]) {
		depth++
		defer func() { depth-- }()
		assert.Equal(t, 1, depth, "notifications must not nest")

		if len(ch.Added) == 1 && ch.Added[0] == 1 {
			c.Add(2)
			c.Remove(1)
			// Nothing applied yet.
			assert.Equal(t, []int{1}, c.Items())
		}
		log = append(log, describe(ch))
	})

	c.Add(1)

	assert.Equal(t, []string{"+[1]-[]", "+[2]-[]", "+[]-[1]"}, log)
	assert.Equal(t, []int{2}, c.Items())
}

func TestCollection_Find(t *testing.T) {
	var c Collection[*Thread]
	t1 := &Thread{Base: newBase(), id: 1}
	t2 := &Thread{Base: newBase(), id: 2}
	c.Add(t1, t2)

	got, ok := c.Find(func(th *Thread) bool { return th.id == 2 })
	require.True(t, ok)
	assert.Same(t, t2, got)
	assert.True(t, c.Contains(t1))

	_, ok = c.Find(func(th *Thread) bool { return th.id == 3 })
	assert.False(t, ok)
}

func describe(ch CollectionChanged[int]) string {
	return "+" + ints(ch.Added) + "-" + ints(ch.Removed)
}

func ints(v []int) string {
	s := "["
	for i, n := range v {
		if i > 0 {
			s += ","
		}
		s += string(rune('0' + n))
	}
	return s + "]"
}
