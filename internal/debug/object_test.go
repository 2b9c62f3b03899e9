package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closerData struct{ closed int }

func (c *closerData) Close() error {
	c.closed++
	return nil
}

type plainData struct{ closed bool }

func (p *plainData) Close() { p.closed = true }

type annotation struct{ text string }

func TestObject_CloseIsIdempotent(t *testing.T) {
	th := &Thread{Base: newBase(), id: 7}

	closed := 0
	th.OnClosed(func() { closed++ })

	th.Close()
	th.Close()

	assert.True(t, th.IsClosed())
	assert.Equal(t, 1, closed)
}

func TestObject_OnClosedCancel(t *testing.T) {
	th := &Thread{Base: newBase()}

	called := false
	cancel := th.OnClosed(func() { called = true })
	cancel()
	th.Close()

	assert.False(t, called)

	// Registering after close is a no-op.
	th.OnClosed(func() { called = true })
	assert.False(t, called)
}

func TestGetOrCreateData(t *testing.T) {
	th := &Thread{Base: newBase()}

	created := 0
	create := func() *annotation {
		created++
		return &annotation{text: "hot loop"}
	}

	a1 := GetOrCreateData(th, create)
	a2 := GetOrCreateData(th, create)
	assert.Same(t, a1, a2)
	assert.Equal(t, 1, created)

	got, ok := TryGetData[*annotation](th)
	require.True(t, ok)
	assert.Equal(t, "hot loop", got.text)

	_, ok = TryGetData[*closerData](th)
	assert.False(t, ok)
}

func TestGetOrCreateData_ClosedWithOwner(t *testing.T) {
	mod := &Module{Base: newBase()}

	c := GetOrCreateData(mod, func() *closerData { return &closerData{} })
	p := GetOrCreateData(mod, func() *plainData { return &plainData{} })

	mod.Close()
	mod.Close()

	assert.Equal(t, 1, c.closed)
	assert.True(t, p.closed)

	_, ok := TryGetData[*closerData](mod)
	assert.False(t, ok)

	// A closed object hands out fresh values without keeping them.
	again := GetOrCreateData(mod, func() *closerData { return &closerData{} })
	assert.NotSame(t, c, again)
	_, ok = TryGetData[*closerData](mod)
	assert.False(t, ok)
}

func TestObject_Metadata(t *testing.T) {
	r := newRuntime(newProcess(0), "delve", runtimeInfoFixture())
	_, ok := r.Metadata("goroot")
	assert.False(t, ok)

	r.SetMetadata("goroot", "/usr/local/go")
	v, ok := r.Metadata("goroot")
	assert.True(t, ok)
	assert.Equal(t, "/usr/local/go", v)
}

func TestProcess_CloseCascades(t *testing.T) {
	p := newProcess(0)
	r := newRuntime(p, "delve", runtimeInfoFixture())
	p.runtimes.Add(r)
	th := &Thread{Base: newBase(), runtime: r, id: 1}
	r.threads.Add(th)
	mod := &Module{Base: newBase(), runtime: r, id: "m1"}
	r.modules.Add(mod)

	var removed []*Runtime
	p.RuntimesChanged().Subscribe(func(c CollectionChanged[*Runtime]) {
		removed = append(removed, c.Removed...)
	})

	p.Close()

	assert.True(t, r.IsClosed())
	assert.True(t, th.IsClosed())
	assert.True(t, mod.IsClosed())
	assert.Equal(t, ProcessTerminated, p.State())
	assert.Equal(t, []*Runtime{r}, removed)
	assert.Empty(t, r.Threads())
}
