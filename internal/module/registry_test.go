package module

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	desc       Descriptor
	initOK     bool
	initCalled bool
}

func (f *fakeModule) Descriptor() Descriptor { return f.desc }
func (f *fakeModule) OnInit(svc Services) bool {
	f.initCalled = true
	return f.initOK
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := newTestRegistry(t)

	m := &fakeModule{desc: Descriptor{Name: "one"}, initOK: true}
	require.NoError(t, r.Register(m, "", time.Time{}, nil))
	assert.True(t, m.initCalled)

	rec, ok := r.Lookup("one")
	require.True(t, ok)
	assert.Equal(t, "one", rec.Descriptor().Name)
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Register(&fakeModule{desc: Descriptor{Name: "dup"}, initOK: true}, "", time.Time{}, nil))
	err := r.Register(&fakeModule{desc: Descriptor{Name: "dup"}, initOK: true}, "", time.Time{}, nil)
	assert.Error(t, err)
}

func TestRegistryRejectsOnInitRefusal(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Register(&fakeModule{desc: Descriptor{Name: "refuser"}, initOK: false}, "", time.Time{}, nil)
	assert.Error(t, err)
	_, ok := r.Lookup("refuser")
	assert.False(t, ok)
}

func TestRegistrySnapshotOrdering(t *testing.T) {
	r := newTestRegistry(t)

	low := &fakeModule{desc: Descriptor{Name: "low", Priority: 1}, initOK: true}
	high := &fakeModule{desc: Descriptor{Name: "high", Priority: 100}, initOK: true}
	mid := &fakeModule{desc: Descriptor{Name: "mid", Priority: 50}, initOK: true}

	require.NoError(t, r.Register(low, "", time.Time{}, nil))
	require.NoError(t, r.Register(high, "", time.Time{}, nil))
	require.NoError(t, r.Register(mid, "", time.Time{}, nil))

	snap := r.Snapshot(false)
	require.Len(t, snap, 3)
	assert.Equal(t, "high", snap[0].Descriptor().Name)
	assert.Equal(t, "mid", snap[1].Descriptor().Name)
	assert.Equal(t, "low", snap[2].Descriptor().Name)
}

func TestRegistrySnapshotExcludesGlobalWhenChannelOnly(t *testing.T) {
	r := newTestRegistry(t)

	global := &fakeModule{desc: Descriptor{Name: "global", Flags: Global}, initOK: true}
	local := &fakeModule{desc: Descriptor{Name: "local"}, initOK: true}
	require.NoError(t, r.Register(global, "", time.Time{}, nil))
	require.NoError(t, r.Register(local, "", time.Time{}, nil))

	snap := r.Snapshot(true)
	require.Len(t, snap, 1)
	assert.Equal(t, "local", snap[0].Descriptor().Name)
}

func TestRegistryRemove(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Register(&fakeModule{desc: Descriptor{Name: "gone"}, initOK: true}, "", time.Time{}, nil))
	r.Remove("gone")
	_, ok := r.Lookup("gone")
	assert.False(t, ok)
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	r, err := NewRegistry(dir+"/modules", dir+"/data")
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}
