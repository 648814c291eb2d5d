package vfs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"App.tsx":               "/App.tsx",
		"/App.tsx":              "/App.tsx",
		"./components/Btn.tsx":  "/components/Btn.tsx",
		"/a/b/../c.ts":          "/a/c.ts",
		"a//b.ts":               "/a/b.ts",
		"components\\Card.tsx":  "/components/Card.tsx",
		"/screens/./Home.tsx":   "/screens/Home.tsx",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestPutGet(t *testing.T) {
	s := NewStore()
	e := s.Put("App.tsx", "export default 1;")

	assert.Equal(t, "/App.tsx", e.Path)
	assert.Equal(t, 1, e.Version)
	assert.Equal(t, HashContent("export default 1;"), e.ContentHash)

	got, err := s.Get("/App.tsx")
	require.NoError(t, err)
	assert.Equal(t, e, got)

	// Same key through a different spelling.
	got, err = s.Get("App.tsx")
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = s.Get("/missing.tsx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPut_VersionIncrements(t *testing.T) {
	s := NewStore()
	s.Put("/a.ts", "1")
	e := s.Put("/a.ts", "2")
	assert.Equal(t, 2, e.Version)
	assert.NotEqual(t, HashContent("1"), e.ContentHash)
}

func TestList(t *testing.T) {
	s := NewStore()
	s.Put("/components/b.tsx", "b")
	s.Put("/components/a.tsx", "a")
	s.Put("/App.tsx", "app")

	got := s.List("/components/")
	require.Len(t, got, 2)
	assert.Equal(t, "/components/a.tsx", got[0].Path)
	assert.Equal(t, "/components/b.tsx", got[1].Path)

	assert.Len(t, s.List("/"), 3)
}

func TestSnapshot_Immutable(t *testing.T) {
	s := NewStore()
	s.Put("/a.ts", "before")
	snap := s.Snapshot()

	s.Put("/a.ts", "after")
	s.Put("/b.ts", "new")

	e, err := snap.Get("/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "before", e.Content)
	assert.False(t, snap.Has("/b.ts"))
	assert.Equal(t, 1, snap.Len())
}

func TestSnapshot_HashStability(t *testing.T) {
	files := map[string]string{"/a.ts": "1", "/b.ts": "2"}

	s1 := SnapshotOf(files)
	s2 := SnapshotOf(files)
	assert.Equal(t, s1.Hash(), s2.Hash())

	s3 := SnapshotOf(map[string]string{"/a.ts": "1", "/b.ts": "changed"})
	assert.NotEqual(t, s1.Hash(), s3.Hash())

	// Path set matters, not just contents.
	s4 := SnapshotOf(map[string]string{"/a.ts": "1"})
	assert.NotEqual(t, s1.Hash(), s4.Hash())
}

func TestSnapshot_Paths(t *testing.T) {
	snap := SnapshotOf(map[string]string{"/b.ts": "2", "/a.ts": "1"})
	if diff := cmp.Diff([]string{"/a.ts", "/b.ts"}, snap.Paths()); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}
