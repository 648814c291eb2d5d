package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"previewkit/internal/shim"
	"previewkit/internal/vfs"
)

func newResolver(files map[string]string) *Resolver {
	return New(vfs.SnapshotOf(files), shim.NewTable())
}

func TestResolve_Relative(t *testing.T) {
	r := newResolver(map[string]string{
		"/App.tsx":                  "",
		"/components/Button.tsx":    "",
		"/components/index.ts":      "",
		"/screens/Home/index.tsx":   "",
		"/data/config.json":         "{}",
		"/util.js":                  "",
	})

	t.Run("extension probing order", func(t *testing.T) {
		res, err := r.Resolve("/App.tsx", "./components/Button")
		require.NoError(t, err)
		assert.Equal(t, KindVFS, res.Kind)
		assert.Equal(t, "/components/Button.tsx", res.Path)
	})

	t.Run("directory index", func(t *testing.T) {
		res, err := r.Resolve("/App.tsx", "./screens/Home")
		require.NoError(t, err)
		assert.Equal(t, "/screens/Home/index.tsx", res.Path)
	})

	t.Run("exact path wins over index", func(t *testing.T) {
		res, err := r.Resolve("/App.tsx", "./components/index.ts")
		require.NoError(t, err)
		assert.Equal(t, "/components/index.ts", res.Path)
	})

	t.Run("parent traversal", func(t *testing.T) {
		res, err := r.Resolve("/screens/Home/index.tsx", "../../util")
		require.NoError(t, err)
		assert.Equal(t, "/util.js", res.Path)
	})

	t.Run("json", func(t *testing.T) {
		res, err := r.Resolve("/App.tsx", "./data/config.json")
		require.NoError(t, err)
		assert.Equal(t, "/data/config.json", res.Path)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := r.Resolve("/App.tsx", "./missing")
		assert.ErrorIs(t, err, ErrModuleNotFound)
		assert.Contains(t, err.Error(), "./missing")
		assert.Contains(t, err.Error(), "/App.tsx")
	})
}

func TestResolve_Shims(t *testing.T) {
	r := newResolver(map[string]string{"/App.tsx": ""})

	t.Run("exact shim never hits vfs or network", func(t *testing.T) {
		res, err := r.Resolve("/App.tsx", "react-native")
		require.NoError(t, err)
		assert.Equal(t, KindShim, res.Kind)
		assert.Equal(t, "shim:react-native", res.ModuleID)
	})

	t.Run("subpath against shim exports", func(t *testing.T) {
		res, err := r.Resolve("/App.tsx", "react-native/StatusBar")
		require.NoError(t, err)
		assert.Equal(t, KindShimSubpath, res.Kind)
		assert.Equal(t, "shim:react-native/StatusBar", res.ModuleID)
		assert.Equal(t, "StatusBar", res.ShimExport)
	})

	t.Run("unknown subpath is unsupported", func(t *testing.T) {
		_, err := r.Resolve("/App.tsx", "react-native/NativeModules")
		assert.ErrorIs(t, err, ErrUnsupportedAPI)
	})
}

func TestResolve_Packages(t *testing.T) {
	t.Run("manifest pins version", func(t *testing.T) {
		r := newResolver(map[string]string{
			"/App.tsx":      "",
			"/package.json": `{"dependencies": {"uuid": "9.0.0"}}`,
		})
		res, err := r.Resolve("/App.tsx", "uuid")
		require.NoError(t, err)
		assert.Equal(t, KindPackage, res.Kind)
		assert.Equal(t, "uuid", res.Package)
		assert.Equal(t, "9.0.0", res.Version)
		assert.Equal(t, "pkg:uuid@9.0.0", res.ModuleID)
	})

	t.Run("default version without manifest", func(t *testing.T) {
		r := newResolver(map[string]string{"/App.tsx": ""})
		res, err := r.Resolve("/App.tsx", "date-fns")
		require.NoError(t, err)
		assert.Equal(t, "latest", res.Version)
	})

	t.Run("scoped package", func(t *testing.T) {
		r := newResolver(map[string]string{"/App.tsx": ""})
		res, err := r.Resolve("/App.tsx", "@tanstack/react-query")
		require.NoError(t, err)
		assert.Equal(t, KindPackage, res.Kind)
	})

	t.Run("garbage specifier", func(t *testing.T) {
		r := newResolver(map[string]string{"/App.tsx": ""})
		_, err := r.Resolve("/App.tsx", "!!not a module!!")
		assert.ErrorIs(t, err, ErrUnresolved)
	})
}

func TestResolve_Memoized(t *testing.T) {
	r := newResolver(map[string]string{"/App.tsx": "", "/b.ts": ""})

	first, err := r.Resolve("/App.tsx", "./b")
	require.NoError(t, err)
	second, err := r.Resolve("/App.tsx", "./b")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	r.mu.Lock()
	_, memoized := r.memo["/App.tsx\x00./b"]
	r.mu.Unlock()
	assert.True(t, memoized)
}
