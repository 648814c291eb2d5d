package graph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"previewkit/internal/diag"
	"previewkit/internal/registry"
	"previewkit/internal/shim"
	"previewkit/internal/vfs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newBuilder(t *testing.T, reg *registry.Client) *Builder {
	t.Helper()
	b, err := NewBuilder(shim.NewTable(), reg, 128, 4)
	require.NoError(t, err)
	return b
}

func build(t *testing.T, b *Builder, files map[string]string, entry string) (*DependencyGraph, *diag.Collector) {
	t.Helper()
	collector := diag.NewCollector(200)
	g, err := b.Build(context.Background(), vfs.SnapshotOf(files), entry, collector)
	require.NoError(t, err)
	return g, collector
}

func TestBuild_SimpleApp(t *testing.T) {
	b := newBuilder(t, nil)
	g, collector := build(t, b, map[string]string{
		"/App.tsx": `import React from "react";
import { View } from "react-native";
import Button from "./components/Button";
export default function App() { return <View><Button /></View>; }`,
		"/components/Button.tsx": `import { Text } from "react-native";
export default function Button() { return <Text>ok</Text>; }`,
	}, "/App.tsx")

	require.False(t, collector.HasErrors(), "diagnostics: %v", collector.Items())
	assert.Equal(t, "/App.tsx", g.EntryID)

	assert.Contains(t, g.Modules, "/App.tsx")
	assert.Contains(t, g.Modules, "/components/Button.tsx")
	assert.Contains(t, g.Modules, "shim:react")
	assert.Contains(t, g.Modules, "shim:react-native")

	require.NotEmpty(t, g.Order)
	assert.Equal(t, "/App.tsx", g.Order[len(g.Order)-1], "entry must execute last")

	pos := make(map[string]int, len(g.Order))
	for i, id := range g.Order {
		pos[id] = i
	}
	assert.Less(t, pos["/components/Button.tsx"], pos["/App.tsx"])
	assert.Less(t, pos["shim:react-native"], pos["/components/Button.tsx"])

	app := g.Modules["/App.tsx"]
	assert.Equal(t, "/components/Button.tsx", app.ResolvedImports["./components/Button"])
	assert.Equal(t, "shim:react-native", app.ResolvedImports["react-native"])
}

func TestBuild_Cycle(t *testing.T) {
	b := newBuilder(t, nil)
	g, collector := build(t, b, map[string]string{
		"/a.ts": `import { fromB } from "./b";
export const fromA = () => fromB;`,
		"/b.ts": `import { fromA } from "./a";
export const fromB = () => fromA;`,
	}, "/a.ts")

	assert.False(t, collector.HasErrors())
	assert.Len(t, g.Order, 2)
	assert.Equal(t, "/a.ts", g.Order[1])
}

func TestBuild_Determinism(t *testing.T) {
	files := map[string]string{
		"/App.tsx": `import "./x"; import "./y"; import "./z"; export const a = 1;`,
		"/x.ts":    `export const x = 1;`,
		"/y.ts":    `export const y = 1;`,
		"/z.ts":    `export const z = 1;`,
	}
	b := newBuilder(t, nil)
	first, _ := build(t, b, files, "/App.tsx")
	for i := 0; i < 5; i++ {
		next, _ := build(t, b, files, "/App.tsx")
		assert.Equal(t, first.Order, next.Order)
	}
}

func TestBuild_MissingEntry(t *testing.T) {
	b := newBuilder(t, nil)
	g, collector := build(t, b, map[string]string{"/other.ts": ""}, "/App.tsx")

	assert.Nil(t, g)
	require.True(t, collector.HasErrors())
	d := collector.Items()[0]
	assert.Equal(t, diag.CodeVfsNotFound, d.Code)
	assert.Equal(t, "/App.tsx", d.File)
}

func TestBuild_MissingImport(t *testing.T) {
	b := newBuilder(t, nil)
	g, collector := build(t, b, map[string]string{
		"/App.tsx": "import { gone } from \"./missing\";\nexport const a = gone;",
	}, "/App.tsx")

	require.True(t, collector.HasErrors())
	var found bool
	for _, d := range collector.Items() {
		if d.Code == diag.CodeModuleNotFound {
			found = true
			assert.Equal(t, "/App.tsx", d.File)
			assert.Equal(t, 1, d.Line)
		}
	}
	assert.True(t, found)
	assert.Contains(t, g.Modules, "/App.tsx", "the importer itself still has a record")
}

func TestBuild_UnsupportedSubpath(t *testing.T) {
	b := newBuilder(t, nil)
	_, collector := build(t, b, map[string]string{
		"/App.tsx": `import x from "react-native/NativeModules"; export const a = x;`,
	}, "/App.tsx")

	require.True(t, collector.HasErrors())
	assert.Equal(t, diag.CodeUnsupportedAPI, collector.Items()[0].Code)
}

func TestBuild_ShimSubpathRecord(t *testing.T) {
	b := newBuilder(t, nil)
	g, collector := build(t, b, map[string]string{
		"/App.tsx": `import StatusBar from "react-native/StatusBar"; export const a = StatusBar;`,
	}, "/App.tsx")

	require.False(t, collector.HasErrors(), "diagnostics: %v", collector.Items())
	rec := g.Modules["shim:react-native/StatusBar"]
	require.NotNil(t, rec)
	assert.Contains(t, rec.Body, `__req("react-native")`)
	assert.Contains(t, rec.Body, "__exp.default = _s.StatusBar;")
	assert.Contains(t, g.Modules, "shim:react-native", "the subpath drags in its parent shim")
}

func TestBuild_JSONModule(t *testing.T) {
	b := newBuilder(t, nil)
	g, collector := build(t, b, map[string]string{
		"/App.ts":      `import cfg from "./config.json"; export const c = cfg;`,
		"/config.json": `{"name": "demo"}`,
	}, "/App.ts")

	require.False(t, collector.HasErrors(), "diagnostics: %v", collector.Items())
	rec := g.Modules["/config.json"]
	require.NotNil(t, rec)
	assert.Contains(t, rec.Body, "__exp.default =")
	assert.Equal(t, []string{"default"}, rec.Exports)
}

func TestBuild_SyntaxError(t *testing.T) {
	b := newBuilder(t, nil)
	g, collector := build(t, b, map[string]string{
		"/App.tsx": "export default function App( {",
	}, "/App.tsx")

	require.True(t, collector.HasErrors())
	assert.Equal(t, diag.CodeSyntaxError, collector.Items()[0].Code)
	assert.Contains(t, g.Modules, "/App.tsx")
}

func TestBuild_CacheReuse(t *testing.T) {
	files := map[string]string{
		"/App.tsx": `import { b } from "./b"; export const a = b;`,
		"/b.ts":    `export const b = 1;`,
	}
	b := newBuilder(t, nil)

	build(t, b, files, "/App.tsx")
	assert.Equal(t, int64(0), b.CacheHits())
	assert.Equal(t, int64(2), b.CacheMisses())

	t.Run("unchanged snapshot hits for every file", func(t *testing.T) {
		build(t, b, files, "/App.tsx")
		assert.Equal(t, int64(2), b.CacheHits())
		assert.Equal(t, int64(2), b.CacheMisses())
	})

	t.Run("edit invalidates only the changed file", func(t *testing.T) {
		files["/b.ts"] = `export const b = 2;`
		build(t, b, files, "/App.tsx")
		assert.Equal(t, int64(3), b.CacheHits(), "untouched /App.tsx is reused")
		assert.Equal(t, int64(3), b.CacheMisses(), "/b.ts is recomputed")
	})
}

func TestBuild_PeerCancellationDoesNotPoisonFlight(t *testing.T) {
	files := map[string]string{
		"/App.tsx": `import { a } from "./a"; import { b } from "./b"; export default a + b;`,
		"/a.ts":    `import { c } from "./c"; export const a = c + 1;`,
		"/b.ts":    `import { c } from "./c"; export const b = c + 2;`,
		"/c.ts":    `export const c = 40;`,
	}

	// Two builds race on the same uncached modules; the one whose
	// context dies mid-flight must not fail the healthy one waiting on
	// the same single-flight keys.
	for i := 0; i < 25; i++ {
		b := newBuilder(t, nil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			c := diag.NewCollector(200)
			_, _ = b.Build(ctx, vfs.SnapshotOf(files), "/App.tsx", c)
		}()
		cancel()

		g, collector := build(t, b, files, "/App.tsx")
		require.NotNil(t, g)
		assert.False(t, collector.HasErrors(), "peer cancellation leaked: %v", collector.Items())
		assert.Len(t, g.Order, 4)
		<-done
	}
}

func TestBuild_ExternalPackage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/uuid@9.0.0" {
			w.Write([]byte("export default function v4() { return \"id\"; }"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	reg, err := registry.NewClient(srv.URL, time.Second, 16)
	require.NoError(t, err)
	b := newBuilder(t, reg)

	g, collector := build(t, b, map[string]string{
		"/App.ts":       `import v4 from "uuid"; export const id = v4();`,
		"/package.json": `{"dependencies": {"uuid": "9.0.0"}}`,
	}, "/App.ts")

	require.False(t, collector.HasErrors(), "diagnostics: %v", collector.Items())
	rec := g.Modules["pkg:uuid@9.0.0"]
	require.NotNil(t, rec)
	assert.Contains(t, rec.Body, "__exp.default")
}

func TestBuild_RegistryTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	reg, err := registry.NewClient(srv.URL, 30*time.Millisecond, 16)
	require.NoError(t, err)
	b := newBuilder(t, reg)

	_, collector := build(t, b, map[string]string{
		"/App.ts": `import x from "slow-pkg"; export const a = x;`,
	}, "/App.ts")

	require.True(t, collector.HasErrors())
	d := collector.Items()[0]
	assert.Equal(t, diag.CodeResolutionTimeout, d.Code)
	assert.Equal(t, "/App.ts", d.File)
}

func TestBuild_RegistryDisabled(t *testing.T) {
	b := newBuilder(t, nil)
	_, collector := build(t, b, map[string]string{
		"/App.ts": `import x from "lodash"; export const a = x;`,
	}, "/App.ts")

	require.True(t, collector.HasErrors())
	assert.Equal(t, diag.CodeUnresolvedImport, collector.Items()[0].Code)
}
