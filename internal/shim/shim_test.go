package shim

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	table := NewTable()

	m, ok := table.Lookup("react-native")
	require.True(t, ok)
	assert.Equal(t, "shim:react-native", m.ID)
	assert.True(t, m.HasExport("View"))
	assert.True(t, m.HasExport("StyleSheet"))

	_, ok = table.Lookup("react-native-maps")
	assert.False(t, ok)
}

func TestCovers(t *testing.T) {
	table := NewTable()

	assert.True(t, table.Covers("react"))
	assert.True(t, table.Covers("react-native/StatusBar"))
	assert.True(t, table.Covers("@expo/vector-icons"))
	assert.True(t, table.Covers("@expo/vector-icons/Ionicons"))
	assert.False(t, table.Covers("lodash"))
	assert.False(t, table.Covers("@react-navigation/native"))
}

func TestResolveSubpath(t *testing.T) {
	table := NewTable()

	t.Run("known export", func(t *testing.T) {
		m, export, err := table.ResolveSubpath("react-native", "StatusBar")
		require.NoError(t, err)
		assert.Equal(t, "shim:react-native", m.ID)
		assert.Equal(t, "StatusBar", export)
	})

	t.Run("nested path takes last segment", func(t *testing.T) {
		_, export, err := table.ResolveSubpath("@expo/vector-icons", "build/Ionicons")
		require.NoError(t, err)
		assert.Equal(t, "Ionicons", export)
	})

	t.Run("unknown export fails", func(t *testing.T) {
		_, _, err := table.ResolveSubpath("react-native", "NativeModules")
		assert.Error(t, err)
	})

	t.Run("unknown package fails", func(t *testing.T) {
		_, _, err := table.ResolveSubpath("react-native-camera", "Camera")
		assert.Error(t, err)
	})
}

func TestSplitSubpath(t *testing.T) {
	cases := []struct {
		in, pkg, rest string
	}{
		{"react", "react", ""},
		{"react-native/StatusBar", "react-native", "StatusBar"},
		{"@expo/vector-icons", "@expo/vector-icons", ""},
		{"@expo/vector-icons/build/Ionicons", "@expo/vector-icons", "build/Ionicons"},
	}
	for _, tc := range cases {
		pkg, rest := SplitSubpath(tc.in)
		assert.Equal(t, tc.pkg, pkg, tc.in)
		assert.Equal(t, tc.rest, rest, tc.in)
	}
}

func TestBuiltinSources_RegisterForm(t *testing.T) {
	table := NewTable()
	for _, name := range table.Names() {
		m, _ := table.Lookup(name)
		assert.Contains(t, m.Source, "__exp.", "%s must assign exports", name)
		for _, export := range m.Exports {
			if export == "default" {
				assert.Contains(t, m.Source, "__exp.default", name)
				continue
			}
			assert.Contains(t, m.Source, "__exp."+export, "%s should assign %s", name, export)
		}
		// Declared deps must actually be required, and vice versa.
		for spec := range m.Deps {
			assert.Contains(t, m.Source, `__req("`+spec+`")`, name)
		}
		if strings.Contains(m.Source, "__req(") {
			assert.NotEmpty(t, m.Deps, "%s requires modules but declares no deps", name)
		}
	}
}

func TestNames_Sorted(t *testing.T) {
	names := NewTable().Names()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}
