package processing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingConfigValidate(t *testing.T) {
	testCases := []struct {
		name          string
		mutate        func(c *MappingConfig)
		errorContains string
	}{
		{name: "valid", mutate: func(c *MappingConfig) {}},
		{name: "missing service name", mutate: func(c *MappingConfig) { c.ServiceName = " " }, errorContains: "service_name is required"},
		{name: "missing variant", mutate: func(c *MappingConfig) { c.Variant = "" }, errorContains: "variant is required"},
		{name: "header row zero", mutate: func(c *MappingConfig) { c.HeaderRowIndex = 0 }, errorContains: "header_row_index"},
		{name: "no test name aliases", mutate: func(c *MappingConfig) { delete(c.Columns, FieldTestName) }, errorContains: "test_name"},
		{name: "unknown field", mutate: func(c *MappingConfig) { c.Columns["price"] = []string{"Rate"} }, errorContains: "unknown field 'price'"},
		{name: "blank alias", mutate: func(c *MappingConfig) { c.Columns[FieldUnit] = []string{""} }, errorContains: "empty alias"},
		{name: "unknown transform", mutate: func(c *MappingConfig) { c.Transforms[FieldUnit] = "reverse" }, errorContains: "unknown transform 'reverse'"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testMapping()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.errorContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorContains)
		})
	}
}

func TestBuiltinMappings(t *testing.T) {
	loader, err := NewConfigLoader("")
	require.NoError(t, err)

	names := loader.ServiceNames()
	assert.Contains(t, names, "Environmental Testing")
	assert.Contains(t, names, "Food Testing")

	env, ok := loader.GetConfig("Environmental Testing")
	require.True(t, ok)
	assert.Equal(t, "environment-v2", env.Variant)
	assert.Equal(t, 2, env.HeaderRowIndex)
	assert.Equal(t, TransformToInt, env.TransformFor(FieldTATDays))
	assert.Equal(t, TransformNone, env.TransformFor(FieldGroup))
	assert.True(t, env.SkipsGroup("sampling and transportation cost"))

	food, ok := loader.GetConfig("Food Testing")
	require.True(t, ok)
	assert.Equal(t, 1, food.HeaderRowIndex)
	assert.NotEqual(t, env.Columns[FieldTestName], food.Columns[FieldTestName])

	_, ok = loader.GetConfig("environmental testing")
	assert.False(t, ok, "service names match exactly")
}

func TestConfigLoaderDirectory(t *testing.T) {
	dir := t.TempDir()
	extra := `
service_name: Building Materials Testing
variant: materials-v1
header_row_index: 1
columns:
  test_name: [Test]
  unit: [Unit]
`
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "materials.yml"), []byte(extra), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	loader, err := NewConfigLoader(dir)
	require.NoError(t, err)

	cfg, ok := loader.GetConfig("Building Materials Testing")
	require.True(t, ok)
	assert.Equal(t, "Building Materials Testing", cfg.Category, "category defaults to the service name")
	assert.Len(t, loader.Configs(), 3)
}

func TestConfigLoaderRejectsDuplicatesAndInvalid(t *testing.T) {
	t.Run("duplicate of a built-in", func(t *testing.T) {
		dir := t.TempDir()
		dup := "service_name: Food Testing\nvariant: food-v9\nheader_row_index: 1\ncolumns:\n  test_name: [Test]\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "dup.yaml"), []byte(dup), 0o644))

		_, err := NewConfigLoader(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate service_name 'Food Testing'")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("columns: [oops"), 0o644))

		_, err := NewConfigLoader(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse YAML")
	})

	t.Run("inline duplicates", func(t *testing.T) {
		_, err := NewConfigLoaderFromConfigs(testMapping(), testMapping())
		assert.Error(t, err)
	})
}
