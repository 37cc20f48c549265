package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopCapability(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
	return "", nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a.tool", Schema{}, nopCapability))
	require.Error(t, r.Register("a.tool", Schema{}, nopCapability))
	require.Error(t, r.Register("", Schema{}, nopCapability))
	require.Error(t, r.Register("b.tool", Schema{}, nil))
}

func TestDefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("b.tool", Schema{Description: "b"}, nopCapability))
	require.NoError(t, r.Register("a.tool", Schema{Description: "a"}, nopCapability))

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "a.tool", defs[0].Name)
	assert.Equal(t, "b.tool", defs[1].Name)
}

func TestSchemaValidate(t *testing.T) {
	s := Schema{
		Args: map[string]ArgSpec{
			"name":  {Type: "string", Required: true},
			"count": {Type: "number"},
			"flag":  {Type: "boolean"},
		},
	}

	assert.NoError(t, s.Validate(map[string]interface{}{"name": "x"}))
	assert.NoError(t, s.Validate(map[string]interface{}{"name": "x", "count": float64(3), "flag": true}))
	assert.Error(t, s.Validate(map[string]interface{}{}), "missing required")
	assert.Error(t, s.Validate(map[string]interface{}{"name": 1}), "wrong type")
	assert.Error(t, s.Validate(map[string]interface{}{"name": "x", "other": "y"}), "unknown argument")
	assert.Error(t, s.Validate(map[string]interface{}{"name": nil}), "null value")
}

func TestSchemaParameters(t *testing.T) {
	s := Schema{
		Args: map[string]ArgSpec{
			"path":    {Type: "string", Required: true, Description: "the path"},
			"pattern": {Type: "string"},
		},
	}

	params := s.Parameters()
	assert.Equal(t, "object", params["type"])

	props, ok := params["properties"].(map[string]interface{})
	require.True(t, ok)
	require.Contains(t, props, "path")
	require.Contains(t, props, "pattern")

	required, ok := params["required"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"path"}, required)
}
