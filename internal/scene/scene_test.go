package scene

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/rsgwm/internal/core"
	"github.com/agenthands/rsgwm/internal/core/model"
)

const yamlScene = `
- "@worldmodeltype": RSGUpdate
  operation: CREATE
  parentId: e379121f-06c6-4e21-ae9d-ae78ec1986a1
  node:
    "@graphtype": Node
    id: 3304e4a0-44d4-4fc8-8834-b0b03b418d5b
    attributes:
      - key: name
        value: table
- "@worldmodeltype": RSGUpdate
  operation: CREATE
  parentId: e379121f-06c6-4e21-ae9d-ae78ec1986a1
  node:
    "@graphtype": Node
    id: 9f0c3bb2-5e6a-4b8e-9d51-6f2b0e4c7a11
- "@worldmodeltype": RSGUpdate
  operation: CREATE
  parentId: e379121f-06c6-4e21-ae9d-ae78ec1986a1
  node:
    "@graphtype": Connection
    "@semanticContext": Transform
    id: aa000000-0000-4000-8000-0000000000ab
    sourceIds: [3304e4a0-44d4-4fc8-8834-b0b03b418d5b]
    targetIds: [9f0c3bb2-5e6a-4b8e-9d51-6f2b0e4c7a11]
    history:
      - stamp: {"@stamptype": TimeStampUTCms, stamp: 0}
        transform:
          type: HomogeneousMatrix44
          matrix: [[1,0,0,2],[0,1,0,0],[0,0,1,0],[0,0,0,1]]
`

func writeScene(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndApplyYAML(t *testing.T) {
	envs, err := Load(writeScene(t, "scene.yaml", yamlScene))
	require.NoError(t, err)
	require.Len(t, envs, 3)

	wm := core.NewWorldModel(core.Options{})
	t.Cleanup(wm.Close)
	require.NoError(t, Apply(context.Background(), wm, envs, nil))

	ids, err := wm.FindNodes(context.Background(), []model.Predicate{{Key: "name", Value: []byte(`"table"`)}}, "")
	require.NoError(t, err)
	assert.Equal(t, []model.ID{"3304e4a0-44d4-4fc8-8834-b0b03b418d5b"}, ids)

	m, err := wm.Transform(context.Background(), "9f0c3bb2-5e6a-4b8e-9d51-6f2b0e4c7a11", "3304e4a0-44d4-4fc8-8834-b0b03b418d5b", 0)
	require.NoError(t, err)
	x, _, _ := m.TranslationPart()
	assert.Equal(t, 2.0, x)
}

func TestLoadJSON(t *testing.T) {
	envs, err := Load(writeScene(t, "scene.json", `[
		{"@worldmodeltype": "RSGUpdate", "operation": "CREATE",
		 "parentId": "e379121f-06c6-4e21-ae9d-ae78ec1986a1",
		 "node": {"@graphtype": "Group", "id": "bb000000-0000-4000-8000-000000000001"}}
	]`))
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.JSONEq(t, `{"@worldmodeltype": "RSGUpdate", "operation": "CREATE",
		 "parentId": "e379121f-06c6-4e21-ae9d-ae78ec1986a1",
		 "node": {"@graphtype": "Group", "id": "bb000000-0000-4000-8000-000000000001"}}`, string(envs[0]))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read scene file")

	_, err = Parse([]byte("- [1, 2]"))
	assert.ErrorContains(t, err, "scene entry 0 is not an object")

	_, err = Parse([]byte("key: value"))
	assert.ErrorContains(t, err, "failed to parse scene")
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	envs, err := Parse([]byte(`
- {"@worldmodeltype": RSGUpdate, operation: CREATE, parentId: e379121f-06c6-4e21-ae9d-ae78ec1986a1, node: {"@graphtype": Node, id: 3304e4a0-44d4-4fc8-8834-b0b03b418d5b}}
- {"@worldmodeltype": RSGUpdate, operation: CREATE, parentId: 00000000-0000-4000-8000-000000000099, node: {"@graphtype": Node, id: 9f0c3bb2-5e6a-4b8e-9d51-6f2b0e4c7a11}}
- {"@worldmodeltype": RSGUpdate, operation: CREATE, parentId: e379121f-06c6-4e21-ae9d-ae78ec1986a1, node: {"@graphtype": Node, id: c1d2e3f4-0a1b-4c5d-8e9f-001122334455}}
`))
	require.NoError(t, err)

	wm := core.NewWorldModel(core.Options{})
	t.Cleanup(wm.Close)
	err = Apply(context.Background(), wm, envs, nil)
	assert.ErrorContains(t, err, "scene entry 1 failed")
	assert.True(t, wm.Store.Exists("3304e4a0-44d4-4fc8-8834-b0b03b418d5b"))
	assert.False(t, wm.Store.Exists("c1d2e3f4-0a1b-4c5d-8e9f-001122334455"))
}
