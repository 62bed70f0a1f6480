package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
class "Database" {
  summary = "one connection"

  element "host" {
    kind    = "leaf"
    type    = "string"
    default = "localhost"
  }

  element "port" {
    kind = "leaf"
    type = "integer"
    min  = 1
    max  = 65535

    warn_if_match {
      pattern = "^0$"
      message = "port zero is reserved"
    }
  }
}

class "Root" {
  element "tags" {
    kind             = "hash"
    auto_create_keys = true
    cargo_value = {
      type = "string"
    }
  }

  element "database" {
    kind  = "node"
    class = "Database"
  }

  element "profile" {
    kind          = "warped_node"
    masters       = ["tags"]
    default_class = "Database"

    rule {
      equals = ["postgres"]
      class  = "Database"
    }
    rule {
      class = "Database"
    }
  }

  accept {
    pattern = "^x_.*$"
  }
}
`

func TestLoadBytesDecodesClasses(t *testing.T) {
	cat, err := LoadBytes([]byte(sample), "sample.hcl")
	require.NoError(t, err)
	require.Contains(t, cat.Classes, "Database")
	require.Contains(t, cat.Classes, "Root")

	db := cat.Classes["Database"]
	require.Len(t, db.Elements, 2)
	assert.Equal(t, "host", db.Elements[0].Name)
	assert.Equal(t, "localhost", db.Elements[0].ValueParams["default"])
	assert.Equal(t, float64(1), db.Elements[1].ValueParams["min"])

	rules, ok := db.Elements[1].ValueParams["warn_if_match"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, rules, 1)
	assert.Equal(t, "^0$", rules[0]["pattern"])
}

func TestLoadBytesDecodesCollectionsAndWarps(t *testing.T) {
	cat, err := LoadBytes([]byte(sample), "sample.hcl")
	require.NoError(t, err)
	root := cat.Classes["Root"]

	var tags, database, profile *int
	for i := range root.Elements {
		switch root.Elements[i].Name {
		case "tags":
			idx := i
			tags = &idx
		case "database":
			idx := i
			database = &idx
		case "profile":
			idx := i
			profile = &idx
		}
	}
	require.NotNil(t, tags)
	require.NotNil(t, database)
	require.NotNil(t, profile)

	assert.Equal(t, true, root.Elements[*tags].CollectionParams["auto_create_keys"])
	cargoVal, ok := root.Elements[*tags].CollectionParams["cargo_value"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", cargoVal["type"])

	assert.Equal(t, "Database", root.Elements[*database].ClassName)

	warp := root.Elements[*profile].WarpParams
	require.NotNil(t, warp)
	assert.Equal(t, []string{"tags"}, warp.Masters)
	require.Len(t, warp.Rules, 2)
	assert.True(t, warp.Rules[0].Condition([]string{"postgres"}))
	assert.False(t, warp.Rules[0].Condition([]string{"mysql"}))
	assert.Nil(t, warp.Rules[1].Condition)

	require.Len(t, root.Accept, 1)
	assert.Equal(t, "^x_.*$", root.Accept[0].Pattern)
}

func TestLoadBytesRejectsUnknownKind(t *testing.T) {
	_, err := LoadBytes([]byte(`class "X" { element "y" { kind = "bogus" } }`), "bad.hcl")
	require.Error(t, err)
}
