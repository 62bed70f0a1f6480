package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentic-research/configtree/internal/cfgerr"
	"github.com/agentic-research/configtree/internal/ingest"
)

type dataFormat int

const (
	formatJSON dataFormat = iota
	formatYAML
)

// loadFile implements "=.file(path)": store a file's contents verbatim.
func loadFile(target leafTarget, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfgerr.New(cfgerr.LoadDataError, path, "reading file: %v", err)
	}
	return target.store(string(raw))
}

// loadStructured implements "=.json(path[!selector])" and
// "=.yaml(path[!selector])": decode the file and project it with a
// JSONPath selector (default "$"), storing the sole scalar match. A
// selector resolving to zero, many, or a non-scalar match is a
// LoadDataError — a leaf can only ever hold one scalar.
func loadStructured(target leafTarget, arg string, format dataFormat) error {
	path, selector := arg, "$"
	if idx := strings.IndexByte(arg, '!'); idx >= 0 {
		path, selector = arg[:idx], arg[idx+1:]
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfgerr.New(cfgerr.LoadDataError, path, "reading file: %v", err)
	}

	var data any
	var walker ingest.Walker
	switch format {
	case formatJSON:
		if jerr := json.Unmarshal(raw, &data); jerr != nil {
			return cfgerr.New(cfgerr.LoadDataError, path, "invalid JSON: %v", jerr)
		}
		walker = ingest.NewJsonWalker()
	case formatYAML:
		if yerr := yaml.Unmarshal(raw, &data); yerr != nil {
			return cfgerr.New(cfgerr.LoadDataError, path, "invalid YAML: %v", yerr)
		}
		walker = ingest.NewYamlWalker()
	}

	matches, qerr := walker.Query(data, selector)
	if qerr != nil {
		return cfgerr.New(cfgerr.LoadDataError, path, "selector %q: %v", selector, qerr)
	}
	if len(matches) != 1 {
		return cfgerr.New(cfgerr.LoadDataError, path, "selector %q matched %d values, want exactly 1", selector, len(matches))
	}

	values := matches[0].Values()
	scalar, ok := values["value"]
	if !ok {
		return cfgerr.New(cfgerr.LoadDataError, path, "selector %q matched an object, not a scalar", selector)
	}
	return target.store(fmt.Sprint(scalar))
}

// loadEnv implements "=.env(NAME)": store the named environment variable's
// value. A missing variable clears the leaf instead, restoring precedence
// to the next lower source.
func loadEnv(target leafTarget, name string) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return target.clear()
	}
	return target.store(v)
}
