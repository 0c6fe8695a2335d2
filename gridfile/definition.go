// Package gridfile loads declarative HCL grid definitions and builds
// executable graphs from them. A grid file names its tasks, binds each to a
// registered handler with optional arguments, and declares precedence with
// depends_on:
//
//	workers   = 4
//	optimized = true
//
//	task "fetch" {
//	  run  = "sleep"
//	  args = { ms = 20 }
//	}
//
//	task "merge" {
//	  run        = "print"
//	  args       = { message = "merging" }
//	  depends_on = ["fetch"]
//	}
package gridfile

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Definition is the decoded, format-agnostic model of a grid file.
type Definition struct {
	Workers   int
	Optimized bool
	Tasks     []TaskDef
}

// TaskDef describes one task: its unique name, the registered handler that
// supplies its body, handler arguments, and the names of the tasks it
// depends on.
type TaskDef struct {
	Name      string
	Run       string
	Args      map[string]cty.Value
	DependsOn []string
}

// fileRoot decodes the top-level grid file structure.
type fileRoot struct {
	Workers   *int         `hcl:"workers,optional"`
	Optimized *bool        `hcl:"optimized,optional"`
	Tasks     []*taskBlock `hcl:"task,block"`
}

type taskBlock struct {
	Name      string    `hcl:"name,label"`
	Run       *string   `hcl:"run,optional"`
	Args      cty.Value `hcl:"args,optional"`
	DependsOn []string  `hcl:"depends_on,optional"`
}

// Load parses a single grid file into a Definition. Defaults: 2 workers,
// optimized worker count, handler "noop" for tasks without a run attribute.
func Load(path string) (*Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("gridfile: failed to parse %s: %w", path, diags)
	}
	return decode(path, file.Body)
}

// LoadSource parses grid file source held in memory; filename is used in
// diagnostics only.
func LoadSource(src []byte, filename string) (*Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("gridfile: failed to parse %s: %w", filename, diags)
	}
	return decode(filename, file.Body)
}

func decode(name string, body hcl.Body) (*Definition, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("gridfile: failed to decode %s: %w", name, diags)
	}

	def := &Definition{Workers: 2, Optimized: true}
	if root.Workers != nil {
		def.Workers = *root.Workers
	}
	if root.Optimized != nil {
		def.Optimized = *root.Optimized
	}

	for _, block := range root.Tasks {
		td := TaskDef{Name: block.Name, Run: "noop", DependsOn: block.DependsOn}
		if block.Run != nil {
			td.Run = *block.Run
		}
		args, err := decodeArgs(block)
		if err != nil {
			return nil, err
		}
		td.Args = args
		def.Tasks = append(def.Tasks, td)
	}
	return def, nil
}

func decodeArgs(block *taskBlock) (map[string]cty.Value, error) {
	if block.Args.IsNull() || block.Args == cty.NilVal {
		return nil, nil
	}
	if !block.Args.Type().IsObjectType() && !block.Args.Type().IsMapType() {
		return nil, fmt.Errorf("gridfile: task %q: args must be an object", block.Name)
	}
	return block.Args.AsValueMap(), nil
}
