package index

import (
	_ "embed"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/stratum/internal/dserr"
)

//go:embed schema.cue
var schemaSource string

type fileProperty struct {
	Name      string `yaml:"name"`
	Direction string `yaml:"direction"`
}

type fileIndex struct {
	Kind       string         `yaml:"kind"`
	Ancestor   bool           `yaml:"ancestor"`
	Properties []fileProperty `yaml:"properties"`
}

type indexFile struct {
	Indexes []fileIndex `yaml:"indexes"`
}

// LoadFile parses a YAML index definition file, validates it against the
// embedded schema, and returns definitions bound to the given app. The
// returned definitions carry id 0 and no state; register them through a
// Registry.
func LoadFile(path, app string) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, dserr.Newf(dserr.CodeBadRequest, "reading index file: %v", err)
	}
	return ParseDefinitions(raw, app)
}

// ParseDefinitions is LoadFile for in-memory YAML.
func ParseDefinitions(raw []byte, app string) ([]Definition, error) {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, dserr.Newf(dserr.CodeBadRequest, "parsing index file: %v", err)
	}
	if err := validateAgainstSchema(generic); err != nil {
		return nil, err
	}

	var parsed indexFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, dserr.Newf(dserr.CodeBadRequest, "parsing index file: %v", err)
	}

	defs := make([]Definition, 0, len(parsed.Indexes))
	for _, fi := range parsed.Indexes {
		def := Definition{
			App:      app,
			Kind:     fi.Kind,
			Ancestor: fi.Ancestor,
		}
		for _, fp := range fi.Properties {
			def.Properties = append(def.Properties, SortProperty{
				Name:       fp.Name,
				Descending: fp.Direction == "desc",
			})
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func validateAgainstSchema(doc any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return dserr.Newf(dserr.CodeInternal, "compiling index schema: %v", err)
	}
	value := ctx.Encode(doc)
	if err := value.Err(); err != nil {
		return dserr.Newf(dserr.CodeBadRequest, "encoding index file: %v", err)
	}
	unified := schema.Unify(value)
	// Concrete validation turns a missing required field into an error
	// instead of an incomplete value.
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return dserr.Newf(dserr.CodeBadRequest, "invalid index file: %v", err)
	}
	return nil
}
