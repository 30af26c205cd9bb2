package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stratum/internal/entity"
)

type fileElem struct {
	Kind string `yaml:"kind"`
	ID   int64  `yaml:"id,omitempty"`
	Name string `yaml:"name,omitempty"`
}

type filePropertyValue struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Value   any    `yaml:"value"`
	Indexed *bool  `yaml:"indexed"`
}

type fileEntity struct {
	Kind       string              `yaml:"kind"`
	ID         int64               `yaml:"id,omitempty"`
	Name       string              `yaml:"name,omitempty"`
	Namespace  string              `yaml:"namespace,omitempty"`
	Parent     []fileElem          `yaml:"parent,omitempty"`
	Properties []filePropertyValue `yaml:"properties"`
}

type entityFile struct {
	Entities []fileEntity `yaml:"entities"`
}

// LoadEntityFile parses a YAML entity file into entities bound to the
// given app. Entities without an id or name get an incomplete key and
// are assigned an id on Put.
func LoadEntityFile(path, app, defaultNamespace string) ([]entity.Entity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "reading entity file", err)
	}
	var parsed entityFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, WrapExitError(ExitCommandError, "parsing entity file", err)
	}

	entities := make([]entity.Entity, 0, len(parsed.Entities))
	for i, fe := range parsed.Entities {
		ent, err := fe.toEntity(app, defaultNamespace)
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
		entities = append(entities, ent)
	}
	return entities, nil
}

func (fe fileEntity) toEntity(app, defaultNamespace string) (entity.Entity, error) {
	if fe.Kind == "" {
		return entity.Entity{}, NewExitError(ExitCommandError, "entity kind is required")
	}
	namespace := fe.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}

	var path []entity.PathElement
	for _, p := range fe.Parent {
		path = append(path, entity.PathElement{Kind: p.Kind, ID: p.ID, Name: p.Name})
	}
	path = append(path, entity.PathElement{Kind: fe.Kind, ID: fe.ID, Name: fe.Name})

	ent := entity.Entity{
		Key: entity.Key{App: app, Namespace: namespace, Path: path},
	}
	for _, fp := range fe.Properties {
		value, err := parsePropertyValue(fp.Type, fp.Value)
		if err != nil {
			return entity.Entity{}, fmt.Errorf("property %s: %w", fp.Name, err)
		}
		indexed := true
		if fp.Indexed != nil {
			indexed = *fp.Indexed
		}
		ent.Properties = append(ent.Properties, entity.Property{
			Name:    fp.Name,
			Value:   value,
			Indexed: indexed,
		})
	}
	return ent, nil
}

func parsePropertyValue(typ string, raw any) (entity.Value, error) {
	switch typ {
	case "int", "":
		switch v := raw.(type) {
		case int:
			return entity.Int64(v), nil
		case int64:
			return entity.Int64(v), nil
		}
	case "float":
		switch v := raw.(type) {
		case float64:
			return entity.Float64(v), nil
		case int:
			return entity.Float64(v), nil
		}
	case "bool":
		if v, ok := raw.(bool); ok {
			return entity.Bool(v), nil
		}
	case "string":
		if v, ok := raw.(string); ok {
			return entity.String(v), nil
		}
	case "bytes":
		if v, ok := raw.(string); ok {
			return entity.Bytes(v), nil
		}
	case "time":
		if v, ok := raw.(string); ok {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, err
			}
			return entity.Time(ts), nil
		}
	case "user":
		if m, ok := raw.(map[string]any); ok {
			u := entity.User{}
			u.Email, _ = m["email"].(string)
			u.AuthDomain, _ = m["auth_domain"].(string)
			u.Nickname, _ = m["nickname"].(string)
			return u, nil
		}
	case "geo":
		if m, ok := raw.(map[string]any); ok {
			g := entity.GeoPoint{}
			g.Lat, _ = asFloat(m["lat"])
			g.Lng, _ = asFloat(m["lng"])
			return g, nil
		}
	default:
		return nil, fmt.Errorf("unknown value type %q", typ)
	}
	return nil, fmt.Errorf("value %v does not match type %q", raw, typ)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// parseKeyArg turns "Author:1/Book:roughing-it" into a key. Numeric
// segments are ids, everything else is a name.
func parseKeyArg(app, namespace, arg string) (entity.Key, error) {
	var path []entity.PathElement
	for _, seg := range strings.Split(arg, "/") {
		kind, ident, ok := strings.Cut(seg, ":")
		if !ok || kind == "" || ident == "" {
			return entity.Key{}, NewExitError(ExitCommandError,
				fmt.Sprintf("malformed key segment %q (want Kind:id or Kind:name)", seg))
		}
		elem := entity.PathElement{Kind: kind}
		if id, err := strconv.ParseInt(ident, 10, 64); err == nil {
			elem.ID = id
		} else {
			elem.Name = ident
		}
		path = append(path, elem)
	}
	return entity.Key{App: app, Namespace: namespace, Path: path}, nil
}

// renderEntity flattens an entity for output.
func renderEntity(ent entity.Entity) map[string]any {
	props := make([]map[string]any, 0, len(ent.Properties))
	for _, p := range ent.Properties {
		props = append(props, map[string]any{
			"name":    p.Name,
			"value":   renderValue(p.Value),
			"indexed": p.Indexed,
		})
	}
	return map[string]any{
		"key":        ent.Key.String(),
		"properties": props,
	}
}

func renderValue(v entity.Value) any {
	switch val := v.(type) {
	case entity.Int64:
		return int64(val)
	case entity.Float64:
		return float64(val)
	case entity.Bool:
		return bool(val)
	case entity.String:
		return string(val)
	case entity.Bytes:
		return string(val)
	case entity.Time:
		return time.Time(val).Format(time.RFC3339Nano)
	case entity.GeoPoint:
		return map[string]any{"lat": val.Lat, "lng": val.Lng}
	case entity.KeyRef:
		return entity.Key(val).String()
	case entity.User:
		return map[string]any{"email": val.Email, "auth_domain": val.AuthDomain}
	}
	return fmt.Sprintf("%v", v)
}
