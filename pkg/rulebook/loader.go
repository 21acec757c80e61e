package rulebook

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlDocument mirrors the on-disk rulebook format.
type yamlDocument struct {
	Tables []yamlTable `yaml:"tables"`
}

type yamlTable struct {
	Name   string           `yaml:"name"`
	Fields []yamlField      `yaml:"fields"`
	Rows   []map[string]any `yaml:"rows"`
}

type yamlField struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Formula string `yaml:"formula,omitempty"`
}

// Load reads and parses a rulebook YAML file.
func Load(path string) (*Rulebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rulebook: %w", err)
	}
	rb, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rulebook %s: %w", path, err)
	}
	return rb, nil
}

// Parse parses rulebook YAML. A field with a formula is derived, one
// without is raw. The returned Rulebook is fully validated; malformed
// input never yields partial data.
func Parse(data []byte) (*Rulebook, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("rulebook has no tables")
	}

	rb := &Rulebook{}
	for _, yt := range doc.Tables {
		table := &Table{Name: yt.Name}

		for _, yf := range yt.Fields {
			def := FieldDefinition{
				Name:    yf.Name,
				Type:    FieldType(yf.Type),
				Origin:  OriginRaw,
				Formula: yf.Formula,
			}
			if yf.Formula != "" {
				def.Origin = OriginDerived
			}
			table.Fields = append(table.Fields, def)
		}

		for i, yr := range yt.Rows {
			row := make(Row, len(yr))
			for name, raw := range yr {
				v, err := valueFromYAML(raw)
				if err != nil {
					return nil, fmt.Errorf("table %q row %d field %q: %w", yt.Name, i, name, err)
				}
				row[name] = v
			}
			table.Rows = append(table.Rows, row)
		}

		rb.Tables = append(rb.Tables, table)
	}

	if err := rb.Validate(); err != nil {
		return nil, err
	}
	return rb, nil
}

// Marshal renders a rulebook back into the on-disk YAML format.
func Marshal(rb *Rulebook) ([]byte, error) {
	var doc yamlDocument
	for _, t := range rb.Tables {
		yt := yamlTable{Name: t.Name}
		for _, f := range t.Fields {
			yt.Fields = append(yt.Fields, yamlField{
				Name:    f.Name,
				Type:    string(f.Type),
				Formula: f.Formula,
			})
		}
		for _, row := range t.Rows {
			yr := make(map[string]any, len(row))
			for name, v := range row {
				yr[name] = valueToYAML(v)
			}
			yt.Rows = append(yt.Rows, yr)
		}
		doc.Tables = append(doc.Tables, yt)
	}
	return yaml.Marshal(&doc)
}

// Save writes a rulebook YAML file.
func Save(path string, rb *Rulebook) error {
	data, err := Marshal(rb)
	if err != nil {
		return fmt.Errorf("marshaling rulebook: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing rulebook: %w", err)
	}
	return nil
}

// valueToYAML converts a Value to the scalar yaml.v3 encodes for it.
func valueToYAML(v Value) any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindString:
		return v.Str
	default:
		return nil
	}
}

// valueFromYAML converts a decoded YAML scalar to a Value.
func valueFromYAML(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return BoolValue(v), nil
	case int:
		return IntValue(int64(v)), nil
	case int64:
		return IntValue(v), nil
	case uint64:
		return IntValue(int64(v)), nil
	case string:
		return StringValue(v), nil
	default:
		return Null(), fmt.Errorf("unsupported value %v (%T)", raw, raw)
	}
}
