package table

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/rewired-gh/dmgvar/internal/models"
)

// Buffs is a list of damage multipliers. Documents may give a single number,
// a list, or a string in the CSV cell form "1.1;1.05". Null entries mean no buff
// and are dropped.
type Buffs []float64

func dropNulls(list []*float64) Buffs {
	var out Buffs
	for _, v := range list {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// UnmarshalYAML accepts a scalar or a sequence.
func (b *Buffs) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []*float64
		if err := value.Decode(&list); err != nil {
			return err
		}
		*b = dropNulls(list)
		return nil
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*b = nil
			return nil
		}
		list, err := parseList(value.Value)
		if err != nil {
			return fmt.Errorf("invalid buffs %q: %w", value.Value, err)
		}
		*b = list
		return nil
	}
	return fmt.Errorf("invalid buffs at line %d: expected a number or a list", value.Line)
}

// UnmarshalJSON accepts a number, a string or an array.
func (b *Buffs) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*b = nil
		return nil
	case data[0] == '[':
		var list []*float64
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*b = dropNulls(list)
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		list, err := parseList(s)
		if err != nil {
			return fmt.Errorf("invalid buffs %q: %w", s, err)
		}
		*b = list
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid buffs %s: %w", data, err)
	}
	*b = Buffs{v}
	return nil
}

// document is the mapping form of a YAML or JSON table.
type document struct {
	Actions []Row `json:"actions" yaml:"actions"`
}

// ReadYAML reads a table given as a top-level list of rows or as a mapping with
// an actions list.
func (l *Loader) ReadYAML(r io.Reader) ([]models.Action, error) {
	rows, err := ParseYAML(r)
	if err != nil {
		return nil, err
	}
	return l.Resolve(rows)
}

// ParseYAML reads YAML rows without resolving them.
func ParseYAML(r io.Reader) ([]Row, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	node := &root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}

	switch node.Kind {
	case yaml.SequenceNode:
		var rows []Row
		if err := node.Decode(&rows); err != nil {
			return nil, fmt.Errorf("failed to decode rows: %w", err)
		}
		return rows, nil
	case yaml.MappingNode:
		var doc document
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode rows: %w", err)
		}
		return doc.Actions, nil
	}
	return nil, errors.New("yaml table must be a list of rows or a mapping with an actions list")
}

// ReadJSON reads a table given as a top-level array of rows or as an object with
// an actions array.
func (l *Loader) ReadJSON(r io.Reader) ([]models.Action, error) {
	rows, err := ParseJSON(r)
	if err != nil {
		return nil, err
	}
	return l.Resolve(rows)
}

// ParseJSON reads JSON rows without resolving them.
func ParseJSON(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read json: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	switch data[0] {
	case '[':
		var rows []Row
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
		return rows, nil
	case '{':
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
		return doc.Actions, nil
	}
	return nil, errors.New("json table must be an array of rows or an object with an actions array")
}
