// Package yamlutil helps a YAML-backed struct preserve fields it does not
// recognize: decode a mapping node into the struct's known, tagged fields
// while capturing everything else verbatim, then write the captured
// fields back out alongside the known ones on the next marshal. This is
// the forward-compatibility guarantee the ledger's persisted formats
// (config file, chain snapshot) require: a file written by a newer
// version with an extra field must round-trip through an older reader
// without losing that field.
package yamlutil

import (
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// Extra holds the mapping entries DecodeKnown did not find a tagged field
// for, keyed by their original YAML key, so a later EncodeWithExtra can
// write them back out unchanged.
type Extra struct {
	fields map[string]yaml.Node
}

// DecodeKnown decodes node's recognized keys into known, a pointer to a
// plain struct type (typically a local `type plain T` alias of the
// caller's type, to avoid recursing back into a custom UnmarshalYAML),
// and returns an Extra capturing every mapping key known's yaml tags do
// not claim.
func DecodeKnown(node *yaml.Node, known interface{}) (Extra, error) {
	if node.Kind != yaml.MappingNode {
		return Extra{}, fmt.Errorf("yamlutil: expected a mapping node, got kind %d", node.Kind)
	}
	if err := node.Decode(known); err != nil {
		return Extra{}, err
	}

	tags := yamlTags(known)
	extra := Extra{fields: make(map[string]yaml.Node)}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if tags[key.Value] {
			continue
		}
		extra.fields[key.Value] = *val
	}
	return extra, nil
}

// EncodeWithExtra encodes known (a plain struct, as passed to
// DecodeKnown) into a mapping node and appends every field extra
// captured, reproducing fields this version of the struct never parsed.
func EncodeWithExtra(known interface{}, extra Extra) (*yaml.Node, error) {
	var node yaml.Node
	if err := node.Encode(known); err != nil {
		return nil, err
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("yamlutil: encoded value is not a mapping node")
	}
	for key, val := range extra.fields {
		v := val
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&v,
		)
	}
	return &node, nil
}

// yamlTags collects the set of top-level YAML keys v's struct type
// declares via `yaml:"..."` tags, mirroring the naming rules yaml.v3
// itself applies (explicit tag name, falling back to the lowercased
// field name; "-" or unexported fields are skipped).
func yamlTags(v interface{}) map[string]bool {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	tags := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue // unexported
		}
		tag := field.Tag.Get("yaml")
		name, _, _ := strings.Cut(tag, ",")
		switch name {
		case "-":
			continue
		case "":
			name = strings.ToLower(field.Name)
		}
		tags[name] = true
	}
	return tags
}
