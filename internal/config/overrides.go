package config

import (
	"fmt"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Apply merges --context key=value overrides into the context. Keys are
// dotted paths such as development.account or common.longContext.
func (c *Context) Apply(overrides []string) error {
	if len(overrides) == 0 {
		return nil
	}

	tree := map[string]any{}
	for _, o := range overrides {
		key, value, ok := strings.Cut(o, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid context override %q, expected key=value", o)
		}
		if err := setPath(tree, strings.Split(key, "."), value); err != nil {
			return fmt.Errorf("context override %q: %w", o, err)
		}
	}

	data, err := yaml.Marshal(tree)
	if err != nil {
		return err
	}
	var override Context
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("decoding context overrides: %w", err)
	}
	if err := mergo.Merge(c, override, mergo.WithOverride); err != nil {
		return fmt.Errorf("merging context overrides: %w", err)
	}
	c.defaultTags()
	return nil
}

func setPath(tree map[string]any, path []string, value string) error {
	for i, part := range path {
		if part == "" {
			return fmt.Errorf("empty path segment")
		}
		if i == len(path)-1 {
			tree[part] = value
			return nil
		}
		next, ok := tree[part].(map[string]any)
		if !ok {
			if _, isLeaf := tree[part]; isLeaf {
				return fmt.Errorf("%s is already set to a value", strings.Join(path[:i+1], "."))
			}
			next = map[string]any{}
			tree[part] = next
		}
		tree = next
	}
	return nil
}
