package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Get returns the value at a dot-separated key such as "api.base_url"
func (c Config) Get(key string) (string, error) {
	tree, err := toTree(c)
	if err != nil {
		return "", err
	}

	var node any = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return "", fmt.Errorf("unknown configuration key %q", key)
		}
		node, ok = m[part]
		if !ok {
			return "", fmt.Errorf("unknown configuration key %q", key)
		}
	}

	if _, ok := node.(map[string]any); ok {
		return "", fmt.Errorf("%q is a section; use one of its keys", key)
	}
	return fmt.Sprint(node), nil
}

// Set assigns value at a dot-separated key and returns the updated configuration.
// The value is parsed as YAML so "true" and "45s" become typed values.
func (c Config) Set(key, value string) (Config, error) {
	tree, err := toTree(c)
	if err != nil {
		return c, err
	}

	parts := strings.Split(key, ".")
	m := tree
	for _, part := range parts[:len(parts)-1] {
		child, ok := m[part].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[part] = child
		}
		m = child
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil || parsed == nil {
		parsed = value
	}
	m[parts[len(parts)-1]] = parsed

	data, err := yaml.Marshal(tree)
	if err != nil {
		return c, err
	}

	updated := Default()
	if err := decode(data, &updated); err != nil {
		return c, fmt.Errorf("cannot set %q: %w", key, err)
	}
	return updated, updated.Validate()
}

// Keys lists every settable key in sorted order
func (c Config) Keys() []string {
	tree, err := toTree(c)
	if err != nil {
		return nil
	}
	var keys []string
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if child, ok := v.(map[string]any); ok {
				walk(prefix+k+".", child)
				continue
			}
			keys = append(keys, prefix+k)
		}
	}
	walk("", tree)
	sort.Strings(keys)
	return keys
}

func toTree(c Config) (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}
