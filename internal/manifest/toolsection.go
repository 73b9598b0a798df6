package manifest

import (
	"sort"
	"strings"
)

// ToolSection holds the [cargo-wop] settings.
type ToolSection struct {
	// DefaultAction is used when no subcommand is given: the first element
	// is the command, the rest are arguments placed after the source file.
	DefaultAction []string

	// Filter maps generated artifact file names to destination names. An
	// empty destination suppresses the copy.
	Filter map[string]string
}

// Destination looks up the filter entry for a generated file name.
// It returns the destination name and whether the file should be copied.
func (t ToolSection) Destination(generated string) (string, bool) {
	dest, ok := t.Filter[generated]
	if !ok {
		return generated, true
	}
	if dest == "" {
		return "", false
	}
	return dest, true
}

// FilterNames returns the filter keys in sorted order.
func (t ToolSection) FilterNames() []string {
	names := make([]string, 0, len(t.Filter))
	for k := range t.Filter {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func popToolSection(root map[string]any) (ToolSection, error) {
	raw, ok := root[ToolSectionKey]
	if !ok {
		return ToolSection{}, nil
	}
	delete(root, ToolSectionKey)

	table, ok := raw.(map[string]any)
	if !ok {
		return ToolSection{}, syntaxErrorf(0, "[%s] must be a table, got %T", ToolSectionKey, raw)
	}

	var ts ToolSection
	if rawAction, ok := table["default-action"]; ok {
		items, ok := rawAction.([]any)
		if !ok {
			return ToolSection{}, syntaxErrorf(0, "%s.default-action must be an array of strings", ToolSectionKey)
		}
		for i, it := range items {
			s, ok := it.(string)
			if !ok {
				return ToolSection{}, syntaxErrorf(0, "%s.default-action[%d] must be a string, got %T", ToolSectionKey, i, it)
			}
			ts.DefaultAction = append(ts.DefaultAction, s)
		}
	}

	if rawFilter, ok := table["filter"]; ok {
		entries, ok := rawFilter.(map[string]any)
		if !ok {
			return ToolSection{}, syntaxErrorf(0, "%s.filter must be a table", ToolSectionKey)
		}
		ts.Filter = make(map[string]string, len(entries))
		for k, v := range entries {
			s, ok := v.(string)
			if !ok {
				return ToolSection{}, syntaxErrorf(0, "%s.filter.%q must be a string, got %T", ToolSectionKey, k, v)
			}
			if !validDestination(s) {
				return ToolSection{}, syntaxErrorf(0, "%s.filter.%q must be a plain file name, got %q", ToolSectionKey, k, s)
			}
			ts.Filter[k] = s
		}
	}
	return ts, nil
}

// validDestination accepts empty strings (skip) and bare file names.
func validDestination(name string) bool {
	if name == "" {
		return true
	}
	return name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
