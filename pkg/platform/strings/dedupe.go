// Package strings normalises string lists such as scopes and env values.
package strings

import (
	"slices"
	"strings"
)

// DedupeAndTrim trims each element and drops empties and repeats, keeping
// first-seen order. A nil or empty input is returned unchanged.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SortedSet is the sorted union of the inputs after DedupeAndTrim, nil when
// nothing survives.
func SortedSet(lists ...[]string) []string {
	var all []string
	for _, l := range lists {
		all = append(all, l...)
	}
	out := DedupeAndTrim(all)
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return out
}

// SplitList splits a comma separated value into its trimmed, distinct parts.
func SplitList(raw string) []string {
	out := DedupeAndTrim(strings.Split(raw, ","))
	if len(out) == 0 {
		return nil
	}
	return out
}
