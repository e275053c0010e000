package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Semantic attribute names recognised in a VIA attribute schema.
const (
	AttrObjectPresent = "object_present"
	AttrObjectID      = "object_id"
	AttrObjectLabel   = "object_label"
)

// defaultLabelMap is used when an object_label attribute declares no option
// that can be mapped: option 0 is a shark, option 1 a human.
var defaultLabelMap = map[int]int{0: CategoryShark, 1: CategoryHuman}

// Resolution is the outcome of resolving one event's attributes.
type Resolution struct {
	// CategoryID is CategoryShark, CategoryHuman, or 0 when unresolved.
	CategoryID int
	// ObjectID is the per-video object id the annotator assigned, if any.
	ObjectID *int
	Warnings []string
}

// Resolved reports whether a category was found.
func (r Resolution) Resolved() bool { return r.CategoryID != 0 }

// ResolveAttributes finds the category and original object id of an event.
//
// object_label wins over object_present; this order is fixed. Keys are
// scanned in sorted order and when two keys share a semantic name the first
// is used and the second is reported.
func ResolveAttributes(values map[string]Value, schema map[string]AttributeSpec) Resolution {
	var res Resolution
	warnf := func(format string, args ...interface{}) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	found := map[string]string{}
	for _, k := range keys {
		spec, ok := schema[k]
		if !ok {
			warnf("attribute key %q is not declared in the schema", k)
			continue
		}
		switch spec.Name {
		case AttrObjectPresent, AttrObjectID, AttrObjectLabel:
			if prev, dup := found[spec.Name]; dup {
				warnf("attribute %q declared by keys %q and %q, using %q", spec.Name, prev, k, prev)
				continue
			}
			found[spec.Name] = k
		default:
			warnf("attribute key %q has unrecognised name %q", k, spec.Name)
		}
	}

	if k, ok := found[AttrObjectLabel]; ok {
		labels, labelWarnings := labelMap(schema[k].Options)
		res.Warnings = append(res.Warnings, labelWarnings...)
		raw := strings.TrimSpace(string(values[k]))
		opt, err := strconv.Atoi(raw)
		if err != nil {
			warnf("object_label value %q is not an option id", raw)
		} else if cat, ok := labels[opt]; ok {
			res.CategoryID = cat
		} else {
			warnf("object_label option %d has no category", opt)
		}
	} else if k, ok := found[AttrObjectPresent]; ok {
		raw := string(values[k])
		if cat := matchCategory(raw); cat != 0 {
			res.CategoryID = cat
		} else {
			warnf("cannot identify category from object_present value %q", raw)
		}
	} else {
		warnf("no attribute usable as a category label")
	}

	if k, ok := found[AttrObjectID]; ok {
		raw := strings.TrimSpace(string(values[k]))
		if id, err := strconv.Atoi(raw); err == nil {
			res.ObjectID = &id
		} else {
			warnf("object_id value %q is not an integer", raw)
		}
	}
	return res
}

// labelMap maps the schema's option ids onto canonical category ids.
func labelMap(options map[string]Value) (map[int]int, []string) {
	m := make(map[int]int, len(options))
	var warnings []string
	for optKey, label := range options {
		id, err := strconv.Atoi(strings.TrimSpace(optKey))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("object_label option key %q is not an integer", optKey))
			continue
		}
		cat := matchCategory(string(label))
		if cat == 0 {
			warnings = append(warnings, fmt.Sprintf("object_label option %q=%q matches no category", optKey, label))
			continue
		}
		m[id] = cat
	}
	sort.Strings(warnings)
	if len(m) == 0 {
		return defaultLabelMap, warnings
	}
	return m, warnings
}

// matchCategory matches a label by substring or by the legacy literal
// option ids "0" and "1".
func matchCategory(label string) int {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case strings.Contains(l, "shark") || l == "0":
		return CategoryShark
	case strings.Contains(l, "human") || l == "1":
		return CategoryHuman
	}
	return 0
}
