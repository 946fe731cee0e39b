// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

// Package classes derives the class vocabulary of a dataset: the sorted list of class names and the
// mapping of each name to its label index.
//
// The vocabulary is always derived from the records of all splits, so a class has the same index
// in train, validation and test, regardless of which classes happen to be present in each split.
package classes

import (
	"github.com/leaflens/leaflens/pkg/dataset/metadata"
	"github.com/leaflens/leaflens/pkg/support/sets"
	"github.com/pkg/errors"
)

// Registry holds the class vocabulary. It is read-only after creation.
type Registry struct {
	// Classes sorted lexicographically. The position is the label index.
	Classes []string

	// ClassToIdx maps the class name to its index in Classes.
	ClassToIdx map[string]int

	NumClasses int

	// Categories is optional, set by DeriveWithCategories.
	Categories map[Category][]string
}

// FromClasses creates a Registry from the given class names, which are deduplicated and sorted.
func FromClasses(classNames []string) *Registry {
	vocab := sets.Sorted(sets.MakeWith(classNames...))
	r := &Registry{
		Classes:    vocab,
		ClassToIdx: make(map[string]int, len(vocab)),
		NumClasses: len(vocab),
	}
	for idx, name := range vocab {
		r.ClassToIdx[name] = idx
	}
	return r
}

// Derive the registry from all the records, of every split.
//
// Zero records yield a registry with NumClasses == 0, on which OneHot always fails.
func Derive(records []metadata.Record) *Registry {
	names := make([]string, 0, len(records))
	for _, record := range records {
		names = append(names, record.ClassName)
	}
	return FromClasses(names)
}

// DeriveWithCategories is like Derive, and also fills Registry.Categories.
func DeriveWithCategories(records []metadata.Record) *Registry {
	r := Derive(records)
	r.Categories = CategorizeAll(r.Classes)
	return r
}

// Index returns the label index of the class, and whether it is known.
func (r *Registry) Index(className string) (int, bool) {
	idx, found := r.ClassToIdx[className]
	return idx, found
}

// Name returns the class name for the label index. It returns "" if idx is out of range.
func (r *Registry) Name(idx int) string {
	if idx < 0 || idx >= len(r.Classes) {
		return ""
	}
	return r.Classes[idx]
}

// OneHot returns the label vector of the class: NumClasses values, all 0 except for the class index,
// set to 1.
func (r *Registry) OneHot(className string) ([]float32, error) {
	if r.NumClasses == 0 {
		return nil, errors.Errorf("cannot encode label %q: class registry is empty", className)
	}
	idx, found := r.ClassToIdx[className]
	if !found {
		return nil, errors.Errorf("unknown class %q, not one of the %d registered classes", className, r.NumClasses)
	}
	label := make([]float32, r.NumClasses)
	label[idx] = 1
	return label, nil
}

// Validate checks that ClassToIdx is a bijection onto [0, NumClasses) consistent with Classes, and that
// every record's class is registered.
func (r *Registry) Validate(records []metadata.Record) error {
	if r.NumClasses != len(r.Classes) {
		return errors.Errorf("class registry has num_classes=%d, but %d classes listed", r.NumClasses, len(r.Classes))
	}
	if len(r.ClassToIdx) != r.NumClasses {
		return errors.Errorf("class registry has %d entries in class_to_idx, but num_classes=%d",
			len(r.ClassToIdx), r.NumClasses)
	}
	for idx, name := range r.Classes {
		if got, found := r.ClassToIdx[name]; !found || got != idx {
			return errors.Errorf("class registry maps %q to %d, but it is listed at position %d", name, got, idx)
		}
	}
	used := sets.Make[string]()
	for _, record := range records {
		used.Insert(record.ClassName)
	}
	if unknown := used.Sub(sets.MakeWith(r.Classes...)); len(unknown) > 0 {
		return errors.Errorf("classes %q are used by the dataset but are not in the class registry", sets.Sorted(unknown))
	}
	return nil
}
