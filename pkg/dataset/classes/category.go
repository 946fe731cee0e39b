// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package classes

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Category is the coarse domain grouping of a plant health class.
type Category int8

const (
	Healthy Category = iota
	Disease
	Pest
	Deficiency
	Environmental
)

// AllCategories in rule order.
var AllCategories = []Category{Healthy, Disease, Pest, Deficiency, Environmental}

var categoryNames = [...]string{"healthy", "disease", "pest", "deficiency", "environmental"}

// String implements fmt.Stringer.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "Category(" + strconv.Itoa(int(c)) + ")"
	}
	return categoryNames[c]
}

// ParseCategory is the inverse of Category.String.
func ParseCategory(name string) (Category, error) {
	for ii, known := range categoryNames {
		if strings.EqualFold(name, known) {
			return Category(ii), nil
		}
	}
	return Environmental, errors.Errorf("unknown category %q", name)
}

// MarshalText implements encoding.TextMarshaler, so categories can be used as JSON object keys.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// categoryRules are evaluated in order, and the first rule with a keyword contained in the
// (lower-cased) class name wins. Anything else is Environmental.
var categoryRules = []struct {
	category Category
	keywords []string
}{
	{Healthy, []string{"healthy"}},
	{Disease, []string{"blight", "spot", "mildew", "rust", "wilt"}},
	{Pest, []string{"aphid", "mite", "bug", "beetle"}},
	{Deficiency, []string{"deficiency", "nutrient", "chlorosis"}},
}

// Categorize returns the category of a class name using keyword containment, case-insensitive.
// E.g. "Tomato_healthy_blight" is Healthy, since the "healthy" rule comes first.
func Categorize(className string) Category {
	lower := strings.ToLower(className)
	for _, rule := range categoryRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.category
			}
		}
	}
	return Environmental
}

// CategorizeAll groups the class names by category. Every category is present in the result, possibly
// with an empty list, and the order of classNames is preserved within each category.
func CategorizeAll(classNames []string) map[Category][]string {
	categories := make(map[Category][]string, len(AllCategories))
	for _, c := range AllCategories {
		categories[c] = []string{}
	}
	for _, name := range classNames {
		c := Categorize(name)
		categories[c] = append(categories[c], name)
	}
	return categories
}
