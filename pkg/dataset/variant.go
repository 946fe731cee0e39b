// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"strings"

	"github.com/leaflens/leaflens/pkg/dataset/classes"
	"github.com/leaflens/leaflens/pkg/dataset/metadata"
	"k8s.io/klog/v2"
)

// Variant defines how a dataset layout is read: how its metadata is resolved and how its class
// registry is derived. The Dataset is the same for all variants.
type Variant interface {
	// Name of the variant, as used in configuration files.
	Name() string

	// ResolveMetadata returns the records of all splits of the dataset at root.
	ResolveMetadata(root string) ([]metadata.Record, error)

	// DeriveClasses returns the class registry for the records of all splits.
	DeriveClasses(records []metadata.Record) *classes.Registry
}

// Generic datasets use metadata.csv or a directory-per-class layout, and plain class registries.
type Generic struct{}

// Name implements Variant.
func (Generic) Name() string { return "generic" }

// ResolveMetadata implements Variant, using metadata.Resolve.
func (Generic) ResolveMetadata(root string) ([]metadata.Record, error) {
	return metadata.Resolve(root)
}

// DeriveClasses implements Variant, using classes.Derive.
func (Generic) DeriveClasses(records []metadata.Record) *classes.Registry {
	return classes.Derive(records)
}

// PlantVillage is laid out like Generic, but its class registry also groups classes into domain
// categories (healthy, disease, pest, deficiency, environmental).
type PlantVillage struct{ Generic }

// Name implements Variant.
func (PlantVillage) Name() string { return "plantvillage" }

// DeriveClasses implements Variant, using classes.DeriveWithCategories.
func (PlantVillage) DeriveClasses(records []metadata.Record) *classes.Registry {
	return classes.DeriveWithCategories(records)
}

// IP102 insect pest datasets ship an annotations.json with bounding boxes. If it is missing the generic
// resolution is used.
type IP102 struct{ Generic }

// Name implements Variant.
func (IP102) Name() string { return "ip102" }

// ResolveMetadata implements Variant, using metadata.ResolveAnnotations.
func (IP102) ResolveMetadata(root string) ([]metadata.Record, error) {
	return metadata.ResolveAnnotations(root)
}

// DefaultVariant is used when no dataset type is configured.
var DefaultVariant Variant = PlantVillage{}

// Variants lists the known variants.
var Variants = []Variant{Generic{}, PlantVillage{}, IP102{}}

// VariantByName returns the variant for a dataset type name (case-insensitive). An empty name returns
// DefaultVariant, and unknown names fall back to Generic.
func VariantByName(name string) Variant {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultVariant
	}
	for _, v := range Variants {
		if v.Name() == name {
			return v
		}
	}
	klog.Warningf("unknown dataset type %q, using %q", name, Generic{}.Name())
	return Generic{}
}
