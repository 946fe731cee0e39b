// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package classes

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// InfoFileName is the name of the class info cache, stored at the dataset root.
const InfoFileName = "class_info.json"

// info is the JSON layout of InfoFileName, also read by training drivers to size the model output.
type info struct {
	Classes           []string              `json:"classes"`
	ClassToIdx        map[string]int        `json:"class_to_idx"`
	NumClasses        int                   `json:"num_classes"`
	DiseaseCategories map[Category][]string `json:"disease_categories,omitempty"`
}

// SaveInfo writes the registry as JSON to filePath.
func (r *Registry) SaveInfo(filePath string) error {
	contents, err := json.MarshalIndent(info{
		Classes:           r.Classes,
		ClassToIdx:        r.ClassToIdx,
		NumClasses:        r.NumClasses,
		DiseaseCategories: r.Categories,
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to serialize class info")
	}
	if err = os.WriteFile(filePath, contents, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write class info to %q", filePath)
	}
	klog.V(1).Infof("saved %d classes to %q", r.NumClasses, filePath)
	return nil
}

// LoadInfo reads a registry saved with SaveInfo. The registry is checked for internal consistency, but
// not against any records: see Registry.Validate.
func LoadInfo(filePath string) (*Registry, error) {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read class info from %q", filePath)
	}
	var in info
	if err = json.Unmarshal(contents, &in); err != nil {
		return nil, errors.Wrapf(err, "failed to parse class info in %q", filePath)
	}
	r := &Registry{
		Classes:    in.Classes,
		ClassToIdx: in.ClassToIdx,
		NumClasses: in.NumClasses,
		Categories: in.DiseaseCategories,
	}
	if r.ClassToIdx == nil {
		r.ClassToIdx = make(map[string]int)
	}
	if err = r.Validate(nil); err != nil {
		return nil, errors.WithMessagef(err, "invalid class info in %q", filePath)
	}
	return r, nil
}
