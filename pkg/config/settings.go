// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/leaflens/leaflens/pkg/support/fsutil"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ParseSettings updates the configuration from settings, typically the contents of a "--set" flag.
// The settings are a list separated by ";": e.g.: "batch_size=8;seed=3;dataset_type=ip102".
//
// Keys are the YAML keys of Config, and values are parsed as YAML scalars of the key's type.
// For integer keys "_" can be used as a separator, like in Go: 1_000 = 1000.
//
// An entry "file:<path>" reads settings from the file: new-lines work as ";" and lines starting
// with "#" are comments.
//
// It returns the keys set, in order, and an error if a key is unknown or a value fails to parse.
func (c *Config) ParseSettings(settings string) (keysSet []string, err error) {
	for _, setting := range strings.Split(settings, ";") {
		keysSet, err = c.parseSetting(setting, keysSet)
		if err != nil {
			return
		}
	}
	return
}

func (c *Config) parseSetting(setting string, keysSet []string) ([]string, error) {
	setting = strings.TrimSpace(setting)
	if setting == "" {
		return keysSet, nil
	}
	if filePath, found := strings.CutPrefix(setting, "file:"); found {
		filePath, err := fsutil.ReplaceTildeInDir(filePath)
		if err != nil {
			return keysSet, err
		}
		contents, err := os.ReadFile(filePath)
		if err != nil {
			return keysSet, errors.Wrapf(err, "failed to read settings from file %q", filePath)
		}
		for _, line := range strings.Split(string(contents), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			for _, s := range strings.Split(line, ";") {
				keysSet, err = c.parseSetting(s, keysSet)
				if err != nil {
					return keysSet, err
				}
			}
		}
		return keysSet, nil
	}

	key, value, found := strings.Cut(setting, "=")
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if !found || key == "" || value == "" {
		return keysSet, errors.Errorf("can't parse setting %q: each setting requires the format \"<key>=<value>\"", setting)
	}
	if isIntegerKey(key) {
		value = strings.ReplaceAll(value, "_", "")
	}
	node := yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: key},
		{Kind: yaml.ScalarNode, Value: value},
	}}
	doc, err := yaml.Marshal(&node)
	if err != nil {
		return keysSet, errors.Wrapf(err, "failed to encode setting %q", setting)
	}
	dec := yaml.NewDecoder(bytes.NewReader(doc))
	dec.KnownFields(true)
	if err = dec.Decode(c); err != nil {
		return keysSet, errors.Wrapf(err, "failed to parse value %q for key %q", value, key)
	}
	return append(keysSet, key), nil
}

func isIntegerKey(key string) bool {
	switch key {
	case "image_size", "batch_size", "num_workers", "seed", "epochs", "save_interval":
		return true
	}
	return false
}

// Settings returns the configuration as (key, value) pairs, in declaration order.
func (c *Config) Settings() [][2]string {
	var node yaml.Node
	if err := node.Encode(c); err != nil {
		// Config only holds scalars.
		panic(errors.Wrap(err, "failed to encode configuration"))
	}
	pairs := make([][2]string, 0, len(node.Content)/2)
	for ii := 0; ii+1 < len(node.Content); ii += 2 {
		pairs = append(pairs, [2]string{node.Content[ii].Value, node.Content[ii+1].Value})
	}
	return pairs
}

// SettingsUsage describes the "--set" flag, listing the keys and their default values.
func SettingsUsage() string {
	parts := []string{
		`Configuration overrides: a list of "key=value" separated by ";". ` +
			`An entry "file:<path>" reads settings from a file, one or more per line, "#" starts a comment. ` +
			`Keys and defaults:`,
	}
	for _, kv := range Default().Settings() {
		parts = append(parts, fmt.Sprintf("  %s: %q", kv[0], kv[1]))
	}
	return strings.Join(parts, "\n")
}
