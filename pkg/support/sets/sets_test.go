// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := Make[string](10)
	assert.Len(t, s, 0)

	s.Insert("Tomato_healthy", "Apple_scab")
	assert.Len(t, s, 2)
	assert.True(t, s.Has("Apple_scab"))
	assert.False(t, s.Has("Corn_rust"))

	// Duplicates are collapsed.
	s.Insert("Apple_scab")
	assert.Len(t, s, 2)

	s2 := MakeWith("Apple_scab", "Corn_rust")
	s3 := s.Sub(s2)
	assert.Len(t, s3, 1)
	assert.True(t, s3.Has("Tomato_healthy"))
}

func TestSorted(t *testing.T) {
	s := MakeWith("b", "c", "a", "b")
	assert.Equal(t, []string{"a", "b", "c"}, Sorted(s))
	assert.Empty(t, Sorted(Make[int]()))
}
