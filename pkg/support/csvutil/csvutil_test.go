// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package csvutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderOnly(t *testing.T) {
	header, ok, err := HeaderOnly([]byte("image_path,class_name,split\n"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"image_path", "class_name", "split"}, header)

	// Quoted names and blank trailing lines.
	header, ok, err = HeaderOnly([]byte("\"a,b\",c\n\n"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a,b", "c"}, header)

	_, ok, err = HeaderOnly([]byte("a,b\n1,0\n"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = HeaderOnly(nil)
	require.NoError(t, err)
	assert.False(t, ok)
}
