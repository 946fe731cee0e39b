// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"os/user"
	"path"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExistsAndIsDir(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "leaf.jpg")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o644))

	exists, err := FileExists(filePath)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = FileExists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, exists)

	isDir, err := IsDir(dir)
	require.NoError(t, err)
	assert.True(t, isDir)
	isDir, err = IsDir(filePath)
	require.NoError(t, err)
	assert.False(t, isDir)
	isDir, err = IsDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, isDir)
}

func TestIsHidden(t *testing.T) {
	assert.True(t, IsHidden(".DS_Store"))
	assert.True(t, IsHidden(".ipynb_checkpoints"))
	assert.False(t, IsHidden("Tomato_healthy"))
}

func TestReplaceTildeInDir(t *testing.T) {
	dir, err := ReplaceTildeInDir("/data/plantvillage")
	require.NoError(t, err)
	assert.Equal(t, "/data/plantvillage", dir)

	usr, err := user.Current()
	if err != nil {
		t.Skipf("no current user: %v", err)
	}
	dir, err = ReplaceTildeInDir("~/data")
	require.NoError(t, err)
	assert.Equal(t, path.Join(usr.HomeDir, "data"), dir)
}
