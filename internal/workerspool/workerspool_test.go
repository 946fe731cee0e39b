// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPool_Limit(t *testing.T) {
	const maxParallelism = 3
	pool := New().WithMaxParallelism(maxParallelism)
	var running, maxRunning, count atomic.Int32
	pool.ForEach(20, func(int) {
		current := running.Add(1)
		for {
			seen := maxRunning.Load()
			if current <= seen || maxRunning.CompareAndSwap(seen, current) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		count.Add(1)
	})
	assert.Equal(t, int32(20), count.Load())
	assert.LessOrEqual(t, maxRunning.Load(), int32(maxParallelism))
	assert.Equal(t, int32(0), running.Load())
}

func TestPool_Inline(t *testing.T) {
	pool := New().WithMaxParallelism(0)
	var order []int
	pool.ForEach(5, func(ii int) { order = append(order, ii) })
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPool_Unlimited(t *testing.T) {
	pool := New().WithMaxParallelism(-1)
	assert.Equal(t, -1, pool.MaxParallelism())
	seen := make([]atomic.Bool, 50)
	pool.ForEach(len(seen), func(ii int) { seen[ii].Store(true) })
	for ii := range seen {
		assert.True(t, seen[ii].Load(), "task %d not run", ii)
	}
}
