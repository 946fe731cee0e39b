// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs tasks in goroutines, with a limit on how many run at the same time.
// It is used for I/O bound work over many files, like decoding every image of a dataset.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers. Create it with New, and reuse it: it keeps track of the tasks started, so Wait
// returns when all of them are finished.
type Pool struct {
	// maxParallelism is the limit of tasks running at the same time.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Signaled whenever numRunning is decreased.
	numRunning     int
	wg             sync.WaitGroup
}

// New returns a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	w := &Pool{maxParallelism: runtime.NumCPU()}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// MaxParallelism is the limit of tasks running concurrently.
// If 0 tasks are run inline. If -1 parallelism is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// WithMaxParallelism sets the maxParallelism, see MaxParallelism. Values <= 0 other than -1 disable parallelism.
//
// It should only be changed before tasks start running. It returns the Pool, so calls can be cascaded.
func (w *Pool) WithMaxParallelism(maxParallelism int) *Pool {
	if maxParallelism < -1 {
		maxParallelism = 0
	}
	w.maxParallelism = maxParallelism
	return w
}

// Go waits until there is a worker available and runs task in a goroutine.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task inline and returns when it is finished.
func (w *Pool) Go(task func()) {
	w.wg.Add(1)
	switch {
	case w.maxParallelism < 0:
		go func() {
			defer w.wg.Done()
			task()
		}()
		return
	case w.maxParallelism == 0:
		defer w.wg.Done()
		task()
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.numRunning >= w.maxParallelism {
		w.cond.Wait()
	}
	w.numRunning++
	go func() {
		defer w.wg.Done()
		task()
		w.mu.Lock()
		w.numRunning--
		w.cond.Signal()
		w.mu.Unlock()
	}()
}

// Wait until all tasks started with Go have finished.
func (w *Pool) Wait() {
	w.wg.Wait()
}

// ForEach calls fn(ii) for every ii in [0, n), in parallel, and returns when all calls are done.
func (w *Pool) ForEach(n int, fn func(ii int)) {
	for ii := range n {
		w.Go(func() { fn(ii) })
	}
	w.Wait()
}
