// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

// Package loader batches the samples of a dataset, calling Get in parallel goroutines.
//
// It is the bridge between a dataset.Dataset, which serves one sample at a time, and a training or
// evaluation loop, which consumes batches:
//
//	l := loader.New(ds.ForEpoch(epoch), 32).Shuffle(seed).Start()
//	defer l.Done()
//	for {
//		batch, err := l.Yield()
//		if err == io.EOF {
//			break
//		}
//		...
//	}
package loader

import (
	"io"
	"math/rand/v2"
	"runtime"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/leaflens/leaflens/pkg/core/tensors"
	"github.com/leaflens/leaflens/pkg/dataset"
	"github.com/leaflens/leaflens/pkg/dataset/metadata"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Source of samples. It must be safe for concurrent calls to Get, as *dataset.Dataset is.
type Source interface {
	Len() int
	Get(index int) (dataset.Sample, error)
}

// Batch of samples.
type Batch struct {
	// Images shaped `[batch_size, channels, height, width]`.
	Images *tensors.Tensor

	// Labels shaped `[batch_size, num_classes]`.
	Labels *tensors.Tensor

	// Indices of the samples in the source, in the same order as Images and Labels.
	Indices []int

	Records []metadata.Record
}

// Size of the batch.
func (b Batch) Size() int { return len(b.Indices) }

// ErrStopped is returned by Yield after Done was called.
var ErrStopped = errors.New("loader stopped")

// Loader yields batches of a Source, built by parallel goroutines. See New.
//
// The order of the batches is not preserved: each goroutine builds whole batches, and they are yielded as they
// are ready. Each sample is yielded exactly once per epoch.
type Loader struct {
	source    Source
	batchSize int

	shuffle        bool
	seed           uint64
	parallelism    int
	bufferSize     int
	dropIncomplete bool

	epoch int
	state *epochState
}

// epochState holds the goroutines of one epoch. Loader.Reset starts a new one.
type epochState struct {
	jobs     chan []int
	buffer   chan Batch
	stop     chan struct{} // Closed on error, Reset or Done.
	stopOnce sync.Once
	finished chan struct{} // Closed when all workers exited.

	muErr sync.Mutex
	err   error
}

// New creates a Loader of batches of batchSize samples. It can be further configured, and then it must be
// started with Start.
//
// To avoid leaking goroutines, call Loader.Done when finished.
func New(source Source, batchSize int) *Loader {
	if batchSize <= 0 {
		exceptions.Panicf("loader.New(): batchSize must be > 0, got %d", batchSize)
	}
	l := &Loader{source: source, batchSize: batchSize}
	l.Parallelism(0)
	return l.Buffer(l.parallelism)
}

func (l *Loader) checkNotStarted(method string) {
	if l.state != nil {
		exceptions.Panicf("loader.Loader.%s called after Start", method)
	}
}

// Shuffle the order of the samples, with a permutation drawn from seed and the epoch number.
//
// This must be called before Start. It returns the updated Loader, so calls can be cascaded.
func (l *Loader) Shuffle(seed uint64) *Loader {
	l.checkNotStarted("Shuffle")
	l.shuffle = true
	l.seed = seed
	return l
}

// Parallelism is the number of goroutines to start, each building batches. If set to 0 (the default),
// it will use the number of cores in the system plus 1.
//
// This must be called before Start. It returns the updated Loader, so calls can be cascaded.
func (l *Loader) Parallelism(n int) *Loader {
	l.checkNotStarted("Parallelism")
	if n <= 0 {
		n = runtime.NumCPU() + 1
	}
	l.parallelism = n
	return l
}

// Buffer is the number of batches ready to be yielded that are kept in memory. It defaults to the parallelism.
//
// This must be called before Start. It returns the updated Loader, so calls can be cascaded.
func (l *Loader) Buffer(n int) *Loader {
	l.checkNotStarted("Buffer")
	l.bufferSize = max(n, 0)
	return l
}

// DropIncomplete configures whether the last batch of an epoch is dropped if it has fewer than batchSize samples.
//
// This must be called before Start. It returns the updated Loader, so calls can be cascaded.
func (l *Loader) DropIncomplete(drop bool) *Loader {
	l.checkNotStarted("DropIncomplete")
	l.dropIncomplete = drop
	return l
}

// Epoch returns the current epoch number, starting at 0 and incremented by Reset.
func (l *Loader) Epoch() int { return l.epoch }

// NumBatches returns the number of batches per epoch.
func (l *Loader) NumBatches() int {
	n := l.source.Len()
	if l.dropIncomplete {
		return n / l.batchSize
	}
	return (n + l.batchSize - 1) / l.batchSize
}

// order returns the indices in the order they are batched in the current epoch.
func (l *Loader) order() []int {
	n := l.source.Len()
	if l.shuffle {
		return rand.New(rand.NewPCG(l.seed, uint64(l.epoch))).Perm(n)
	}
	order := make([]int, n)
	for ii := range order {
		order[ii] = ii
	}
	return order
}

// Start the goroutines. After Start the configuration can no longer be changed.
//
// It returns the updated Loader, so calls can be cascaded.
func (l *Loader) Start() *Loader {
	l.checkNotStarted("Start")
	order := l.order()
	numBatches := l.NumBatches()
	st := &epochState{
		jobs:     make(chan []int, numBatches),
		buffer:   make(chan Batch, l.bufferSize),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	for ii := range numBatches {
		start := ii * l.batchSize
		st.jobs <- order[start:min(start+l.batchSize, len(order))]
	}
	close(st.jobs)
	l.state = st

	var wg sync.WaitGroup
	for range l.parallelism {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.worker(st)
		}()
	}
	go func() {
		wg.Wait()
		close(st.finished)
	}()
	klog.V(1).Infof("loader started epoch %d: %d samples in %d batches, %d goroutines",
		l.epoch, l.source.Len(), numBatches, l.parallelism)
	return l
}

func (l *Loader) worker(st *epochState) {
	for {
		var indices []int
		var ok bool
		select {
		case <-st.stop:
			return
		case indices, ok = <-st.jobs:
			if !ok {
				return
			}
		}
		batch, err := l.makeBatch(indices)
		if err != nil {
			klog.Errorf("loader failed: %+v", err)
			st.fail(err)
			return
		}
		select {
		case <-st.stop:
			return
		case st.buffer <- batch:
		}
	}
}

func (l *Loader) makeBatch(indices []int) (Batch, error) {
	images := make([]*tensors.Tensor, len(indices))
	labels := make([][]float32, len(indices))
	records := make([]metadata.Record, len(indices))
	for ii, index := range indices {
		sample, err := l.source.Get(index)
		if err != nil {
			return Batch{}, errors.WithMessagef(err, "loading sample %d", index)
		}
		images[ii] = sample.Image
		labels[ii] = sample.Label
		records[ii] = sample.Record
	}
	return Batch{
		Images:  tensors.Stack(images),
		Labels:  tensors.FromRows(labels),
		Indices: indices,
		Records: records,
	}, nil
}

// fail records the first error and stops the epoch.
func (st *epochState) fail(err error) {
	st.muErr.Lock()
	if st.err == nil {
		st.err = err
	}
	st.muErr.Unlock()
	st.halt()
}

func (st *epochState) halt() {
	st.stopOnce.Do(func() { close(st.stop) })
}

func (st *epochState) error() error {
	st.muErr.Lock()
	defer st.muErr.Unlock()
	return st.err
}

// Yield returns the next batch. At the end of the epoch it returns io.EOF, until Reset is called.
//
// If building a batch fails, the epoch is stopped and the error is returned.
func (l *Loader) Yield() (Batch, error) {
	st := l.state
	if st == nil {
		return Batch{}, errors.New("loader.Yield called before Start or after Done")
	}
	if err := st.error(); err != nil {
		return Batch{}, err
	}
	select {
	case batch := <-st.buffer:
		return batch, nil
	case <-st.stop:
		if err := st.error(); err != nil {
			return Batch{}, err
		}
		return Batch{}, ErrStopped
	case <-st.finished:
		// Generation exhausted, but the buffer may still hold batches.
		select {
		case batch := <-st.buffer:
			return batch, nil
		default:
		}
		if err := st.error(); err != nil {
			return Batch{}, err
		}
		return Batch{}, io.EOF
	}
}

// drain stops the goroutines of the epoch and discards the buffered batches.
func (st *epochState) drain() {
	st.halt()
	for {
		select {
		case <-st.finished:
			return
		case <-st.buffer:
		}
	}
}

// Reset stops the current epoch, if not finished, and starts the next one, reshuffling if configured.
func (l *Loader) Reset() {
	if l.state == nil {
		klog.Warningf("loader.Reset called before Start or after Done")
		return
	}
	l.state.drain()
	l.state = nil
	l.epoch++
	l.Start()
}

// Done stops the goroutines and waits for them to finish. The Loader can't be used afterwards.
func (l *Loader) Done() {
	if l.state == nil {
		return
	}
	l.state.drain()
	l.state = nil
}
