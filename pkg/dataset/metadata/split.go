// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package metadata

import "hash/crc32"

// Split assignment buckets: a file name is hashed into [0, 100).
const (
	NumSplitBuckets = 100
	TrainBuckets    = 70
	ValBuckets      = 15
)

// SplitBucket returns the bucket in [0, NumSplitBuckets) of the given file name.
func SplitBucket(fileName string) int {
	return int(crc32.ChecksumIEEE([]byte(fileName)) % NumSplitBuckets)
}

// AssignSplit deterministically assigns a split to an image from its file name (not its content):
// buckets [0,70) are train, [70,85) validation and [85,100) test.
//
// The same file name always lands in the same split, across runs and dataset versions; renaming a
// file may move it to another split.
func AssignSplit(fileName string) Split {
	bucket := SplitBucket(fileName)
	switch {
	case bucket < TrainBuckets:
		return Train
	case bucket < TrainBuckets+ValBuckets:
		return Validation
	default:
		return Test
	}
}
