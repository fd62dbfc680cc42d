// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package welder

import "time"

// Progress is a snapshot passed to Options.Progress.
type Progress struct {
	Lines            int64
	Bytes            int64
	TotalBytes       int64   // 0 when the input size is unknown
	Percent          float64 // 0 until the end when TotalBytes is unknown
	ArcsCommitted    int64
	CompressionRatio float64
	Elapsed          time.Duration
}
