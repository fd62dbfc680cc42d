// Object pools for the welding hot path
//
// Provides reusable objects for per-line allocations:
// - Byte buffers (for serializing arc commands)
// - String slices (for splitting a line into tokens)
//
// Usage:
//
//	buf := pool.GetByteBuffer()
//	defer pool.PutByteBuffer(buf)
//	buf.WriteString("G2")
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"strconv"
	"sync"
)

// ByteBuffer is an append-only byte slice with a few formatting helpers.
type ByteBuffer struct {
	buf []byte
}

var byteBufferPool = sync.Pool{
	New: func() any {
		return &ByteBuffer{buf: make([]byte, 0, 96)} // one arc line
	},
}

// GetByteBuffer gets an empty byte buffer from the pool
func GetByteBuffer() *ByteBuffer {
	b := byteBufferPool.Get().(*ByteBuffer)
	b.buf = b.buf[:0]
	return b
}

// PutByteBuffer returns a byte buffer to the pool
func PutByteBuffer(b *ByteBuffer) {
	if b == nil || cap(b.buf) > 4096 {
		return
	}
	byteBufferPool.Put(b)
}

// Bytes returns the buffer's byte slice
func (b *ByteBuffer) Bytes() []byte { return b.buf }

// String returns a copy of the buffer contents
func (b *ByteBuffer) String() string { return string(b.buf) }

// Len returns the buffer length
func (b *ByteBuffer) Len() int { return len(b.buf) }

// Reset clears the buffer
func (b *ByteBuffer) Reset() { b.buf = b.buf[:0] }

// Write appends bytes to the buffer
func (b *ByteBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte appends a single byte
func (b *ByteBuffer) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// WriteString appends a string
func (b *ByteBuffer) WriteString(s string) (int, error) {
	b.buf = append(b.buf, s...)
	return len(s), nil
}

// AppendTrimmedFloat appends v with at most prec decimals, dropping trailing
// zeros and a bare decimal point ("1.500" -> "1.5", "2.000" -> "2").
// Negative zero after rounding is written as "0".
func (b *ByteBuffer) AppendTrimmedFloat(v float64, prec int) {
	start := len(b.buf)
	b.buf = strconv.AppendFloat(b.buf, v, 'f', prec, 64)
	if prec > 0 {
		end := len(b.buf)
		for end > start && b.buf[end-1] == '0' {
			end--
		}
		if end > start && b.buf[end-1] == '.' {
			end--
		}
		b.buf = b.buf[:end]
	}
	if string(b.buf[start:]) == "-0" {
		b.buf = append(b.buf[:start], '0')
	}
}

var stringSlicePool = sync.Pool{
	New: func() any {
		s := make([]string, 0, 16)
		return &s
	},
}

// GetStringSlice gets an empty string slice from the pool
func GetStringSlice() *[]string {
	s := stringSlicePool.Get().(*[]string)
	*s = (*s)[:0]
	return s
}

// PutStringSlice returns a string slice to the pool
func PutStringSlice(s *[]string) {
	if s == nil || cap(*s) > 256 {
		return
	}
	clear(*s)
	*s = (*s)[:0]
	stringSlicePool.Put(s)
}
