// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package welder

import (
	"bufio"
	"io"
	"strings"
)

// LineReader splits a stream into lines and reports each line's ending, so
// untouched lines can be written back byte for byte.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader wraps r
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next line and its ending ("\n", "\r\n", or "" for an
// unterminated last line). It returns io.EOF after the last line.
func (lr *LineReader) Next() (text, eol string, err error) {
	s, err := lr.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", "", err
	}
	if s == "" {
		return "", "", io.EOF
	}
	switch {
	case strings.HasSuffix(s, "\r\n"):
		eol = "\r\n"
	case strings.HasSuffix(s, "\n"):
		eol = "\n"
	}
	return s[:len(s)-len(eol)], eol, nil
}
