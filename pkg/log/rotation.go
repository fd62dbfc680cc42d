// Log file rotation for long-running watch mode
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	// Filename is the path to the log file.
	Filename string

	// MaxSize is the maximum size in bytes before rotation. Default 10 MiB.
	MaxSize int64

	// MaxBackups is the number of rotated files kept as name.1 .. name.N.
	// Default 3.
	MaxBackups int
}

// RotatingFileWriter is an io.Writer that shifts the file to numbered
// backups once it grows past MaxSize.
type RotatingFileWriter struct {
	mu         sync.Mutex
	filename   string
	maxSize    int64
	maxBackups int
	size       int64
	file       *os.File
}

// NewRotatingFileWriter opens (or creates) the log file for appending.
func NewRotatingFileWriter(config RotationConfig) (*RotatingFileWriter, error) {
	if config.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	w := &RotatingFileWriter{
		filename:   config.Filename,
		maxSize:    config.MaxSize,
		maxBackups: config.MaxBackups,
	}
	if w.maxSize <= 0 {
		w.maxSize = 10 << 20
	}
	if w.maxBackups <= 0 {
		w.maxBackups = 3
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingFileWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.filename), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(w.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log file: %w", err)
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingFileWriter) backupName(i int) string {
	return fmt.Sprintf("%s.%d", w.filename, i)
}

// rotate shifts name.N-1 -> name.N, ..., name -> name.1 and reopens name.
func (w *RotatingFileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	os.Remove(w.backupName(w.maxBackups))
	for i := w.maxBackups - 1; i >= 1; i-- {
		if _, err := os.Stat(w.backupName(i)); err == nil {
			if err := os.Rename(w.backupName(i), w.backupName(i+1)); err != nil {
				return err
			}
		}
	}
	if err := os.Rename(w.filename, w.backupName(1)); err != nil {
		w.open()
		return err
	}
	return w.open()
}

// Close closes the underlying file.
func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// NewFileLogger creates a logger that writes to a rotating file and, if
// console is non-nil, mirrors every line there too.
func NewFileLogger(prefix string, config RotationConfig, console io.Writer) (*Logger, *RotatingFileWriter, error) {
	fw, err := NewRotatingFileWriter(config)
	if err != nil {
		return nil, nil, err
	}
	logger := New(prefix)
	logger.SetColorize(false)
	if console != nil {
		logger.SetWriter(io.MultiWriter(console, fw))
	} else {
		logger.SetWriter(fw)
	}
	return logger, fw, nil
}
