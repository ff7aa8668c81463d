// SPDX-License-Identifier: MIT

// Package stream implements the bounded-memory stream toolkit from
// §4.F: an append-then-sequential-read Stream[T], an external sort
// wrapping lanrat/extsort, an adaptive priority queue that spills
// sorted runs to disk once it outgrows its in-memory budget, and
// Scan3, the 3-row sliding window adapter the terraflow package scans
// elevation grids with.
package stream

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
)

// Codec tells a Stream how to turn one T into bytes and back, the same
// ToBytes/FromBytes split the teacher uses for its extsort.SortType
// values in cmd/qrank-builder/qrank.go.
type Codec[T any] struct {
	ToBytes   func(T) []byte
	FromBytes func([]byte) T
}

// Stream is a single-owner, length-prefixed record file: write-only
// until Rewind, sequential-read-only after (§4.F). Deleting a Stream
// (Close with Persistent unset) removes its backing file.
type Stream[T any] struct {
	f          *os.File
	path       string
	codec      Codec[T]
	persistent bool
	compressed bool
	bw         *brotli.Writer
	r          *bufio.Reader
	reading    bool
}

// New creates a fresh temp-file-backed Stream under dir (typically
// Config.TmpDir / STREAM_TMPDIR), named with a uuid the way Map names
// its spill and temp volume files.
func New[T any](dir string, codec Codec[T]) (*Stream[T], error) {
	path := filepath.Join(dir, uuid.NewString()+".rstream")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("stream: New: %w", err)
	}
	return &Stream[T]{f: f, path: path, codec: codec}, nil
}

// spillCompressionLevel matches the level the teacher picks for its own
// write-once-read-once scratch files.
const spillCompressionLevel = 6

// NewCompressed is New with a brotli layer over the backing file, for
// write-once-read-once spill data (the adaptive priority queue's
// sorted runs) where trading CPU for disk bandwidth pays off.
func NewCompressed[T any](dir string, codec Codec[T]) (*Stream[T], error) {
	s, err := New(dir, codec)
	if err != nil {
		return nil, err
	}
	s.compressed = true
	s.bw = brotli.NewWriterLevel(s.f, spillCompressionLevel)
	return s, nil
}

// Path returns the backing file's path, for diagnostics.
func (s *Stream[T]) Path() string { return s.path }

// Persistent marks the stream's backing file as surviving Close
// (§4.F); by default Close deletes it.
func (s *Stream[T]) Persistent() { s.persistent = true }

// Write appends one record. Write after Rewind is an error: a Stream
// is append-then-read, never interleaved.
func (s *Stream[T]) Write(v T) error {
	if s.reading {
		return fmt.Errorf("stream: Write: stream is in read mode")
	}
	b := s.codec.ToBytes(v)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	w := io.Writer(s.f)
	if s.compressed {
		w = s.bw
	}
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("stream: Write: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("stream: Write: %w", err)
	}
	return nil
}

// Rewind switches the stream from append mode to sequential read mode,
// seeking back to the start.
func (s *Stream[T]) Rewind() error {
	if s.bw != nil {
		if err := s.bw.Close(); err != nil {
			return fmt.Errorf("stream: Rewind: flush: %w", err)
		}
		s.bw = nil
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("stream: Rewind: %w", err)
	}
	if s.compressed {
		s.r = bufio.NewReaderSize(brotli.NewReader(s.f), 64*1024)
	} else {
		s.r = bufio.NewReaderSize(s.f, 64*1024)
	}
	s.reading = true
	return nil
}

// Next returns the next record, or ok==false at end of stream.
func (s *Stream[T]) Next() (T, bool, error) {
	var zero T
	if !s.reading {
		if err := s.Rewind(); err != nil {
			return zero, false, err
		}
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(s.r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("stream: Next: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return zero, false, fmt.Errorf("stream: Next: %w", err)
	}
	return s.codec.FromBytes(buf), true, nil
}

// Close releases the file handle and, unless Persistent was called,
// deletes the backing file.
func (s *Stream[T]) Close() error {
	err := s.f.Close()
	if !s.persistent {
		if rerr := os.Remove(s.path); rerr != nil && !os.IsNotExist(rerr) && err == nil {
			err = rerr
		}
	}
	return err
}
