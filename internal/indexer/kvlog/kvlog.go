// Package kvlog is a durable key/value store built on an append-only record
// log. Every mutation is appended (and optionally fsynced) before it becomes
// visible; the whole log is replayed into memory on open. Compact rewrites the
// log with only live keys using a temp file and an atomic rename.
//
// File layout:
//
//	header  magic(4) version(4) createdAt(8)
//	record  crc32(4) op(1) keyLen(4) valLen(4) key val
//
// The crc covers everything after it in the record. A torn or corrupt tail
// left by a crash is truncated away on open.
package kvlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	MagicBytes    uint32 = 0x57534b56
	FormatVersion uint32 = 1
	HeaderSize           = 16
	recordHead           = 13
	maxRecordSize        = 64 << 20
)

const (
	opPut byte = 1
	opDel byte = 2
)

var (
	ErrClosed   = errors.New("kvlog: store closed")
	ErrReadOnly = errors.New("kvlog: store opened read-only")
)

// Options tunes durability.
type Options struct {
	// SyncWrites fsyncs the log after every mutation.
	SyncWrites bool
	// ReadOnly replays an existing log without ever writing to it; a torn
	// tail is skipped rather than truncated.
	ReadOnly bool
}

type Store struct {
	mu     sync.RWMutex
	path   string
	file   *os.File
	opts   Options
	data   map[string][]byte
	size   int64
	logger *slog.Logger
}

// Open opens or creates the log at path and replays it.
func Open(path string, opts Options) (*Store, error) {
	flags := os.O_RDONLY
	if !opts.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating kvlog directory: %w", err)
		}
		flags = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening kvlog %s: %w", path, err)
	}
	s := &Store{
		path:   path,
		file:   f,
		opts:   opts,
		data:   make(map[string][]byte),
		logger: slog.Default().With("component", "kvlog", "path", path),
	}
	if err := s.load(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat kvlog: %w", err)
	}
	if info.Size() == 0 {
		if s.opts.ReadOnly {
			return nil
		}
		if err := writeHeader(s.file); err != nil {
			return err
		}
		s.size = HeaderSize
		return s.file.Sync()
	}

	header := make([]byte, HeaderSize)
	if _, err := s.file.ReadAt(header, 0); err != nil {
		return fmt.Errorf("reading kvlog header: %w", err)
	}
	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != MagicBytes {
		return fmt.Errorf("invalid kvlog file %s: bad magic bytes %x", s.path, magic)
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != FormatVersion {
		return fmt.Errorf("unsupported kvlog version %d", v)
	}

	if _, err := s.file.Seek(HeaderSize, io.SeekStart); err != nil {
		return fmt.Errorf("seeking kvlog: %w", err)
	}
	r := bufio.NewReader(s.file)
	offset := int64(HeaderSize)
	records := 0
	for {
		op, key, val, n, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil && s.opts.ReadOnly {
			s.logger.Warn("ignoring corrupt kvlog tail", "offset", offset, "error", err)
			break
		}
		if err != nil {
			s.logger.Warn("truncating corrupt kvlog tail",
				"offset", offset,
				"dropped_bytes", info.Size()-offset,
				"error", err,
			)
			if err := s.file.Truncate(offset); err != nil {
				return fmt.Errorf("truncating kvlog: %w", err)
			}
			break
		}
		switch op {
		case opPut:
			s.data[string(key)] = val
		case opDel:
			delete(s.data, string(key))
		}
		offset += n
		records++
	}
	s.size = offset
	if _, err := s.file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking kvlog end: %w", err)
	}
	s.logger.Debug("kvlog replayed", "records", records, "keys", len(s.data))
	return nil
}

func writeHeader(w io.Writer) error {
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(time.Now().Unix()))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing kvlog header: %w", err)
	}
	return nil
}

func encodeRecord(op byte, key string, val []byte) []byte {
	buf := make([]byte, recordHead+len(key)+len(val))
	buf[4] = op
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(key)))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(len(val)))
	copy(buf[recordHead:], key)
	copy(buf[recordHead+len(key):], val)
	binary.LittleEndian.PutUint32(buf[0:4], crc32.ChecksumIEEE(buf[4:]))
	return buf
}

// readRecord returns io.EOF only on a clean record boundary.
func readRecord(r *bufio.Reader) (op byte, key, val []byte, n int64, err error) {
	head := make([]byte, recordHead)
	if _, err := io.ReadFull(r, head); err != nil {
		if err == io.EOF {
			return 0, nil, nil, 0, io.EOF
		}
		return 0, nil, nil, 0, fmt.Errorf("short record header: %w", err)
	}
	keyLen := binary.LittleEndian.Uint32(head[5:9])
	valLen := binary.LittleEndian.Uint32(head[9:13])
	if keyLen+valLen > maxRecordSize {
		return 0, nil, nil, 0, fmt.Errorf("record length %d exceeds limit", keyLen+valLen)
	}
	body := make([]byte, keyLen+valLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, nil, 0, fmt.Errorf("short record body: %w", err)
	}
	crc := crc32.NewIEEE()
	crc.Write(head[4:])
	crc.Write(body)
	if crc.Sum32() != binary.LittleEndian.Uint32(head[0:4]) {
		return 0, nil, nil, 0, errors.New("record checksum mismatch")
	}
	op = head[4]
	if op != opPut && op != opDel {
		return 0, nil, nil, 0, fmt.Errorf("unknown record op %d", op)
	}
	return op, body[:keyLen], body[keyLen:], int64(recordHead) + int64(len(body)), nil
}

func (s *Store) appendLocked(rec []byte) error {
	if s.file == nil {
		return ErrClosed
	}
	if s.opts.ReadOnly {
		return ErrReadOnly
	}
	if _, err := s.file.Write(rec); err != nil {
		return fmt.Errorf("appending kvlog record: %w", err)
	}
	if s.opts.SyncWrites {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("syncing kvlog: %w", err)
		}
	}
	s.size += int64(len(rec))
	return nil
}

// Put stores val under key. The value is visible only after the record is
// on disk.
func (s *Store) Put(key string, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(encodeRecord(opPut, key, val)); err != nil {
		return err
	}
	s.data[key] = append([]byte(nil), val...)
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	if err := s.appendLocked(encodeRecord(opDel, key, nil)); err != nil {
		return err
	}
	delete(s.data, key)
	return nil
}

// Get returns a copy of the value for key.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Keys returns all live keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Size is the current log size in bytes, including dead records.
func (s *Store) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Clear drops every key and truncates the log back to its header.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrClosed
	}
	if s.opts.ReadOnly {
		return ErrReadOnly
	}
	if err := s.file.Truncate(HeaderSize); err != nil {
		return fmt.Errorf("truncating kvlog: %w", err)
	}
	if _, err := s.file.Seek(HeaderSize, io.SeekStart); err != nil {
		return fmt.Errorf("seeking kvlog: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("syncing kvlog: %w", err)
	}
	s.data = make(map[string][]byte)
	s.size = HeaderSize
	return nil
}

// Compact rewrites the log so it holds exactly one put record per live key.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrClosed
	}
	if s.opts.ReadOnly {
		return ErrReadOnly
	}
	tmpPath := s.path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating compaction file: %w", err)
	}
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	if err := writeHeader(w); err != nil {
		tmp.Close()
		return err
	}
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	size := int64(HeaderSize)
	for _, k := range keys {
		rec := encodeRecord(opPut, k, s.data[k])
		if _, err := w.Write(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("writing compacted record: %w", err)
		}
		size += int64(len(rec))
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing compaction file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing compaction file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing compaction file: %w", err)
	}

	before := s.size
	s.file.Close()
	if err := os.Rename(tmpPath, s.path); err != nil {
		// the old log is intact; reopen it
		f, openErr := os.OpenFile(s.path, os.O_RDWR, 0o644)
		if openErr == nil {
			f.Seek(0, io.SeekEnd)
		}
		s.file = f
		return fmt.Errorf("renaming compaction file: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_RDWR, 0o644)
	if err != nil {
		s.file = nil
		return fmt.Errorf("reopening kvlog after compaction: %w", err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		s.file = nil
		return fmt.Errorf("seeking kvlog end: %w", err)
	}
	s.file = f
	s.size = size
	s.logger.Info("kvlog compacted", "keys", len(keys), "bytes_before", before, "bytes_after", size)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
