package cache

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
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
	// fileMagic identifies a cache file. A file without it is rewritten.
	fileMagic = "CKITCACH"

	fileVersion = 0x01

	headerSize = len(fileMagic) + 1
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var ErrClosed = errors.New("cache store is closed")

// FileStore is a [Store] backed by an append-only file of gob-encoded
// entries, each protected by a CRC so a torn tail write is detected and
// dropped on the next open. Later entries for a key supersede earlier ones;
// Close compacts the file when any entry was superseded.
type FileStore struct {
	f          *os.File
	entries    map[string]Entry
	path       string
	mu         sync.Mutex
	superseded int
	closed     bool
}

// Open opens or creates the cache file at path. An unreadable, truncated,
// or version-mismatched file is treated as empty rather than an error; only
// filesystem failures are returned, and callers are expected to degrade to
// [NewMemory] in that case.
func Open(path string) (*FileStore, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o700)
	if err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return nil, fmt.Errorf("open cache file: %w", err)
	}

	s := &FileStore{
		f:       f,
		path:    path,
		entries: make(map[string]Entry),
	}

	err = s.load()
	if err != nil {
		_ = f.Close()

		return nil, err
	}

	return s, nil
}

func (s *FileStore) load() error {
	data, err := io.ReadAll(s.f)
	if err != nil {
		return fmt.Errorf("read cache file: %w", err)
	}

	if len(data) < headerSize || string(data[:len(fileMagic)]) != fileMagic || data[len(fileMagic)] != fileVersion {
		if len(data) > 0 {
			slog.Debug("discarding cache file with unknown format",
				slog.String("path", s.path),
			)
		}

		return s.reset()
	}

	offset := headerSize

	for {
		entry, next, ok := decodeRecord(data, offset)
		if !ok {
			break
		}

		if prev, exists := s.entries[entry.Key]; exists && prev != entry {
			s.superseded++
		}

		s.entries[entry.Key] = entry
		offset = next
	}

	if offset < len(data) {
		// Torn tail record. Drop it and everything after it.
		slog.Debug("dropping torn cache records",
			slog.String("path", s.path),
			slog.Int("offset", offset),
		)

		err = s.f.Truncate(int64(offset))
		if err != nil {
			return fmt.Errorf("truncate cache file: %w", err)
		}
	}

	_, err = s.f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek cache file: %w", err)
	}

	return nil
}

// reset truncates the file to an empty store with a fresh header.
func (s *FileStore) reset() error {
	err := s.f.Truncate(0)
	if err != nil {
		return fmt.Errorf("truncate cache file: %w", err)
	}

	_, err = s.f.Seek(0, io.SeekStart)
	if err != nil {
		return fmt.Errorf("seek cache file: %w", err)
	}

	header := append(append([]byte{}, fileMagic...), fileVersion)

	_, err = s.f.Write(header)
	if err != nil {
		return fmt.Errorf("write cache header: %w", err)
	}

	return nil
}

// decodeRecord decodes the record at offset, returning the entry and the
// offset of the next record. ok is false when there is no complete, intact
// record at offset.
func decodeRecord(data []byte, offset int) (Entry, int, bool) {
	if offset+4 > len(data) {
		return Entry{}, offset, false
	}

	length := int(binary.BigEndian.Uint32(data[offset : offset+4]))

	payloadStart := offset + 4
	payloadEnd := payloadStart + length

	if payloadEnd+4 > len(data) {
		return Entry{}, offset, false
	}

	payload := data[payloadStart:payloadEnd]

	sum := binary.BigEndian.Uint32(data[payloadEnd : payloadEnd+4])
	if crc32.Checksum(payload, castagnoli) != sum {
		return Entry{}, offset, false
	}

	var entry Entry

	err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&entry)
	if err != nil {
		return Entry{}, offset, false
	}

	return entry, payloadEnd + 4, true
}

func encodeRecord(entry Entry) ([]byte, error) {
	var payload bytes.Buffer

	err := gob.NewEncoder(&payload).Encode(entry)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}

	record := make([]byte, 0, payload.Len()+8)
	record = binary.BigEndian.AppendUint32(record, uint32(payload.Len())) //nolint:gosec // G115: gob payloads are small.
	record = append(record, payload.Bytes()...)
	record = binary.BigEndian.AppendUint32(record, crc32.Checksum(payload.Bytes(), castagnoli))

	return record, nil
}

func (s *FileStore) Get(key, fingerprint string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.Fingerprint != fingerprint {
		return "", false
	}

	return e.Value, true
}

func (s *FileStore) Put(key, fingerprint, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	entry := Entry{
		Key:         key,
		Fingerprint: fingerprint,
		Value:       value,
		ComputedAt:  time.Now(),
	}

	record, err := encodeRecord(entry)
	if err != nil {
		return err
	}

	_, err = s.f.Write(record)
	if err != nil {
		return fmt.Errorf("append cache entry: %w", err)
	}

	err = s.f.Sync()
	if err != nil {
		return fmt.Errorf("sync cache file: %w", err)
	}

	if _, exists := s.entries[key]; exists {
		s.superseded++
	}

	s.entries[key] = entry

	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.entries = make(map[string]Entry)
	s.superseded = 0

	return s.reset()
}

// Close compacts the file when entries were superseded, then closes it.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	if s.superseded > 0 {
		err := s.compact()
		if err != nil {
			slog.Warn("compact cache file",
				slog.String("path", s.path),
				slog.Any("error", err),
			)
		}
	}

	err := s.f.Close()
	if err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}

	return nil
}

// compact rewrites the live entries to a temp file and renames it over the
// cache file.
func (s *FileStore) compact() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	header := append(append([]byte{}, fileMagic...), fileVersion)

	_, err = tmp.Write(header)
	if err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write cache header: %w", err)
	}

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		record, err := encodeRecord(s.entries[key])
		if err != nil {
			_ = tmp.Close()

			return err
		}

		_, err = tmp.Write(record)
		if err != nil {
			_ = tmp.Close()

			return fmt.Errorf("write cache entry: %w", err)
		}
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}

	err = os.Rename(tmp.Name(), s.path)
	if err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}

	return nil
}
