package kvlog

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "kv.log"))

	if err := s.Put("alpha", []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put("beta", []byte("2")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put("alpha", []byte("3")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if v, ok := s.Get("alpha"); !ok || string(v) != "3" {
		t.Errorf("Get(alpha) = %q, %v", v, ok)
	}
	if err := s.Delete("beta"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.Get("beta"); ok {
		t.Error("beta still present after delete")
	}
	if err := s.Delete("missing"); err != nil {
		t.Errorf("Delete(missing): %v", err)
	}
	if got := s.Keys(); !reflect.DeepEqual(got, []string{"alpha"}) {
		t.Errorf("Keys = %v", got)
	}
}

func TestReplayAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.log")
	s, err := Open(path, Options{SyncWrites: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Put("hong", []byte("kong"))
	s.Put("web", []byte("search"))
	s.Delete("web")
	s.Close()

	s2 := openStore(t, path)
	if v, ok := s2.Get("hong"); !ok || string(v) != "kong" {
		t.Errorf("after reopen Get(hong) = %q, %v", v, ok)
	}
	if _, ok := s2.Get("web"); ok {
		t.Error("deleted key resurrected by replay")
	}
}

func TestTornTailTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.log")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Put("good", []byte("value"))
	goodSize := s.Size()
	s.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	rec := encodeRecord(opPut, "partial", []byte("lost"))
	f.Write(rec[:len(rec)-2])
	f.Close()

	s2 := openStore(t, path)
	if _, ok := s2.Get("good"); !ok {
		t.Error("intact record lost")
	}
	if _, ok := s2.Get("partial"); ok {
		t.Error("torn record should not be visible")
	}
	if s2.Size() != goodSize {
		t.Errorf("size = %d, want %d", s2.Size(), goodSize)
	}
	// appends after recovery must replay cleanly
	if err := s2.Put("after", []byte("x")); err != nil {
		t.Fatalf("Put after recovery: %v", err)
	}
	s2.Close()
	s3 := openStore(t, path)
	if _, ok := s3.Get("after"); !ok {
		t.Error("record written after recovery missing")
	}
}

func TestBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.log")
	if err := os.WriteFile(path, make([]byte, HeaderSize), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, Options{}); err == nil {
		t.Error("expected error for bad magic")
	}
}

func TestCompact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.log")
	s := openStore(t, path)
	for i := 0; i < 50; i++ {
		s.Put("k", []byte{byte(i)})
	}
	s.Put("other", []byte("o"))
	before := s.Size()
	if err := s.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if s.Size() >= before {
		t.Errorf("size after compaction %d >= before %d", s.Size(), before)
	}
	if v, _ := s.Get("k"); len(v) != 1 || v[0] != 49 {
		t.Errorf("Get(k) = %v", v)
	}
	if err := s.Put("post", []byte("p")); err != nil {
		t.Fatalf("Put after compaction: %v", err)
	}
	s.Close()

	s2 := openStore(t, path)
	if s2.Len() != 3 {
		t.Errorf("Len after reopen = %d, want 3", s2.Len())
	}
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.log")
	s := openStore(t, path)
	s.Put("a", []byte("1"))
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if s.Len() != 0 || s.Size() != HeaderSize {
		t.Errorf("after Clear len=%d size=%d", s.Len(), s.Size())
	}
	s.Put("b", []byte("2"))
	s.Close()
	s2 := openStore(t, path)
	if got := s2.Keys(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Keys after reopen = %v", got)
	}
}

func TestClosed(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "kv.log"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	if err := s.Put("a", nil); err != ErrClosed {
		t.Errorf("Put on closed store = %v, want ErrClosed", err)
	}
}

func TestReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.log")
	w := openStore(t, path)
	if err := w.Put("term", []byte("postings")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	r, err := Open(path, Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("Open read-only: %v", err)
	}
	defer r.Close()
	if v, ok := r.Get("term"); !ok || string(v) != "postings" {
		t.Errorf("Get = %q/%v", v, ok)
	}
	if err := r.Put("x", []byte("y")); err != ErrReadOnly {
		t.Errorf("Put err = %v, want ErrReadOnly", err)
	}
	if err := r.Compact(); err != ErrReadOnly {
		t.Errorf("Compact err = %v, want ErrReadOnly", err)
	}

	if _, err := Open(filepath.Join(t.TempDir(), "missing.log"), Options{ReadOnly: true}); !os.IsNotExist(errors.Unwrap(err)) {
		t.Errorf("missing read-only log: err = %v", err)
	}
}
