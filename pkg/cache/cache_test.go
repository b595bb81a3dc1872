package cache

import (
	"bytes"
	"path/filepath"
	"testing"

	dbm "github.com/cometbft/cometbft-db"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	if _, ok, err := s.Get(100, 200); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	want := []byte("serialized-calendar-chain")
	if err := s.Put(100, 200, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get(100, 200)
	if err != nil || !ok {
		t.Fatalf("Get after Put: ok=%v err=%v, want ok=true err=nil", ok, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Get returned %q, want %q", got, want)
	}

	if _, ok, _ := s.Get(100, 201); ok {
		t.Fatalf("Get with a different publication time should miss")
	}

	if err := s.Put(100, HeadPublicationTime, []byte("latest-chain")); err != nil {
		t.Fatalf("Put with HeadPublicationTime: %v", err)
	}
	got, ok, err = s.Get(100, HeadPublicationTime)
	if err != nil || !ok || string(got) != "latest-chain" {
		t.Fatalf("Get(HeadPublicationTime) = %q, ok=%v, err=%v", got, ok, err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestBoltStore(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "extension-cache.db"))
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestCometStore(t *testing.T) {
	db := dbm.NewMemDB()
	exerciseStore(t, NewCometStore(db))
}
