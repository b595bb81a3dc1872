package extender

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/certen/ksiverify/pkg/cache"
	"github.com/certen/ksiverify/pkg/database"
	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/merkle"
	"github.com/certen/ksiverify/pkg/signature"
)

func testChain(t *testing.T, reg *hashing.Registry, publicationTime uint64) *signature.CalendarChain {
	t.Helper()
	im, err := hashing.HashImprint(reg, hashing.SHA256, []byte("aggr-root"))
	if err != nil {
		t.Fatalf("HashImprint: %v", err)
	}
	sib, err := hashing.HashImprint(reg, hashing.SHA256, []byte("cal-sib"))
	if err != nil {
		t.Fatalf("HashImprint: %v", err)
	}
	return &signature.CalendarChain{
		AggregationTime: 1_700_000_000,
		PublicationTime: publicationTime,
		InputHash:       im,
		Links: []merkle.HashChainLink{
			{Direction: merkle.Right, Sibling: sib},
		},
	}
}

func TestHTTPExtenderFetchesAndDecodesChain(t *testing.T) {
	reg := hashing.DefaultRegistry()
	want := testChain(t, reg, 1_700_003_600)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("aggregation_time"); got != "1700000000" {
			t.Errorf("aggregation_time query param = %q", got)
		}
		w.Write(signature.EncodeCalendarChain(want))
	}))
	defer srv.Close()

	e := NewHTTPExtender(srv.URL, reg)
	got, err := e.Extend(context.Background(), 1_700_000_000, nil)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if got.PublicationTime != want.PublicationTime {
		t.Fatalf("PublicationTime = %d, want %d", got.PublicationTime, want.PublicationTime)
	}
}

func TestHTTPExtenderPropagatesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewHTTPExtender(srv.URL, hashing.DefaultRegistry())
	if _, err := e.Extend(context.Background(), 1, nil); err == nil {
		t.Fatalf("expected an error for a non-200 extender response")
	}
}

// fakeExtender counts calls so the caching decorator's hit behavior can be
// asserted directly.
type fakeExtender struct {
	calls int
	chain *signature.CalendarChain
	err   error
}

func (f *fakeExtender) Extend(ctx context.Context, aggregationTime uint64, publicationTime *uint64) (*signature.CalendarChain, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.chain, nil
}

func TestCachingExtenderCachesByTuple(t *testing.T) {
	reg := hashing.DefaultRegistry()
	chain := testChain(t, reg, 1_700_003_600)
	fake := &fakeExtender{chain: chain}
	ce := NewCachingExtender(fake, cache.NewMemoryStore(), reg, nil)

	pubTime := uint64(1_700_003_600)
	if _, err := ce.Extend(context.Background(), 1_700_000_000, &pubTime); err != nil {
		t.Fatalf("first Extend: %v", err)
	}
	if _, err := ce.Extend(context.Background(), 1_700_000_000, &pubTime); err != nil {
		t.Fatalf("second Extend: %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("underlying Extender called %d times, want 1 (second call should hit cache)", fake.calls)
	}
}

func TestCachingExtenderMissesOnDifferentPublicationTime(t *testing.T) {
	reg := hashing.DefaultRegistry()
	fake := &fakeExtender{chain: testChain(t, reg, 1_700_003_600)}
	ce := NewCachingExtender(fake, cache.NewMemoryStore(), reg, nil)

	first := uint64(1_700_003_600)
	second := uint64(1_700_007_200)
	if _, err := ce.Extend(context.Background(), 1_700_000_000, &first); err != nil {
		t.Fatalf("first Extend: %v", err)
	}
	if _, err := ce.Extend(context.Background(), 1_700_000_000, &second); err != nil {
		t.Fatalf("second Extend: %v", err)
	}
	if fake.calls != 2 {
		t.Fatalf("underlying Extender called %d times, want 2 (different publication times must not share a cache entry)", fake.calls)
	}
}

func TestCachingExtenderTreatsNilPublicationTimeAsHead(t *testing.T) {
	reg := hashing.DefaultRegistry()
	fake := &fakeExtender{chain: testChain(t, reg, 1_700_003_600)}
	ce := NewCachingExtender(fake, cache.NewMemoryStore(), reg, nil)

	if _, err := ce.Extend(context.Background(), 1_700_000_000, nil); err != nil {
		t.Fatalf("first Extend: %v", err)
	}
	if _, err := ce.Extend(context.Background(), 1_700_000_000, nil); err != nil {
		t.Fatalf("second Extend: %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("underlying Extender called %d times, want 1", fake.calls)
	}
}

func TestCachingExtenderDoesNotCacheErrors(t *testing.T) {
	fake := &fakeExtender{err: errors.New("upstream unavailable")}
	ce := NewCachingExtender(fake, cache.NewMemoryStore(), hashing.DefaultRegistry(), nil)

	if _, err := ce.Extend(context.Background(), 1, nil); err == nil {
		t.Fatalf("expected error to propagate")
	}
	if _, err := ce.Extend(context.Background(), 1, nil); err == nil {
		t.Fatalf("expected error to propagate again (no cache entry for a failed fetch)")
	}
	if fake.calls != 2 {
		t.Fatalf("underlying Extender called %d times, want 2 (errors must not be cached)", fake.calls)
	}
}

func TestFileExtenderReadsFixtureByTuple(t *testing.T) {
	reg := hashing.DefaultRegistry()
	chain := testChain(t, reg, 1_700_003_600)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "1700000000_head.tlv"), signature.EncodeCalendarChain(chain), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	fe := NewFileExtender(dir, reg)
	got, err := fe.Extend(context.Background(), 1_700_000_000, nil)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if got.PublicationTime != chain.PublicationTime {
		t.Fatalf("PublicationTime = %d, want %d", got.PublicationTime, chain.PublicationTime)
	}
}

func TestFileExtenderMissingFixtureErrors(t *testing.T) {
	fe := NewFileExtender(t.TempDir(), hashing.DefaultRegistry())
	if _, err := fe.Extend(context.Background(), 1, nil); err == nil {
		t.Fatalf("expected an error for a missing fixture file")
	}
}

func TestNewFromURIDispatchesByScheme(t *testing.T) {
	reg := hashing.DefaultRegistry()

	fileExt, err := NewFromURI("file:///tmp/fixtures", reg)
	if err != nil {
		t.Fatalf("NewFromURI(file://): %v", err)
	}
	if _, ok := fileExt.(*FileExtender); !ok {
		t.Fatalf("NewFromURI(file://) = %T, want *FileExtender", fileExt)
	}

	httpExt, err := NewFromURI("https://extender.example/extend", reg)
	if err != nil {
		t.Fatalf("NewFromURI(https://): %v", err)
	}
	if _, ok := httpExt.(*HTTPExtender); !ok {
		t.Fatalf("NewFromURI(https://) = %T, want *HTTPExtender", httpExt)
	}

	if _, err := NewFromURI("ftp://extender.example", reg); err == nil {
		t.Fatalf("expected an error for an unsupported scheme")
	}
}

// fakeAuditStore records the lifecycle calls AuditingExtender makes, without
// a live database connection.
type fakeAuditStore struct {
	recorded  []database.NewExtensionAuditEntry
	completed int
	failed    int
}

func (f *fakeAuditStore) RecordExtensionRequest(ctx context.Context, req database.NewExtensionAuditEntry) (database.NullUUID, error) {
	f.recorded = append(f.recorded, req)
	return database.NullUUID{UUID: database.NewUUID(), Valid: true}, nil
}

func (f *fakeAuditStore) CompleteExtensionRequest(ctx context.Context, id database.NullUUID, calendarChain []byte) error {
	f.completed++
	return nil
}

func (f *fakeAuditStore) FailExtensionRequest(ctx context.Context, id database.NullUUID, msg string) error {
	f.failed++
	return nil
}

func TestAuditingExtenderRecordsSuccess(t *testing.T) {
	reg := hashing.DefaultRegistry()
	fake := &fakeExtender{chain: testChain(t, reg, 1_700_003_600)}
	store := &fakeAuditStore{}
	ae := NewAuditingExtender(fake, store, "https://extender.example", nil)

	if _, err := ae.Extend(context.Background(), 1_700_000_000, nil); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if len(store.recorded) != 1 {
		t.Fatalf("recorded %d requests, want 1", len(store.recorded))
	}
	if store.recorded[0].ExtenderURI != "https://extender.example" {
		t.Fatalf("ExtenderURI = %q, want the configured extender URI", store.recorded[0].ExtenderURI)
	}
	if store.completed != 1 || store.failed != 0 {
		t.Fatalf("completed=%d failed=%d, want completed=1 failed=0", store.completed, store.failed)
	}
}

func TestAuditingExtenderRecordsFailure(t *testing.T) {
	fake := &fakeExtender{err: errors.New("upstream unavailable")}
	store := &fakeAuditStore{}
	ae := NewAuditingExtender(fake, store, "https://extender.example", nil)

	if _, err := ae.Extend(context.Background(), 1, nil); err == nil {
		t.Fatalf("expected error to propagate from the wrapped extender")
	}
	if store.completed != 0 || store.failed != 1 {
		t.Fatalf("completed=%d failed=%d, want completed=0 failed=1", store.completed, store.failed)
	}
}
