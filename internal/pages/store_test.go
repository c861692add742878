package pages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 2, 19, 10, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(Options{
		Dir:    filepath.Join(t.TempDir(), "uploads"),
		Logger: log.New(io.Discard, "", 0),
		Now:    func() time.Time { return fixedNow },
	})
}

const samplePage = `<!DOCTYPE html><html><head><title>Ropa Viva</title></head>
<body><main><article><h1>Ropa Viva</h1>
<p>Ropa sostenible hecha a mano en Valencia, con envíos a toda España y devoluciones gratuitas durante treinta días.</p>
<p>Descubre la nueva colección de primavera y nuestras ofertas de temporada para toda la familia.</p>
</article></main></body></html>`

func TestSaveWritesArtifactsAndIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	meta, err := s.Save(ctx, samplePage, "quiero una tienda de ropa", "ecommerce", "a3f2b1c9-0000")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if meta.PageID != "2026-02-19_ecommerce_a3f2b1" {
		t.Fatalf("unexpected page id %q", meta.PageID)
	}
	if meta.HTMLFile != meta.PageID+".html" || meta.JSONFile != meta.PageID+".json" {
		t.Fatalf("unexpected file names %+v", meta)
	}

	raw, err := os.ReadFile(filepath.Join(s.Dir(), meta.HTMLFile))
	if err != nil || string(raw) != samplePage {
		t.Fatalf("html artifact mismatch: %v", err)
	}

	page, err := s.Get(ctx, meta.PageID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if page.HTML != samplePage || page.Prompt != "quiero una tienda de ropa" || page.SessionID != "a3f2b1c9-0000" {
		t.Fatalf("unexpected page %+v", page.Metadata)
	}
	if !page.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected created_at %v", page.CreatedAt)
	}

	b, err := os.ReadFile(filepath.Join(s.Dir(), IndexFile))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	var index []map[string]any
	if err := json.Unmarshal(b, &index); err != nil {
		t.Fatalf("decode index: %v", err)
	}
	if len(index) != 1 || index[0]["page_id"] != meta.PageID {
		t.Fatalf("unexpected index %v", index)
	}
	if _, ok := index[0]["html"]; ok {
		t.Fatalf("index must not embed html")
	}
	artifact, err := os.ReadFile(filepath.Join(s.Dir(), meta.JSONFile))
	if err != nil {
		t.Fatalf("read json artifact: %v", err)
	}
	if !bytes.Contains(artifact, []byte(`"html": "<!DOCTYPE html>`)) {
		t.Fatalf("json artifact should embed unescaped markup")
	}
	if meta.Title != "Ropa Viva" || !strings.Contains(meta.Excerpt, "Ropa sostenible") {
		t.Fatalf("expected preview in metadata, got title=%q excerpt=%q", meta.Title, meta.Excerpt)
	}
}

func TestSaveDisambiguatesCollisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := []string{
		"2026-02-19_landing_a3f2b1",
		"2026-02-19_landing_a3f2b1_2",
		"2026-02-19_landing_a3f2b1_3",
	}
	for i, id := range want {
		meta, err := s.Save(ctx, "<html></html>", fmt.Sprintf("prompt %d", i), "landing", "a3f2b1")
		if err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
		if meta.PageID != id {
			t.Fatalf("save %d: expected %q, got %q", i, id, meta.PageID)
		}
	}
	list, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(list))
	}
	for i, m := range list {
		if m.PageID != want[i] {
			t.Fatalf("index order: position %d has %q", i, m.PageID)
		}
	}
}

func TestConcurrentSavesKeepEveryEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 24
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := fmt.Sprintf("s%05d", i%3)
			if _, err := s.Save(ctx, "<html></html>", "p", "landing", session); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Save: %v", err)
	}

	list, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != n {
		t.Fatalf("expected %d index entries, got %d", n, len(list))
	}
	seen := map[string]bool{}
	for _, m := range list {
		if seen[m.PageID] {
			t.Fatalf("duplicate page id %q", m.PageID)
		}
		seen[m.PageID] = true
	}
}

func TestListFiltersBySession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, sess := range []string{"alpha1", "beta22", "alpha1"} {
		if _, err := s.Save(ctx, "<html></html>", "p", "portfolio", sess); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	got, err := s.List(ctx, "alpha1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 pages for alpha1, got %d", len(got))
	}
	none, err := s.List(ctx, "nobody")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty list, got %v %v", none, err)
	}
}

func TestListWithoutIndex(t *testing.T) {
	s := newTestStore(t)
	got, err := s.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"missing", "broken", "../index", "a/b", ""} {
		if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get(%q): expected ErrNotFound, got %v", id, err)
		}
	}
}

func TestCorruptIndexIsQuarantined(t *testing.T) {
	var logs bytes.Buffer
	dir := t.TempDir()
	s := NewStore(Options{Dir: dir, Logger: log.New(&logs, "", 0), Now: func() time.Time { return fixedNow }})
	ctx := context.Background()

	corrupt := []byte(`[{"page_id": "old"`)
	if err := os.WriteFile(filepath.Join(dir, IndexFile), corrupt, 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := s.List(ctx, "")
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list for corrupt index, got %v %v", list, err)
	}
	if !strings.Contains(logs.String(), "warn:") {
		t.Fatalf("corrupt index should be logged, got %q", logs.String())
	}

	meta, err := s.Save(ctx, "<html></html>", "p", "landing", "abcdef")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	quarantined := filepath.Join(dir, fmt.Sprintf("%s.corrupt-%d", IndexFile, fixedNow.Unix()))
	kept, err := os.ReadFile(quarantined)
	if err != nil {
		t.Fatalf("quarantined index missing: %v", err)
	}
	if !bytes.Equal(kept, corrupt) {
		t.Fatalf("quarantined content changed")
	}
	list, err = s.List(ctx, "")
	if err != nil || len(list) != 1 || list[0].PageID != meta.PageID {
		t.Fatalf("expected fresh index with the new page, got %v %v", list, err)
	}
}

func TestSaveAfterQuarantineKeepsExistingArtifacts(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(Options{Dir: dir, Logger: log.New(io.Discard, "", 0), Now: func() time.Time { return fixedNow }})
	ctx := context.Background()

	first, err := s.Save(ctx, "<html>FIRST</html>", "tienda", "ecommerce", "abcdef12")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, IndexFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	second, err := s.Save(ctx, "<html>SECOND</html>", "tienda", "ecommerce", "abcdef12")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if second.PageID == first.PageID {
		t.Fatalf("second save reused id %s", first.PageID)
	}
	if second.PageID != first.PageID+"_2" {
		t.Fatalf("expected %s_2, got %s", first.PageID, second.PageID)
	}
	b, err := os.ReadFile(filepath.Join(dir, first.HTMLFile))
	if err != nil || string(b) != "<html>FIRST</html>" {
		t.Fatalf("first page html changed: %q %v", b, err)
	}
	page, err := s.Get(ctx, first.PageID)
	if err != nil || page.HTML != "<html>FIRST</html>" {
		t.Fatalf("first page json changed: %+v %v", page, err)
	}
}

func TestSaveSkipsIDsOfUnindexedArtifacts(t *testing.T) {
	s := newTestStore(t)
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	// left behind by a crash between the html write and the index write
	orphan := filepath.Join(s.Dir(), "2026-02-19_landing_abcdef.html")
	if err := os.WriteFile(orphan, []byte("<html>orphan</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	meta, err := s.Save(context.Background(), "<html>new</html>", "p", "landing", "abcdef")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if meta.PageID != "2026-02-19_landing_abcdef_2" {
		t.Fatalf("unexpected id %s", meta.PageID)
	}
	if b, _ := os.ReadFile(orphan); string(b) != "<html>orphan</html>" {
		t.Fatalf("orphan overwritten: %q", b)
	}
}

func TestSaveReportsPersistenceError(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "uploads")
	if err := os.WriteFile(blocker, []byte("not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(Options{Dir: blocker, Logger: log.New(io.Discard, "", 0)})
	_, err := s.Save(context.Background(), "<html></html>", "p", "landing", "abcdef")
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}

func TestBuildPageID(t *testing.T) {
	cases := []struct {
		siteType, session, want string
	}{
		{"landing", "a3f2b1c9", "2026-02-19_landing_a3f2b1"},
		{"E-Commerce!", "abc", "2026-02-19_e-commerce_abc"},
		{"portfolio", "ñandú-9xyz", "2026-02-19_portfolio_ñandú-"},
		{"landing", "../etc/passwd", "2026-02-19_landing_etc"},
		{"landing", "", "2026-02-19_landing_"},
	}
	for _, c := range cases {
		if got := BuildPageID(fixedNow, c.siteType, c.session); got != c.want {
			t.Fatalf("BuildPageID(%q, %q) = %q, want %q", c.siteType, c.session, got, c.want)
		}
	}
}

func TestSearchFindsSavedPages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, "<html></html>", "portfolio for a photographer", "portfolio", "sess01"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// build the search index before the second save to check it is kept current
	if _, err := s.Search(ctx, "photographer", 5); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if _, err := s.Save(ctx, samplePage, "tienda de ropa sostenible", "ecommerce", "sess02"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	hits, err := s.Search(ctx, "sostenible", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].SiteType != "ecommerce" {
		t.Fatalf("unexpected hits %+v", hits)
	}

	hits, err = s.Search(ctx, "photographer", 5)
	if err != nil || len(hits) != 1 || hits[0].SessionID != "sess01" {
		t.Fatalf("unexpected hits %+v %v", hits, err)
	}

	if hits, err := s.Search(ctx, "   ", 5); err != nil || len(hits) != 0 {
		t.Fatalf("blank query should return nothing, got %v %v", hits, err)
	}
}

func TestSearchSeesSavesFromAnotherStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	opts := Options{Dir: dir, Logger: log.New(io.Discard, "", 0), Now: func() time.Time { return fixedNow }}
	writer, reader := NewStore(opts), NewStore(opts)
	ctx := context.Background()

	if _, err := writer.Save(ctx, "<html></html>", "portfolio for a photographer", "portfolio", "sess01"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if hits, err := reader.Search(ctx, "photographer", 5); err != nil || len(hits) != 1 {
		t.Fatalf("unexpected hits %+v %v", hits, err)
	}

	if _, err := writer.Save(ctx, "<html></html>", "tienda de ropa sostenible", "ecommerce", "sess02"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	hits, err := reader.Search(ctx, "sostenible", 5)
	if err != nil || len(hits) != 1 || hits[0].SessionID != "sess02" {
		t.Fatalf("reader missed the other store's page: %+v %v", hits, err)
	}

	// a local save after a foreign one must not hide the foreign page
	if _, err := writer.Save(ctx, "<html></html>", "landing para cafeteria", "landing", "sess03"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := reader.Save(ctx, "<html></html>", "portfolio de arquitecta", "portfolio", "sess04"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	for _, q := range []string{"cafeteria", "arquitecta"} {
		if hits, err := reader.Search(ctx, q, 5); err != nil || len(hits) != 1 {
			t.Fatalf("%s: unexpected hits %+v %v", q, hits, err)
		}
	}
}

func TestIsPageID(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"2026-02-19_ecommerce_a3f2b1", true},
		{"2026-02-19_landing_abcdef_12", true},
		{"2026-02-19_portfolio_", true},
		{"3f2a9c1e-0000-4000-8000-000000000000_brief", false},
		{"index", false},
		{"2026-02-19_landing", false},
	}
	for _, c := range cases {
		if got := IsPageID(c.name); got != c.want {
			t.Fatalf("IsPageID(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}
