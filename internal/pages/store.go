package pages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// IndexFile is the name of the global index inside the uploads directory.
const IndexFile = "index.json"

const indexLockKey = "pages:index"

// Metadata is one index entry. It never carries the page markup.
type Metadata struct {
	PageID    string    `json:"page_id"`
	SiteType  string    `json:"site_type"`
	Prompt    string    `json:"prompt"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	HTMLFile  string    `json:"html_file"`
	JSONFile  string    `json:"json_file"`
	Title     string    `json:"title,omitempty"`
	Excerpt   string    `json:"excerpt,omitempty"`
}

// Page is the content of a {page_id}.json artifact.
type Page struct {
	Metadata
	HTML string `json:"html"`
}

type Options struct {
	Dir    string
	Locker Locker
	Logger *log.Logger
	Now    func() time.Time
}

// Store keeps generated pages as files next to a single index.json. Every
// index mutation holds the in-process writer mutex and the Locker, so
// concurrent saves from one or many processes never drop entries.
type Store struct {
	dir    string
	locker Locker
	logger *log.Logger
	now    func() time.Time

	mu     sync.Mutex
	search *searchIndex
	// searchStamp is the index file state search was last synced with.
	searchStamp indexStamp
}

// indexStamp identifies one version of index.json on disk. Other processes
// sharing the directory change it when they save.
type indexStamp struct {
	modNano int64
	size    int64
}

func NewStore(opts Options) *Store {
	s := &Store{dir: opts.Dir, locker: opts.Locker, logger: opts.Logger, now: opts.Now}
	if s.dir == "" {
		s.dir = "uploads"
	}
	if s.locker == nil {
		s.locker = nopLocker{}
	}
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[PAGES] ", log.LstdFlags)
	}
	if s.now == nil {
		s.now = time.Now
	}
	metricsOnce.Do(initMetrics)
	return s
}

func (s *Store) Dir() string { return s.dir }

var (
	metricsOnce sync.Once
	savedCount  otelmetric.Int64Counter
)

func initMetrics() {
	var err error
	savedCount, err = otel.Meter("webbuilder/pages").Int64Counter(
		"webbuilder_pages_saved_total",
		otelmetric.WithDescription("Pages persisted to the uploads directory"),
	)
	if err != nil {
		log.Printf("pages metrics init: webbuilder_pages_saved_total: %v", err)
	}
}

// Save writes {id}.html and {id}.json and appends the entry to the index.
// A failed write aborts the save; artifacts already on disk stay there.
func (s *Store) Save(ctx context.Context, html, prompt, siteType, sessionID string) (Metadata, error) {
	ctx, span := otel.Tracer("webbuilder/pages").Start(ctx, "pages.Save")
	defer span.End()
	span.SetAttributes(attribute.String("plan.site_type", siteType))

	meta, err := s.save(ctx, html, prompt, siteType, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Metadata{}, err
	}
	span.SetAttributes(attribute.String("page.id", meta.PageID))
	if savedCount != nil {
		savedCount.Add(ctx, 1)
	}
	return meta, nil
}

func (s *Store) save(ctx context.Context, html, prompt, siteType, sessionID string) (Metadata, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Metadata{}, &PersistenceError{Op: "mkdir", Path: s.dir, Err: err}
	}
	title, excerpt := extractPreview(html)
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	token, err := s.locker.Lock(ctx, indexLockKey)
	if err != nil {
		return Metadata{}, err
	}
	defer func() {
		// the request context may already be gone; the lock must still go
		if err := s.locker.Unlock(context.Background(), indexLockKey, token); err != nil {
			s.logger.Printf("warn: %v", err)
		}
	}()

	before := s.stampIndex()
	index, err := s.loadIndex()
	if errors.Is(err, ErrIndexCorrupt) {
		if qerr := s.quarantineIndex(now); qerr != nil {
			return Metadata{}, qerr
		}
		index = nil
	} else if err != nil {
		return Metadata{}, err
	}

	id := s.uniqueID(BuildPageID(now, siteType, sessionID), index)
	meta := Metadata{
		PageID:    id,
		SiteType:  siteType,
		Prompt:    prompt,
		SessionID: sessionID,
		CreatedAt: now,
		HTMLFile:  id + ".html",
		JSONFile:  id + ".json",
		Title:     title,
		Excerpt:   excerpt,
	}

	htmlPath := filepath.Join(s.dir, meta.HTMLFile)
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		return Metadata{}, &PersistenceError{Op: "write html", Path: htmlPath, Err: err}
	}
	jsonPath := filepath.Join(s.dir, meta.JSONFile)
	body, err := encodeJSON(Page{Metadata: meta, HTML: html})
	if err != nil {
		return Metadata{}, &PersistenceError{Op: "encode page", Path: jsonPath, Err: err}
	}
	if err := os.WriteFile(jsonPath, body, 0o644); err != nil {
		return Metadata{}, &PersistenceError{Op: "write json", Path: jsonPath, Err: err}
	}

	index = append(index, meta)
	if err := s.writeIndex(index); err != nil {
		return Metadata{}, err
	}
	s.logger.Printf("saved %s (%d pages indexed)", id, len(index))

	if s.search != nil {
		if s.searchStamp != before {
			// another process saved since search was built
			s.search = nil
		} else {
			if err := s.search.add(meta); err != nil {
				s.logger.Printf("warn: search index %s: %v", id, err)
			}
			s.searchStamp = s.stampIndex()
		}
	}
	return meta, nil
}

// Get reads the JSON artifact of a page. Unknown ids, ids that could escape
// the uploads directory and unreadable artifacts all yield ErrNotFound.
func (s *Store) Get(ctx context.Context, pageID string) (Page, error) {
	if !ValidPageID(pageID) {
		return Page{}, ErrNotFound
	}
	path := filepath.Join(s.dir, pageID+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Printf("warn: read %s: %v", path, err)
		}
		return Page{}, ErrNotFound
	}
	var p Page
	if err := json.Unmarshal(b, &p); err != nil || p.PageID == "" {
		s.logger.Printf("warn: malformed page artifact %s", path)
		return Page{}, ErrNotFound
	}
	return p, nil
}

// List returns index entries in write order, filtered by session when
// sessionID is non-empty. A corrupt index reads as empty and is logged.
func (s *Store) List(ctx context.Context, sessionID string) ([]Metadata, error) {
	index, err := s.loadIndex()
	if errors.Is(err, ErrIndexCorrupt) {
		s.logger.Printf("warn: %v; listing as empty until the next save quarantines it", err)
		return []Metadata{}, nil
	}
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		if index == nil {
			index = []Metadata{}
		}
		return index, nil
	}
	out := make([]Metadata, 0, len(index))
	for _, m := range index {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

// Search runs a full-text query over prompts, site types and page previews.
func (s *Store) Search(ctx context.Context, q string, limit int) ([]Metadata, error) {
	idx, err := s.searchIndex(ctx)
	if err != nil {
		return nil, err
	}
	return idx.search(q, limit)
}

func (s *Store) searchIndex(ctx context.Context) (*searchIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp := s.stampIndex()
	if s.search != nil && stamp == s.searchStamp {
		return s.search, nil
	}
	index, err := s.loadIndex()
	if errors.Is(err, ErrIndexCorrupt) {
		s.logger.Printf("warn: %v; search starts empty", err)
		index = nil
	} else if err != nil {
		return nil, err
	}
	idx, err := newSearchIndex(index)
	if err != nil {
		return nil, fmt.Errorf("build search index: %w", err)
	}
	s.search = idx
	s.searchStamp = stamp
	return idx, nil
}

// IndexedIDs returns the set of page ids currently in the index.
func (s *Store) IndexedIDs(ctx context.Context) (map[string]struct{}, error) {
	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(index))
	for _, m := range index {
		ids[m.PageID] = struct{}{}
	}
	return ids, nil
}

func (s *Store) indexPath() string { return filepath.Join(s.dir, IndexFile) }

func (s *Store) stampIndex() indexStamp {
	fi, err := os.Stat(s.indexPath())
	if err != nil {
		return indexStamp{}
	}
	return indexStamp{modNano: fi.ModTime().UnixNano(), size: fi.Size()}
}

func (s *Store) loadIndex() ([]Metadata, error) {
	b, err := os.ReadFile(s.indexPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	var index []Metadata
	if err := json.Unmarshal(b, &index); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexCorrupt, s.indexPath(), err)
	}
	return index, nil
}

// quarantineIndex moves a corrupt index aside so the next write starts fresh.
func (s *Store) quarantineIndex(now time.Time) error {
	src := s.indexPath()
	dst := src + ".corrupt-" + strconv.FormatInt(now.Unix(), 10)
	if err := os.Rename(src, dst); err != nil {
		return &PersistenceError{Op: "quarantine index", Path: src, Err: err}
	}
	s.logger.Printf("warn: corrupt index moved to %s; starting a fresh index", filepath.Base(dst))
	return nil
}

// writeIndex replaces index.json through a temp file and rename.
func (s *Store) writeIndex(index []Metadata) error {
	path := s.indexPath()
	body, err := encodeJSON(index)
	if err != nil {
		return &PersistenceError{Op: "encode index", Path: path, Err: err}
	}
	tmp, err := os.CreateTemp(s.dir, ".index-*.tmp")
	if err != nil {
		return &PersistenceError{Op: "write index", Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return &PersistenceError{Op: "write index", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &PersistenceError{Op: "sync index", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistenceError{Op: "write index", Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &PersistenceError{Op: "replace index", Path: path, Err: err}
	}
	return nil
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPageID returns the candidate id {YYYY-MM-DD}_{site type}_{session prefix}.
func BuildPageID(now time.Time, siteType, sessionID string) string {
	short := []rune(sessionID)
	if len(short) > 6 {
		short = short[:6]
	}
	return fmt.Sprintf("%s_%s_%s", now.UTC().Format("2006-01-02"), sanitize(strings.ToLower(siteType)), sanitize(string(short)))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			return r
		}
		return -1
	}, s)
}

// uniqueID returns candidate, or candidate_N, such that neither the index
// nor the directory already holds that id. Artifacts left behind by a
// quarantined index or a crash count as taken.
func (s *Store) uniqueID(candidate string, index []Metadata) string {
	taken := make(map[string]struct{}, len(index))
	for _, m := range index {
		taken[m.PageID] = struct{}{}
	}
	free := func(id string) bool {
		if _, ok := taken[id]; ok {
			return false
		}
		return !s.artifactExists(id)
	}
	if free(candidate) {
		return candidate
	}
	for n := 2; ; n++ {
		id := candidate + "_" + strconv.Itoa(n)
		if free(id) {
			return id
		}
	}
}

func (s *Store) artifactExists(id string) bool {
	for _, ext := range []string{".html", ".json"} {
		if _, err := os.Lstat(filepath.Join(s.dir, id+ext)); err == nil || !errors.Is(err, fs.ErrNotExist) {
			return true
		}
	}
	return false
}

var pageIDPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_[\p{L}\p{N}-]*_[\p{L}\p{N}-]*(_\d+)?$`)

// IsPageID reports whether name has the shape BuildPageID and Save produce,
// as opposed to an uploaded asset sharing the directory.
func IsPageID(name string) bool {
	return pageIDPattern.MatchString(name)
}

// ValidPageID reports whether id can name an artifact inside the uploads
// directory.
func ValidPageID(id string) bool {
	if id == "" || len(id) > 200 {
		return false
	}
	for _, r := range id {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
			return false
		}
	}
	return true
}
