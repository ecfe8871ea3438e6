// Package history enumerates previously generated output files (spec
// §4.G): a walk of flat files plus one level of YYYY-MM-DD
// subdirectories, joined, best-effort, against a sidecar metadata store.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/amd-agi/genforge/internal/apierrors"
	"github.com/amd-agi/genforge/internal/sidecar"
)

// Entry is one row of the history listing (spec §3 HistoryEntry).
type Entry struct {
	Filename            string          `json:"filename"`
	RelativePath        string          `json:"relativePath"`
	CreatedEpochSeconds int64           `json:"createdEpochSeconds"`
	Metadata            json.RawMessage `json:"metadata"`
}

// Page is the paginated response shape documented in spec §6.
type Page struct {
	Items      []Entry `json:"items"`
	Total      int     `json:"total"`
	Limit      int     `json:"limit"`
	Offset     int     `json:"offset"`
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
}

// timestampPrefix matches a YYYY-MM-DD_HH-MM-SS filename prefix.
var timestampPrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})`)

// dateDir matches a one-level YYYY-MM-DD subdirectory name.
var dateDir = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Reader walks outputsDir and joins entries against an optional sidecar
// store.
type Reader struct {
	outputsDir string
	store      *sidecar.Store
}

// New constructs a Reader. store may be nil, in which case every entry's
// Metadata is null.
func New(outputsDir string, store *sidecar.Store) *Reader {
	return &Reader{outputsDir: outputsDir, store: store}
}

// List returns at most max(1, limit) entries starting at offset, newest
// first by CreatedEpochSeconds, plus the total count across the whole
// tree (spec invariant 10).
func (r *Reader) List(limit, offset int) (Page, error) {
	if limit < 1 {
		limit = 1
	}
	if offset < 0 {
		offset = 0
	}

	all, err := r.scan()
	if err != nil {
		return Page{}, apierrors.New().
			WithCode(apierrors.InternalError).
			WithMessagef("scan outputs directory %q", r.outputsDir).
			WithError(err)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedEpochSeconds > all[j].CreatedEpochSeconds
	})

	total := len(all)
	end := offset + limit
	if offset > total {
		offset = total
	}
	if end > total {
		end = total
	}

	page := make([]Entry, 0, end-offset)
	page = append(page, all[offset:end]...)

	totalPages := (total + limit - 1) / limit
	if totalPages == 0 {
		totalPages = 1
	}

	return Page{
		Items:      page,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		Page:       offset/limit + 1,
		TotalPages: totalPages,
	}, nil
}

func (r *Reader) scan() ([]Entry, error) {
	top, err := os.ReadDir(r.outputsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, e := range top {
		if e.IsDir() {
			if dateDir.MatchString(e.Name()) {
				sub, err := r.scanDir(filepath.Join(r.outputsDir, e.Name()), e.Name())
				if err != nil {
					continue
				}
				entries = append(entries, sub...)
			}
			continue
		}
		entry, err := r.buildEntry(filepath.Join(r.outputsDir, e.Name()), e.Name(), e.Name())
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *Reader) scanDir(dir, relativePrefix string) ([]Entry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, e := range items {
		if e.IsDir() {
			continue
		}
		relPath := filepath.Join(relativePrefix, e.Name())
		entry, err := r.buildEntry(filepath.Join(dir, e.Name()), e.Name(), relPath)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *Reader) buildEntry(fullPath, filename, relativePath string) (Entry, error) {
	info, err := os.Stat(fullPath)
	if err != nil {
		return Entry{}, err
	}

	created := parseCreatedEpoch(filename, info.ModTime())

	var metadata json.RawMessage
	if raw, ok := r.store.Get(filename); ok {
		metadata = raw
	}

	return Entry{
		Filename:            filename,
		RelativePath:        relativePath,
		CreatedEpochSeconds: created,
		Metadata:            metadata,
	}, nil
}

func parseCreatedEpoch(filename string, modTime time.Time) int64 {
	m := timestampPrefix.FindStringSubmatch(filename)
	if m == nil {
		return modTime.Unix()
	}
	t, err := time.ParseInLocation("2006-01-02_15-04-05", m[1], time.Local)
	if err != nil {
		return modTime.Unix()
	}
	return t.Unix()
}
