package canvassync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"drawgen/internal/domain"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// LibraryExt is the file extension of shape library files.
const LibraryExt = ".excalidrawlib"

// Libraries loads shape libraries from a directory once and keeps them until
// Reset. Element ids are unique across all loaded libraries.
type Libraries struct {
	dir string

	mu     sync.Mutex
	loaded bool
	libs   []domain.Library
}

// NewLibraries creates an unloaded library set for dir. An empty dir yields
// an empty set.
func NewLibraries(dir string) *Libraries {
	return &Libraries{dir: dir}
}

// Dir returns the directory libraries are loaded from.
func (l *Libraries) Dir() string {
	return l.dir
}

// Loaded reports whether Load has completed since the last Reset.
func (l *Libraries) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Reset forgets loaded libraries; the next Load reads the directory again.
func (l *Libraries) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = false
	l.libs = nil
}

// Load reads every library file in the directory on first use and returns
// the cached set afterwards. Unreadable files are skipped with a warning.
func (l *Libraries) Load() ([]domain.Library, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return l.libs, nil
	}
	if l.dir == "" {
		l.loaded = true
		return nil, nil
	}

	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		l.loaded = true
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read library dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), LibraryExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	seen := make(map[string]bool)
	var libs []domain.Library
	for _, name := range names {
		lib, err := readLibrary(filepath.Join(l.dir, name))
		if err != nil {
			log.WithError(err).WithField("file", name).Warn("canvassync: skip library")
			continue
		}
		for i := range lib.Items {
			lib.Items[i].Elements = dedupeIDs(lib.Items[i].Elements, seen)
		}
		libs = append(libs, lib)
	}

	l.libs = libs
	l.loaded = true
	log.WithField("count", len(libs)).Info("canvassync: libraries loaded")
	return libs, nil
}

// Item looks up one item by library name and item id.
func (l *Libraries) Item(libraryName, itemID string) (domain.LibraryItem, error) {
	libs, err := l.Load()
	if err != nil {
		return domain.LibraryItem{}, err
	}
	for _, lib := range libs {
		if lib.Name != libraryName {
			continue
		}
		for _, item := range lib.Items {
			if item.ID == itemID {
				return item, nil
			}
		}
		return domain.LibraryItem{}, fmt.Errorf("library %q has no item %q", libraryName, itemID)
	}
	return domain.LibraryItem{}, fmt.Errorf("library %q not found", libraryName)
}

// Categorize maps a library file name to its category by keyword.
func Categorize(fileName string) domain.LibraryCategory {
	name := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(fileName, LibraryExt)))
	switch {
	case containsAny(name, "architecture", "system-design"):
		return domain.CategoryArchitecture
	case containsAny(name, "data-science", "data-viz"),
		strings.HasPrefix(name, "data") && !strings.Contains(name, "database"):
		return domain.CategoryDataScience
	case containsAny(name, "dev_ops", "dev-ops", "devops", "cloud"),
		strings.Contains(name, "dev") && strings.Contains(name, "ops"):
		return domain.CategoryDevOps
	case containsAny(name, "logo", "hearts", "stick-figure", "stickfigure"):
		return domain.CategoryDesign
	case strings.Contains(name, "circuit"):
		return domain.CategoryCircuits
	}
	return domain.CategoryOther
}

// readLibrary parses both the current ("libraryItems") and the legacy
// ("library": [[elements]]) file layouts.
func readLibrary(path string) (domain.Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Library{}, err
	}
	if !gjson.ValidBytes(data) {
		return domain.Library{}, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(data)

	base := filepath.Base(path)
	lib := domain.Library{
		Name:     strings.TrimSuffix(base, LibraryExt),
		File:     base,
		Category: Categorize(base),
	}

	if items := root.Get("libraryItems"); items.IsArray() {
		for i, it := range items.Array() {
			item, err := decodeItem(it.Get("elements").Raw)
			if err != nil {
				return domain.Library{}, fmt.Errorf("item %d: %w", i, err)
			}
			item.ID = it.Get("id").String()
			item.Name = it.Get("name").String()
			if item.ID == "" {
				item.ID = fmt.Sprintf("item-%d", i)
			}
			lib.Items = append(lib.Items, item)
		}
		return lib, nil
	}

	for i, group := range root.Get("library").Array() {
		item, err := decodeItem(group.Raw)
		if err != nil {
			return domain.Library{}, fmt.Errorf("item %d: %w", i, err)
		}
		item.ID = fmt.Sprintf("item-%d", i)
		lib.Items = append(lib.Items, item)
	}
	return lib, nil
}

func decodeItem(raw string) (domain.LibraryItem, error) {
	var item domain.LibraryItem
	if raw == "" {
		return item, nil
	}
	if err := json.Unmarshal([]byte(raw), &item.Elements); err != nil {
		return item, err
	}
	return item, nil
}

// dedupeIDs gives fresh ids to elements already present in seen, rewriting
// references inside the group.
func dedupeIDs(elements []domain.EditorElement, seen map[string]bool) []domain.EditorElement {
	renamed := make(map[string]string)
	for i := range elements {
		id := elements[i].ID
		if id == "" || seen[id] {
			fresh := uuid.NewString()
			renamed[id] = fresh
			elements[i].ID = fresh
		}
		seen[elements[i].ID] = true
	}
	for i := range elements {
		rewriteRefs(&elements[i], renamed)
	}
	return elements
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
