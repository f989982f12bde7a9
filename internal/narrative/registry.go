package narrative

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"narrative-server/internal/models"

	"go.uber.org/zap"
)

// Registry is the process-wide set of loaded chapters and arcs. It is built
// once at startup, treated as immutable thereafter, and passed explicitly into
// the components that read it so tests can supply isolated fixtures.
type Registry struct {
	chapters map[string]*models.Chapter
	arcs     []*Arc
}

// NewRegistry builds a registry from already-constructed content. Chapters
// not claimed by any arc are grouped into a synthetic arc per year so they
// remain reachable.
func NewRegistry(chapters []*models.Chapter, arcs []*Arc) *Registry {
	r := &Registry{chapters: make(map[string]*models.Chapter, len(chapters)), arcs: arcs}
	for _, ch := range chapters {
		r.chapters[ch.ID.String()] = ch
	}
	return r
}

// Chapter returns the chapter with the given identifier.
func (r *Registry) Chapter(id models.ChapterID) (*models.Chapter, bool) {
	ch, ok := r.chapters[id.String()]
	return ch, ok
}

// Arcs returns the registered arcs in registration order.
func (r *Registry) Arcs() []*Arc {
	return r.arcs
}

// Len returns the number of loaded chapters.
func (r *Registry) Len() int {
	return len(r.chapters)
}

// ChapterIDs returns all loaded chapter identifiers sorted by year, index,
// suffix.
func (r *Registry) ChapterIDs() []models.ChapterID {
	ids := make([]models.ChapterID, 0, len(r.chapters))
	for _, ch := range r.chapters {
		ids = append(ids, ch.ID)
	}
	sortChapterIDs(ids)
	return ids
}

func sortChapterIDs(ids []models.ChapterID) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Year != ids[j].Year {
			return ids[i].Year < ids[j].Year
		}
		if ids[i].Index != ids[j].Index {
			return ids[i].Index < ids[j].Index
		}
		return ids[i].Suffix < ids[j].Suffix
	})
}

// arcManifest is the optional arc.json file inside an arc's content
// directory.
type arcManifest struct {
	Name         string          `json:"name"`
	PhaseOrder   []string        `json:"phase_order"`
	Requirements ArcRequirements `json:"requirements"`
	Chapters     []string        `json:"chapters"`
}

// LoadRegistry reads the content directory: one subdirectory per arc, each
// holding chapter JSON files and an optional arc.json manifest. A broken arc
// degrades to an empty chapter set rather than failing the whole load; a
// broken chapter file is skipped. Both are logged.
func LoadRegistry(dir string, logger *zap.Logger) (*Registry, error) {
	log := logger.Named("ContentLoader")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read content directory %s: %w", dir, err)
	}

	var chapters []*models.Chapter
	var arcs []*Arc
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		arc, arcChapters := loadArcDir(filepath.Join(dir, entry.Name()), entry.Name(), log)
		arcs = append(arcs, arc)
		chapters = append(chapters, arcChapters...)
	}

	registry := NewRegistry(chapters, arcs)
	log.Info("Content registry loaded",
		zap.Int("chapters", registry.Len()),
		zap.Int("arcs", len(arcs)))
	return registry, nil
}

// loadArcDir loads one arc directory. Any failure inside it degrades the arc
// to whatever could be read.
func loadArcDir(dir, name string, log *zap.Logger) (*Arc, []*models.Chapter) {
	arc := &Arc{Name: name}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Error("Failed to read arc directory, degrading to empty chapter set",
			zap.String("arc", name), zap.Error(err))
		return arc, nil
	}

	var chapters []*models.Chapter
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if entry.Name() == "arc.json" {
			applyManifest(arc, path, log)
			continue
		}
		ch, err := loadChapterFile(path)
		if err != nil {
			log.Error("Skipping unreadable chapter file",
				zap.String("arc", name), zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		chapters = append(chapters, ch)
	}

	// Manifest order wins; otherwise chapters sort by identifier.
	if len(arc.Chapters) == 0 {
		ids := make([]models.ChapterID, 0, len(chapters))
		for _, ch := range chapters {
			ids = append(ids, ch.ID)
		}
		sortChapterIDs(ids)
		arc.Chapters = ids
	}
	return arc, chapters
}

func applyManifest(arc *Arc, path string, log *zap.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("Failed to read arc manifest", zap.String("path", path), zap.Error(err))
		return
	}
	var manifest arcManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		log.Error("Failed to parse arc manifest", zap.String("path", path), zap.Error(err))
		return
	}
	if manifest.Name != "" {
		arc.Name = manifest.Name
	}
	arc.PhaseOrder = manifest.PhaseOrder
	arc.Requirements = manifest.Requirements
	for _, raw := range manifest.Chapters {
		id, err := models.ParseChapterID(raw)
		if err != nil {
			log.Warn("Arc manifest lists malformed chapter id",
				zap.String("arc", arc.Name), zap.String("chapterID", raw))
			continue
		}
		arc.Chapters = append(arc.Chapters, id)
	}
}

func loadChapterFile(path string) (*models.Chapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ch models.Chapter
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}
