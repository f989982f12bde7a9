package validator

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

// Report is the structured result of a validation run. Findings are collected,
// never raised: validation is advisory and runs offline against content.
type Report struct {
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	DeadEnds      []string `json:"dead_ends"`
	MissingAssets []string `json:"missing_assets"`
}

// OK reports whether the run produced no errors.
func (r *Report) OK() bool {
	return len(r.Errors) == 0
}

func (r *Report) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// AssetResolver is the asset-resolution collaborator consulted when checking
// referenced images.
type AssetResolver interface {
	Resolve(kind, id string) (string, error)
}

// Validator runs the static-analysis passes over the content graph. It never
// mutates content and never inspects per-player state.
type Validator struct {
	assets AssetResolver
	logger *zap.Logger
}

// New creates a validator. assets may be nil, in which case asset references
// are not checked.
func New(assets AssetResolver, logger *zap.Logger) *Validator {
	return &Validator{assets: assets, logger: logger.Named("StoryValidator")}
}

// chapterFile pairs a raw decoded document with its source path.
type chapterFile struct {
	path string
	doc  map[string]any
}

// ValidateContent runs both passes over the chapter content directory and the
// arc index file. indexPath may be empty to skip the index checks.
func (v *Validator) ValidateContent(contentDir, indexPath string) *Report {
	report := &Report{
		Errors:        []string{},
		Warnings:      []string{},
		DeadEnds:      []string{},
		MissingAssets: []string{},
	}

	files := v.collectChapterFiles(contentDir, report)
	byID := make(map[string]chapterFile, len(files))
	for _, f := range files {
		v.validateLocal(f, report)
		if id, ok := f.doc["id"].(string); ok && id != "" {
			byID[id] = f
		}
	}

	for _, f := range files {
		v.checkDeadEnd(f, report)
		v.checkAssets(f, report)
	}

	if indexPath != "" {
		v.validateIndex(indexPath, byID, report)
	}

	v.logger.Info("Validation finished",
		zap.Int("errors", len(report.Errors)),
		zap.Int("warnings", len(report.Warnings)),
		zap.Int("deadEnds", len(report.DeadEnds)),
		zap.Int("missingAssets", len(report.MissingAssets)))
	return report
}

// collectChapterFiles walks the content directory and decodes every chapter
// document. Unreadable files become errors in the report, not failures.
func (v *Validator) collectChapterFiles(contentDir string, report *Report) []chapterFile {
	var files []chapterFile
	err := filepath.WalkDir(contentDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			report.errorf("%s: %v", path, err)
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") || d.Name() == "arc.json" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			report.errorf("%s: %v", path, err)
			return nil
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			report.errorf("%s: invalid JSON: %v", path, err)
			return nil
		}
		files = append(files, chapterFile{path: path, doc: doc})
		return nil
	})
	if err != nil {
		report.errorf("walk %s: %v", contentDir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files
}

// validateLocal checks a single chapter document in isolation.
func (v *Validator) validateLocal(f chapterFile, report *Report) {
	name := filepath.Base(f.path)

	id, _ := f.doc["id"].(string)
	switch {
	case id == "":
		report.errorf("%s: missing required field %q", name, "id")
	case !models.ValidChapterIDString(id):
		report.errorf("%s: malformed chapter id %q", name, id)
	}

	for _, field := range []string{"title", "description"} {
		if s, _ := f.doc[field].(string); s == "" {
			report.errorf("%s: missing required field %q", name, field)
		}
	}

	choices := asSlice(f.doc["choices"])
	dialogues := asSlice(f.doc["dialogues"])
	if len(choices) == 0 && len(dialogues) == 0 && len(asSlice(f.doc["scenes"])) == 0 {
		report.errorf("%s: chapter has neither choices nor dialogues", name)
	}

	for i, raw := range dialogues {
		d, ok := raw.(map[string]any)
		if !ok {
			report.errorf("%s: dialogue %d is not an object", name, i)
			continue
		}
		if s, _ := d["npc"].(string); s == "" {
			report.errorf("%s: dialogue %d missing %q", name, i, "npc")
		}
		if s, _ := d["text"].(string); s == "" {
			report.errorf("%s: dialogue %d missing %q", name, i, "text")
		}
		for j, c := range asSlice(d["choices"]) {
			v.validateChoice(c, fmt.Sprintf("%s: dialogue %d choice %d", name, i, j), report)
		}
	}
	for i, c := range choices {
		v.validateChoice(c, fmt.Sprintf("%s: choice %d", name, i), report)
	}
	for i, raw := range asSlice(f.doc["scenes"]) {
		s, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for j, c := range asSlice(s["choices"]) {
			v.validateChoice(c, fmt.Sprintf("%s: scene %d choice %d", name, i, j), report)
		}
	}

	for i, raw := range asSlice(f.doc["branches"]) {
		b, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		conds, _ := b["conditions"].(map[string]any)
		for key := range conds {
			if !knownConditionKey(key) {
				report.warnf("%s: branch %d has unknown condition key %q (evaluates fail-open)", name, i, key)
			}
		}
	}
}

// validateChoice enforces that a choice carries text and at least one piece of
// navigation metadata.
func (v *Validator) validateChoice(raw any, where string, report *Report) {
	c, ok := raw.(map[string]any)
	if !ok {
		report.errorf("%s: not an object", where)
		return
	}
	if s, _ := c["text"].(string); s == "" {
		report.errorf("%s: missing %q", where, "text")
	}
	if c["next_chapter"] == nil && c["next_dialogue"] == nil && c["next_scene"] == nil && c["metadata"] == nil {
		report.errorf("%s: no next_chapter, next_dialogue, next_scene or metadata", where)
	}
}

// checkDeadEnd flags chapters with no outgoing transition of any kind.
func (v *Validator) checkDeadEnd(f chapterFile, report *Report) {
	if s, _ := f.doc["next_chapter"].(string); s != "" {
		return
	}
	if m, ok := f.doc["conditional_next_chapter"].(map[string]any); ok && len(m) > 0 {
		return
	}
	for _, raw := range asSlice(f.doc["branches"]) {
		if b, ok := raw.(map[string]any); ok {
			if s, _ := b["next_chapter"].(string); s != "" {
				return
			}
		}
	}
	if anyChoiceNavigatesOut(asSlice(f.doc["choices"])) {
		return
	}
	for _, raw := range asSlice(f.doc["dialogues"]) {
		if d, ok := raw.(map[string]any); ok && anyChoiceNavigatesOut(asSlice(d["choices"])) {
			return
		}
	}
	for _, raw := range asSlice(f.doc["scenes"]) {
		if s, ok := raw.(map[string]any); ok && anyChoiceNavigatesOut(asSlice(s["choices"])) {
			return
		}
	}
	id, _ := f.doc["id"].(string)
	if id == "" {
		id = filepath.Base(f.path)
	}
	report.DeadEnds = append(report.DeadEnds, id)
}

func anyChoiceNavigatesOut(choices []any) bool {
	for _, raw := range choices {
		c, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if s, _ := c["next_chapter"].(string); s != "" {
			return true
		}
		if s, _ := c["next_scene"].(string); s != "" {
			return true
		}
	}
	return false
}

// checkAssets resolves every referenced image id through the asset
// collaborator.
func (v *Validator) checkAssets(f chapterFile, report *Report) {
	if v.assets == nil {
		return
	}
	name := filepath.Base(f.path)
	if bg, _ := f.doc["background"].(string); bg != "" {
		if _, err := v.assets.Resolve("background", bg); err != nil {
			report.MissingAssets = append(report.MissingAssets, fmt.Sprintf("%s: background %q", name, bg))
		}
	}
	seen := map[string]bool{}
	walkDialogues(f.doc, func(d map[string]any) {
		npc, _ := d["npc"].(string)
		if npc == "" || npc == "narrator" || seen[npc] {
			return
		}
		seen[npc] = true
		if _, err := v.assets.Resolve("character", npc); err != nil {
			report.MissingAssets = append(report.MissingAssets, fmt.Sprintf("%s: character %q", name, npc))
		}
	})
}

func walkDialogues(doc map[string]any, fn func(map[string]any)) {
	for _, raw := range asSlice(doc["dialogues"]) {
		if d, ok := raw.(map[string]any); ok {
			fn(d)
		}
	}
	for _, raw := range asSlice(doc["scenes"]) {
		s, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for _, dr := range asSlice(s["dialogues"]) {
			if d, ok := dr.(map[string]any); ok {
				fn(d)
			}
		}
	}
}

// arcIndexDoc is the authored arc index file consumed by the global pass.
type arcIndexDoc struct {
	NarrativeStructure map[string]map[string]struct {
		Chapters     []string       `json:"chapters"`
		Requirements map[string]any `json:"requirements"`
	} `json:"narrative_structure"`
	RomanceRoutes map[string][]string `json:"romance_routes"`
	ClubArcs      map[string][]string `json:"club_arcs"`
}

// validateIndex checks that every chapter the arc index references resolves
// to a loaded chapter document.
func (v *Validator) validateIndex(indexPath string, byID map[string]chapterFile, report *Report) {
	data, err := os.ReadFile(indexPath)
	if err != nil {
		report.errorf("arc index: %v", err)
		return
	}
	var index arcIndexDoc
	if err := json.Unmarshal(data, &index); err != nil {
		report.errorf("arc index: invalid JSON: %v", err)
		return
	}

	check := func(origin, id string) {
		if !models.ValidChapterIDString(id) {
			report.errorf("arc index: %s references malformed chapter id %q", origin, id)
			return
		}
		if _, ok := byID[id]; !ok {
			report.errorf("arc index: %s references missing chapter %q", origin, id)
		}
	}

	for year, arcs := range index.NarrativeStructure {
		for arcName, arc := range arcs {
			for _, id := range arc.Chapters {
				check(fmt.Sprintf("year %s arc %q", year, arcName), id)
			}
		}
	}
	for route, ids := range index.RomanceRoutes {
		for _, id := range ids {
			check(fmt.Sprintf("romance route %q", route), id)
		}
	}
	for club, ids := range index.ClubArcs {
		for _, id := range ids {
			check(fmt.Sprintf("club arc %q", club), id)
		}
	}
}

func knownConditionKey(key string) bool {
	if strings.HasPrefix(key, "choice_") || strings.HasPrefix(key, "attribute_") || strings.HasPrefix(key, "affinity_") {
		return true
	}
	return false
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}
