package narrative

import (
	"narrative-server/internal/models"

	"go.uber.org/zap"
)

// SpecialCondition is an arbitrary named gate on arc availability, evaluated
// by the dispatcher in conditionMet. Unknown kinds evaluate as satisfied
// (fail-open, preserved from the authored content) and are logged.
type SpecialCondition struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Value  int    `json:"value,omitempty"`
}

// ArcRequirements gate every chapter of an arc.
type ArcRequirements struct {
	// Thresholds are numeric progress minima checked against player
	// attributes, e.g. {"academic_progress": 30}.
	Thresholds map[string]int `json:"thresholds,omitempty"`
	// Prerequisites are chapter identifiers that must all be completed.
	Prerequisites []string `json:"prerequisites,omitempty"`
	// Special are named gates handled by the condition dispatcher.
	Special []SpecialCondition `json:"special_conditions,omitempty"`
}

// Arc is a named ordered grouping of chapters sharing gating rules.
type Arc struct {
	Name string
	// PhaseOrder is the arc's phase-ordering table; a chapter whose phase
	// sorts after the player's phase is not yet available.
	PhaseOrder   []string
	Requirements ArcRequirements
	Chapters     []models.ChapterID
}

// phaseIndex returns the position of phase in the arc's ordering table, or -1
// when the phase is not gated by this arc.
func (a *Arc) phaseIndex(phase string) int {
	for i, p := range a.PhaseOrder {
		if p == phase {
			return i
		}
	}
	return -1
}

// available reports whether ch is currently open to the player under this
// arc's gating rules.
func (a *Arc) available(ch *models.Chapter, p *models.Player, logger *zap.Logger) bool {
	if chIdx := a.phaseIndex(ch.Phase); chIdx >= 0 {
		playerIdx := a.phaseIndex(p.Phase)
		if playerIdx < chIdx {
			return false
		}
	}
	for name, min := range a.Requirements.Thresholds {
		if p.Attributes[name] < min {
			return false
		}
	}
	for _, raw := range a.Requirements.Prerequisites {
		id, err := models.ParseChapterID(raw)
		if err != nil {
			logger.Warn("Arc prerequisite has malformed chapter id",
				zap.String("arc", a.Name), zap.String("prerequisite", raw))
			continue
		}
		if !models.ContainsChapterID(p.Story.CompletedChapters, id) {
			return false
		}
	}
	for _, cond := range a.Requirements.Special {
		if !conditionMet(cond, p, a.Name, logger) {
			return false
		}
	}
	return true
}

// conditionMet dispatches a special condition against the player record.
func conditionMet(cond SpecialCondition, p *models.Player, arcName string, logger *zap.Logger) bool {
	switch cond.Kind {
	case "companion":
		return containsString(p.Companions, cond.Target)
	case "min_relationship":
		return p.Story.CharacterRelationships[cond.Target] >= cond.Value
	case "club_member":
		return p.Club == cond.Target
	case "achievement":
		return containsString(p.Achievements, cond.Target)
	case "secret":
		return containsString(p.Story.DiscoveredSecrets, cond.Target)
	case "special_item":
		return containsString(p.Story.SpecialItems, cond.Target)
	default:
		logger.Warn("Unknown special condition kind evaluated as satisfied",
			zap.String("arc", arcName), zap.String("kind", cond.Kind))
		return true
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ArcManager aggregates all registered arcs and answers which chapters are
// open to a player. It performs no mutation.
type ArcManager struct {
	registry *Registry
	logger   *zap.Logger
}

// NewArcManager creates an arc manager over the registry's arcs.
func NewArcManager(registry *Registry, logger *zap.Logger) *ArcManager {
	return &ArcManager{registry: registry, logger: logger.Named("ArcManager")}
}

// AvailableChapters filters every registered chapter through its owning arc's
// availability predicate, in arc registration order then arc chapter order.
// Completed and arc-blocked chapters are excluded.
func (m *ArcManager) AvailableChapters(p *models.Player) []models.ChapterID {
	p.Normalize()
	available := []models.ChapterID{}
	for _, arc := range m.registry.Arcs() {
		for _, id := range arc.Chapters {
			ch, ok := m.registry.Chapter(id)
			if !ok {
				m.logger.Warn("Arc references chapter with no backing content",
					zap.String("arc", arc.Name), zap.String("chapterID", id.String()))
				continue
			}
			if models.ContainsChapterID(p.Story.CompletedChapters, id) {
				continue
			}
			if models.ContainsChapterID(p.Story.BlockedChapterArcs, id) {
				continue
			}
			if arc.available(ch, p, m.logger) {
				available = append(available, id)
			}
		}
	}
	return available
}
