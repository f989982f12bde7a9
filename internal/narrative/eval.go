package narrative

import (
	"fmt"

	"narrative-server/internal/models"

	"go.uber.org/zap"
)

// evalCondition dispatches a single branch predicate against player state.
// The switch is exhaustive over the closed condition AST; the only permissive
// path is ConditionUnknown, which preserves the authored content's historical
// fail-open behavior and is logged so typos surface in operation.
func (e *Engine) evalCondition(cond models.Condition, ch *models.Chapter, p *models.Player) bool {
	switch cond.Kind {
	case models.ConditionChoiceAt:
		v, ok := p.Story.ChoiceAt(ch.ID, choiceKeyForDialogue(cond.DialogueIndex))
		return ok && v == cond.Value
	case models.ConditionAttributeAtLeast:
		return p.Attributes[cond.Name] >= cond.Threshold
	case models.ConditionAffinityAtLeast:
		return p.Story.CharacterRelationships[cond.Name] >= cond.Threshold
	case models.ConditionUnknown:
		e.logger.Warn("Unknown branch condition evaluated as satisfied",
			zap.String("key", cond.RawKey),
			zap.String("chapterID", ch.ID.String()))
		return true
	}
	return false
}

// branchSatisfied reports whether every condition of the branch holds.
func (e *Engine) branchSatisfied(b models.Branch, ch *models.Chapter, p *models.Player) bool {
	for _, cond := range b.Conditions {
		if !e.evalCondition(cond, ch, p) {
			return false
		}
	}
	return true
}

// choiceKeyForDialogue is the story_choices key under which a pick at the
// given dialogue index is recorded.
func choiceKeyForDialogue(index int) string {
	return fmt.Sprintf("choice_%d", index)
}

// choiceKeyForScene is the story_choices key for a pick inside a scene.
func choiceKeyForScene(sceneID string) string {
	return fmt.Sprintf("scene_%s", sceneID)
}
