package service

import (
	"context"
	"errors"
	"fmt"

	"narrative-server/internal/messaging"
	"narrative-server/internal/models"
	"narrative-server/internal/narrative"
	"narrative-server/internal/storage"

	"go.uber.org/zap"
)

// maxSaveAttempts bounds the read-modify-write retry loop when another writer
// wins the version race for the same player.
const maxSaveAttempts = 3

// ProgressManager is the sole mutator of story progress. Every operation
// loads the full player record, applies the chapter state machine to it in
// memory and writes the whole record back through the versioned store.
type ProgressManager struct {
	store    storage.ProgressStore
	registry *narrative.Registry
	arcs     *narrative.ArcManager
	engine   *narrative.Engine
	events   messaging.EventPublisher
	logger   *zap.Logger
}

// NewProgressManager wires the manager's collaborators.
func NewProgressManager(
	store storage.ProgressStore,
	registry *narrative.Registry,
	events messaging.EventPublisher,
	logger *zap.Logger,
) *ProgressManager {
	log := logger.Named("ProgressManager")
	return &ProgressManager{
		store:    store,
		registry: registry,
		arcs:     narrative.NewArcManager(registry, logger),
		engine:   narrative.NewEngine(logger),
		events:   events,
		logger:   log,
	}
}

// InitializeStoryProgress returns the player record, creating it with default
// values on first contact with the engine.
func (m *ProgressManager) InitializeStoryProgress(ctx context.Context, playerID string) (*models.Player, error) {
	p, _, err := m.loadOrCreate(ctx, playerID)
	return p, err
}

// GetProgress returns the player record without mutating it.
func (m *ProgressManager) GetProgress(ctx context.Context, playerID string) (*models.Player, error) {
	p, _, err := m.store.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}
	p.Normalize()
	return p, nil
}

// GetCurrentChapter returns the most recently started chapter identifier.
func (m *ProgressManager) GetCurrentChapter(ctx context.Context, playerID string) (models.ChapterID, error) {
	p, err := m.GetProgress(ctx, playerID)
	if err != nil {
		return models.ChapterID{}, err
	}
	if p.Story.CurrentChapter.IsZero() {
		return models.ChapterID{}, models.ErrNoCurrentChapter
	}
	return p.Story.CurrentChapter, nil
}

// GetCompletedChapters returns the append-only completed list.
func (m *ProgressManager) GetCompletedChapters(ctx context.Context, playerID string) ([]models.ChapterID, error) {
	p, err := m.GetProgress(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return p.Story.CompletedChapters, nil
}

// AvailableChapters answers which chapters are open to the player right now.
func (m *ProgressManager) AvailableChapters(ctx context.Context, playerID string) ([]models.ChapterID, error) {
	p, err := m.GetProgress(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return m.arcs.AvailableChapters(p), nil
}

// AdvanceStory moves the player forward: it resumes the in-progress chapter,
// or resolves and starts the next one. When no rule produces a next chapter
// the arc is exhausted and the payload says so instead of failing.
func (m *ProgressManager) AdvanceStory(ctx context.Context, playerID string) (*models.StoryUpdate, error) {
	var entered bool
	update, err := m.mutate(ctx, playerID, func(p *models.Player) (*models.StoryUpdate, error) {
		entered = false
		s := p.Story
		if !s.CurrentChapter.IsZero() && !models.ContainsChapterID(s.CompletedChapters, s.CurrentChapter) {
			ch, ok := m.registry.Chapter(s.CurrentChapter)
			if !ok {
				m.logger.Warn("Current chapter has no backing content, treating arc as exhausted",
					zap.String("playerID", playerID),
					zap.String("chapterID", s.CurrentChapter.String()))
				return &models.StoryUpdate{Player: p, EndOfStory: true}, nil
			}
			return m.engine.Snapshot(ch, p), nil
		}
		entered = true
		return m.enterNextChapter(p, playerID)
	})
	if err != nil {
		return nil, err
	}
	// A resume renders the existing position; only actually entering a chapter
	// is a milestone.
	if entered && update.Chapter != nil && !update.EndOfStory {
		m.publish(ctx, messaging.EventChapterStarted, playerID, update)
	}
	return update, nil
}

// ChooseOption processes the player's pick against the active choice set of
// the current chapter. An invalid choice rejects the call without persisting
// anything, so the caller may retry.
func (m *ProgressManager) ChooseOption(ctx context.Context, playerID string, index int) (*models.StoryUpdate, error) {
	update, err := m.mutate(ctx, playerID, func(p *models.Player) (*models.StoryUpdate, error) {
		ch, err := m.currentChapter(p)
		if err != nil {
			return nil, err
		}
		update, err := m.engine.ProcessChoice(ch, p, index)
		if err != nil {
			return nil, err
		}
		if update.Transition != nil {
			// The choice itself names the next chapter: close out the current
			// one and enter the target.
			m.engine.Complete(ch, p)
			next, ok := m.registry.Chapter(*update.Transition)
			if !ok {
				m.logger.Warn("Choice transition target has no backing content",
					zap.String("playerID", playerID),
					zap.String("chapterID", update.Transition.String()))
				return &models.StoryUpdate{Player: p, EndOfStory: true}, nil
			}
			return m.engine.Start(next, p), nil
		}
		return update, nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, messaging.EventChoiceMade, playerID, update)
	return update, nil
}

// CompleteCurrentChapter completes the current chapter, applies its payouts
// exactly once, then resolves and starts the following chapter.
func (m *ProgressManager) CompleteCurrentChapter(ctx context.Context, playerID string) (*models.StoryUpdate, error) {
	update, err := m.mutate(ctx, playerID, func(p *models.Player) (*models.StoryUpdate, error) {
		ch, err := m.currentChapter(p)
		if err != nil {
			return nil, err
		}
		done := m.engine.Complete(ch, p)
		if done.AlreadyCompleted || done.AlreadyFailed {
			return done, nil
		}
		return m.advanceFrom(ch, p, playerID)
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, messaging.EventChapterCompleted, playerID, update)
	return update, nil
}

// FailCurrentChallenge records failure of the current challenge chapter,
// applies its penalty table, then resolves the follow-up chapter (typically
// through the challenge-result table's "failure" entry).
func (m *ProgressManager) FailCurrentChallenge(ctx context.Context, playerID string) (*models.StoryUpdate, error) {
	update, err := m.mutate(ctx, playerID, func(p *models.Player) (*models.StoryUpdate, error) {
		ch, err := m.currentChapter(p)
		if err != nil {
			return nil, err
		}
		failed, err := m.engine.Fail(ch, p)
		if err != nil {
			return nil, err
		}
		if failed.AlreadyCompleted || failed.AlreadyFailed {
			return failed, nil
		}
		return m.advanceFrom(ch, p, playerID)
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, messaging.EventChallengeFailed, playerID, update)
	return update, nil
}

// SetCurrentChapter force-starts the given chapter for the player.
func (m *ProgressManager) SetCurrentChapter(ctx context.Context, playerID string, id models.ChapterID) (*models.StoryUpdate, error) {
	update, err := m.mutate(ctx, playerID, func(p *models.Player) (*models.StoryUpdate, error) {
		ch, ok := m.registry.Chapter(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", models.ErrMissingChapter, id)
		}
		return m.engine.Start(ch, p), nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, messaging.EventChapterStarted, playerID, update)
	return update, nil
}

// RecordChoice stores a choice value under the chapter's choice map.
func (m *ProgressManager) RecordChoice(ctx context.Context, playerID string, chapter models.ChapterID, key, value string) error {
	_, err := m.mutate(ctx, playerID, func(p *models.Player) (*models.StoryUpdate, error) {
		p.Story.RecordChoice(chapter, key, value)
		return &models.StoryUpdate{Player: p}, nil
	})
	return err
}

// AddHierarchyPoints adds points and recomputes the tier from the fixed
// breakpoints.
func (m *ProgressManager) AddHierarchyPoints(ctx context.Context, playerID string, points int) (*models.Player, error) {
	update, err := m.mutate(ctx, playerID, func(p *models.Player) (*models.StoryUpdate, error) {
		p.Story.AddHierarchyPoints(points)
		return &models.StoryUpdate{Player: p}, nil
	})
	if err != nil {
		return nil, err
	}
	return update.Player, nil
}

// UpdateHierarchyTier recomputes the tier from the stored point total. Tier
// is derived state; this repairs records touched by older breakpoint tables.
func (m *ProgressManager) UpdateHierarchyTier(ctx context.Context, playerID string) (*models.Player, error) {
	update, err := m.mutate(ctx, playerID, func(p *models.Player) (*models.StoryUpdate, error) {
		p.Story.HierarchyTier = models.TierForPoints(p.Story.HierarchyPoints)
		return &models.StoryUpdate{Player: p}, nil
	})
	if err != nil {
		return nil, err
	}
	return update.Player, nil
}

// SaveProgress persists an externally-held player record through the versioned
// write cycle, retrying when a concurrent writer invalidates the version. The
// incoming record wins the whole document; feature modules that mutate a loaded
// record call this to write it back.
func (m *ProgressManager) SaveProgress(ctx context.Context, playerID string, p *models.Player) error {
	p.Normalize()
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		_, version, err := m.loadOrCreate(ctx, playerID)
		if err != nil {
			return err
		}
		if err := m.store.Put(ctx, playerID, p, version); err != nil {
			if errors.Is(err, models.ErrVersionConflict) {
				lastErr = err
				m.logger.Debug("Progress version conflict, retrying",
					zap.String("playerID", playerID),
					zap.Int("attempt", attempt+1))
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("save progress for %s: %w", playerID, lastErr)
}

// currentChapter resolves the player's current chapter from the registry.
func (m *ProgressManager) currentChapter(p *models.Player) (*models.Chapter, error) {
	if p.Story.CurrentChapter.IsZero() {
		return nil, models.ErrNoCurrentChapter
	}
	ch, ok := m.registry.Chapter(p.Story.CurrentChapter)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrMissingChapter, p.Story.CurrentChapter)
	}
	return ch, nil
}

// advanceFrom resolves prev's next chapter and enters it. A missing target is
// logged and reported as end of story, never a hard failure.
func (m *ProgressManager) advanceFrom(prev *models.Chapter, p *models.Player, playerID string) (*models.StoryUpdate, error) {
	next, ok := m.engine.NextChapter(prev, p)
	if !ok {
		return m.enterNextChapter(p, playerID)
	}
	ch, loaded := m.registry.Chapter(next)
	if !loaded {
		m.logger.Warn("Next chapter has no backing content, treating arc as exhausted",
			zap.String("playerID", playerID),
			zap.String("chapterID", next.String()))
		return &models.StoryUpdate{Player: p, EndOfStory: true}, nil
	}
	return m.engine.Start(ch, p), nil
}

// enterNextChapter starts the first chapter the arc manager reports as
// available, or flags end of story.
func (m *ProgressManager) enterNextChapter(p *models.Player, playerID string) (*models.StoryUpdate, error) {
	available := m.arcs.AvailableChapters(p)
	if len(available) == 0 {
		return &models.StoryUpdate{Player: p, EndOfStory: true}, nil
	}
	ch, ok := m.registry.Chapter(available[0])
	if !ok {
		m.logger.Warn("Available chapter vanished from registry",
			zap.String("playerID", playerID),
			zap.String("chapterID", available[0].String()))
		return &models.StoryUpdate{Player: p, EndOfStory: true}, nil
	}
	return m.engine.Start(ch, p), nil
}

// loadOrCreate fetches the player record, creating the default record on
// first contact.
func (m *ProgressManager) loadOrCreate(ctx context.Context, playerID string) (*models.Player, int64, error) {
	p, version, err := m.store.Get(ctx, playerID)
	if err == nil {
		p.Normalize()
		return p, version, nil
	}
	if !errors.Is(err, models.ErrProgressNotFound) {
		return nil, 0, err
	}
	p = models.NewPlayer(playerID)
	if err := m.store.Put(ctx, playerID, p, 0); err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			// Lost the creation race; the other writer's record wins.
			return m.loadOrCreate(ctx, playerID)
		}
		return nil, 0, err
	}
	return p, 1, nil
}

// mutate runs fn against the freshly-loaded record and writes the result
// back, retrying the whole cycle when a concurrent writer invalidates the
// version. fn returning an error aborts without persisting anything.
func (m *ProgressManager) mutate(ctx context.Context, playerID string, fn func(*models.Player) (*models.StoryUpdate, error)) (*models.StoryUpdate, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		p, version, err := m.loadOrCreate(ctx, playerID)
		if err != nil {
			return nil, err
		}
		update, err := fn(p)
		if err != nil {
			return nil, err
		}
		if err := m.store.Put(ctx, playerID, p, version); err != nil {
			if errors.Is(err, models.ErrVersionConflict) {
				lastErr = err
				m.logger.Debug("Progress version conflict, retrying",
					zap.String("playerID", playerID),
					zap.Int("attempt", attempt+1))
				continue
			}
			return nil, err
		}
		return update, nil
	}
	return nil, fmt.Errorf("save progress for %s: %w", playerID, lastErr)
}

// publish emits a narrative event. Delivery problems are logged and ignored;
// analytics is a side channel and never blocks gameplay.
func (m *ProgressManager) publish(ctx context.Context, eventType, playerID string, update *models.StoryUpdate) {
	chapterID := ""
	if update != nil && update.Chapter != nil {
		chapterID = update.Chapter.ID
	}
	if err := m.events.PublishNarrativeEvent(ctx, messaging.NewNarrativeEvent(eventType, playerID, chapterID)); err != nil {
		m.logger.Warn("Narrative event dropped",
			zap.String("type", eventType),
			zap.String("playerID", playerID),
			zap.Error(err))
	}
}
