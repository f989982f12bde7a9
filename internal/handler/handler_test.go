package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"narrative-server/internal/handler"
	"narrative-server/internal/messaging"
	"narrative-server/internal/models"
	"narrative-server/internal/narrative"
	"narrative-server/internal/service"
	"narrative-server/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chapters := []*models.Chapter{
		{
			ID:    models.ChapterID{Year: 1, Index: 1},
			Title: "Arrival",
			Dialogues: []models.DialogueStep{
				{NPC: "narrator", Text: "The gates open."},
			},
			NextChapter:   "1_2",
			CompletionExp: 50,
		},
		{
			ID:        models.ChapterID{Year: 1, Index: 2},
			Title:     "Orientation",
			Dialogues: []models.DialogueStep{{NPC: "rector", Text: "Listen."}},
		},
	}
	arc := &narrative.Arc{Name: "main", Chapters: []models.ChapterID{chapters[0].ID, chapters[1].ID}}
	registry := narrative.NewRegistry(chapters, []*narrative.Arc{arc})

	manager := service.NewProgressManager(storage.NewMemoryStore(), registry, messaging.NopPublisher{}, zap.NewNop())

	router := gin.New()
	handler.NewStoryHandler(manager, zap.NewNop()).RegisterRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetProgressCreatesRecord(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/players/u1/story", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var player models.Player
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &player))
	assert.Equal(t, "u1", player.UserID)
	require.NotNil(t, player.Story)
	assert.Equal(t, 1, player.Story.CurrentYear)
}

func TestAdvanceAndChoose(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/players/u1/story/advance", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var update models.StoryUpdate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &update))
	require.NotNil(t, update.Chapter)
	assert.Equal(t, "1_1", update.Chapter.ID)

	w = doRequest(router, http.MethodPost, "/api/players/u1/story/choice", gin.H{"choice_index": 0})
	assert.Equal(t, http.StatusOK, w.Code)

	t.Run("missing body", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/players/u1/story/choice", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("out of range index", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/players/u1/story/choice", gin.H{"choice_index": 42})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCompleteFlow(t *testing.T) {
	router := newTestRouter(t)

	doRequest(router, http.MethodPost, "/api/players/u1/story/advance", nil)
	w := doRequest(router, http.MethodPost, "/api/players/u1/story/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var update models.StoryUpdate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &update))
	require.NotNil(t, update.Chapter)
	assert.Equal(t, "1_2", update.Chapter.ID)

	w = doRequest(router, http.MethodGet, "/api/players/u1/story/completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var completed struct {
		Chapters []models.ChapterID `json:"chapters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &completed))
	assert.Equal(t, []models.ChapterID{{Year: 1, Index: 1}}, completed.Chapters)
}

func TestErrorMapping(t *testing.T) {
	router := newTestRouter(t)

	t.Run("choice before any chapter is 404", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/players/fresh/story/choice", gin.H{"choice_index": 0})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("failing a linear chapter is 400", func(t *testing.T) {
		doRequest(router, http.MethodPost, "/api/players/u2/story/advance", nil)
		w := doRequest(router, http.MethodPost, "/api/players/u2/story/fail", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed chapter id is 400", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/players/u1/story/chapter/arrival", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown chapter is 404", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/players/u1/story/chapter/9_9", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSetChapter(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/players/u1/story/chapter/1_2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var update models.StoryUpdate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &update))
	require.NotNil(t, update.Chapter)
	assert.Equal(t, "1_2", update.Chapter.ID)
}

func TestAddHierarchyPoints(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/players/u1/story/hierarchy/points", gin.H{"points": 150})
	require.Equal(t, http.StatusOK, w.Code)

	var player models.Player
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &player))
	assert.Equal(t, 150, player.Story.HierarchyPoints)
	assert.Equal(t, 1, player.Story.HierarchyTier)

	t.Run("zero delta is a valid body", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/players/u1/story/hierarchy/points", gin.H{"points": 0})
		require.Equal(t, http.StatusOK, w.Code)

		var player models.Player
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &player))
		assert.Equal(t, 150, player.Story.HierarchyPoints)
	})

	t.Run("missing body is rejected", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/players/u1/story/hierarchy/points", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
