package models

import "errors"

// Application-wide standard errors
var (
	// Content / identifier errors
	ErrMalformedChapterID = errors.New("malformed chapter identifier")
	ErrMissingChapter     = errors.New("referenced chapter has no backing content")
	ErrChapterNotLoaded   = errors.New("chapter is not present in the registry")

	// Gameplay errors
	ErrInvalidChoice       = errors.New("invalid choice")
	ErrNotChallengeChapter = errors.New("operation requires a challenge chapter")
	ErrNoCurrentChapter    = errors.New("player has no current chapter")

	// Persistence errors
	ErrProgressNotFound = errors.New("player progress not found")
	ErrVersionConflict  = errors.New("progress record was modified concurrently")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
)
