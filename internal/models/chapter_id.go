package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// chapterIDPattern is the canonical serialized form of a chapter identifier:
// "{year}_{index}" with an optional "_{suffix}" tail, e.g. "1_1" or "2_3_trial".
var chapterIDPattern = regexp.MustCompile(`^\d+_\d+(_[a-zA-Z0-9_]+)?$`)

// bareIDPattern matches an identifier missing its year prefix, e.g. "4" or
// "4_secret". Such identifiers are qualified with the current chapter's year.
var bareIDPattern = regexp.MustCompile(`^\d+(_[a-zA-Z0-9_]+)?$`)

// ChapterID identifies a single chapter inside the content graph. The zero
// value is "no chapter".
type ChapterID struct {
	Year   int
	Index  int
	Suffix string
}

// ValidChapterIDString reports whether s is a well-formed serialized chapter
// identifier.
func ValidChapterIDString(s string) bool {
	return chapterIDPattern.MatchString(s)
}

// ParseChapterID parses the serialized "{year}_{index}[_{suffix}]" form.
func ParseChapterID(s string) (ChapterID, error) {
	if !chapterIDPattern.MatchString(s) {
		return ChapterID{}, fmt.Errorf("%w: %q", ErrMalformedChapterID, s)
	}
	parts := strings.SplitN(s, "_", 3)
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return ChapterID{}, fmt.Errorf("%w: %q", ErrMalformedChapterID, s)
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil {
		return ChapterID{}, fmt.Errorf("%w: %q", ErrMalformedChapterID, s)
	}
	id := ChapterID{Year: year, Index: index}
	if len(parts) == 3 {
		id.Suffix = parts[2]
	}
	return id, nil
}

// QualifyChapterID parses raw, filling in year when raw carries no year
// prefix. Authored content routinely writes intra-year transitions as "4" or
// "4_secret"; those resolve relative to the chapter that declared them.
func QualifyChapterID(raw string, year int) (ChapterID, error) {
	if chapterIDPattern.MatchString(raw) {
		return ParseChapterID(raw)
	}
	if !bareIDPattern.MatchString(raw) {
		return ChapterID{}, fmt.Errorf("%w: %q", ErrMalformedChapterID, raw)
	}
	return ParseChapterID(fmt.Sprintf("%d_%s", year, raw))
}

// String returns the serialized form.
func (id ChapterID) String() string {
	if id.Suffix == "" {
		return fmt.Sprintf("%d_%d", id.Year, id.Index)
	}
	return fmt.Sprintf("%d_%d_%s", id.Year, id.Index, id.Suffix)
}

// IsZero reports whether id is the "no chapter" value.
func (id ChapterID) IsZero() bool {
	return id == ChapterID{}
}

// MarshalText serializes the identifier for JSON documents, where chapter
// identifiers always appear in their string form.
func (id ChapterID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses the serialized form. An empty string is the zero value,
// so optional identifier fields round-trip cleanly.
func (id *ChapterID) UnmarshalText(data []byte) error {
	s := string(data)
	if s == "" {
		*id = ChapterID{}
		return nil
	}
	parsed, err := ParseChapterID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ContainsChapterID reports whether ids contains id.
func ContainsChapterID(ids []ChapterID, id ChapterID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// AppendChapterID appends id to ids unless it is already present. The
// completed-chapter lists are append-only sets; this is the only way they grow.
func AppendChapterID(ids []ChapterID, id ChapterID) []ChapterID {
	if ContainsChapterID(ids, id) {
		return ids
	}
	return append(ids, id)
}
