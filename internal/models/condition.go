package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ConditionKind enumerates the closed set of branch predicates. Dispatch over
// conditions switches on this kind exhaustively; there is no default-true path
// hidden inside the evaluator itself.
type ConditionKind int

const (
	// ConditionChoiceAt is satisfied when the choice recorded at a dialogue
	// index of the owning chapter equals Value.
	ConditionChoiceAt ConditionKind = iota
	// ConditionAttributeAtLeast is satisfied when a player attribute is at
	// least Threshold.
	ConditionAttributeAtLeast
	// ConditionAffinityAtLeast is satisfied when the relationship level with a
	// character is at least Threshold.
	ConditionAffinityAtLeast
	// ConditionUnknown is produced for condition keys the loader does not
	// recognize. It evaluates as satisfied (fail-open, matching the authored
	// content's historical behavior) and is reported by the validator.
	ConditionUnknown
)

// Condition is a single branch predicate, parsed once at content-load time.
type Condition struct {
	Kind          ConditionKind
	RawKey        string
	DialogueIndex int
	Name          string
	Value         string
	Threshold     int
}

// ParseCondition maps an authored condition key/value pair onto the predicate
// AST. Recognized key shapes: "choice_<dialogueIndex>", "attribute_<name>",
// "affinity_<name>". Anything else becomes ConditionUnknown.
func ParseCondition(key string, raw json.RawMessage) Condition {
	cond := Condition{Kind: ConditionUnknown, RawKey: key}
	switch {
	case strings.HasPrefix(key, "choice_"):
		idx, err := strconv.Atoi(strings.TrimPrefix(key, "choice_"))
		if err != nil {
			return cond
		}
		cond.Kind = ConditionChoiceAt
		cond.DialogueIndex = idx
		cond.Value = rawScalarString(raw)
	case strings.HasPrefix(key, "attribute_"):
		cond.Kind = ConditionAttributeAtLeast
		cond.Name = strings.TrimPrefix(key, "attribute_")
		cond.Threshold = rawScalarInt(raw)
	case strings.HasPrefix(key, "affinity_"):
		cond.Kind = ConditionAffinityAtLeast
		cond.Name = strings.TrimPrefix(key, "affinity_")
		cond.Threshold = rawScalarInt(raw)
	}
	return cond
}

// rawScalarString normalizes an authored JSON scalar (number or string) to its
// string form, so "1" and 1 compare equal against recorded choices.
func rawScalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.TrimSpace(string(raw))
}

func rawScalarInt(raw json.RawMessage) int {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	return 0
}
