package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ============================================================================
// Conflict Summaries
//
// Advisory output for the caller/UI: a human-readable description of a
// conflict plus a ranked list of suggested strategies with confidence
// scores. Heuristics key off which fields diverged: divergence confined to
// free text favors merge, divergence limited to non-clinical fields favors
// local. Nothing here decides anything; the caller picks the strategy.
// ============================================================================

// StrategyRecommendation is one suggested resolution with a confidence
// score in the 0–100 range.
type StrategyRecommendation struct {
	Strategy   ConflictResolution `json:"strategy"`
	Reason     string             `json:"reason"`
	Confidence int                `json:"confidence"`
}

// ConflictSummary is the advisory view of one conflict.
type ConflictSummary struct {
	Title           string                   `json:"title"`
	Description     string                   `json:"description"`
	Recommendations []StrategyRecommendation `json:"recommendations"`
}

// clinical field names across all entities, used to classify a conflict
var clinicalFieldNames = map[string]bool{
	"systolic": true, "diastolic": true, "heart_rate": true,
	"severity": true, "dosage": true,
}

var timestampFieldNames = map[string]bool{
	"reading_time": true, "occurred_at": true, "taken_at": true,
}

var textFieldNames = map[string]bool{
	"notes": true, "side_effects": true,
}

// Summarize builds the advisory summary for a conflict.
func Summarize(c *ConflictDetails) ConflictSummary {
	fieldCount := len(c.Fields)
	table := strings.ReplaceAll(c.Table, "_", " ")

	// Field-level detail is unavailable when the backend flagged the
	// conflict without its current record
	description := "Your local changes conflict with server updates; the diverging fields could not be determined"
	if fieldCount > 0 {
		plural := ""
		if fieldCount > 1 {
			plural = "s"
		}
		description = fmt.Sprintf(
			"Your local changes conflict with server updates in %d field%s: %s",
			fieldCount, plural, strings.Join(c.Fields, ", "))
	}

	summary := ConflictSummary{
		Title:           "Sync conflict in " + table,
		Description:     description,
		Recommendations: recommend(c),
	}
	return summary
}

// recommend derives the ranked strategy list from the shape of the
// divergence.
func recommend(c *ConflictDetails) []StrategyRecommendation {
	var hasText, hasTimestamp, hasClinical bool
	for _, f := range c.Fields {
		if textFieldNames[f] {
			hasText = true
		}
		if timestampFieldNames[f] {
			hasTimestamp = true
		}
		if clinicalFieldNames[f] {
			hasClinical = true
		}
	}

	var recs []StrategyRecommendation
	switch {
	case hasClinical && hasTimestamp:
		recs = append(recs,
			StrategyRecommendation{
				Strategy:   ResolveMerge,
				Reason:     "Combines the latest clinical data with your context",
				Confidence: 90,
			},
			StrategyRecommendation{
				Strategy:   ResolveLocal,
				Reason:     "Your recent changes include important clinical data",
				Confidence: 75,
			})
	case hasText:
		confidence := 85
		if textIsExtension(c) {
			// One side's text extends the other, a merge loses nothing
			confidence = 95
		}
		recs = append(recs, StrategyRecommendation{
			Strategy:   ResolveMerge,
			Reason:     "Preserves both sets of notes",
			Confidence: confidence,
		})
	default:
		recs = append(recs,
			StrategyRecommendation{
				Strategy:   ResolveLocal,
				Reason:     "Your recent changes should take precedence",
				Confidence: 80,
			},
			StrategyRecommendation{
				Strategy:   ResolveServer,
				Reason:     "Use the server version to stay consistent",
				Confidence: 60,
			})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Confidence > recs[j].Confidence
	})
	return recs
}

// textIsExtension reports whether, for every diverging text field, one
// side's text is purely an extension of the other's, meaning the diff
// contains no deletions in either direction. Such conflicts are the safest
// possible merges.
func textIsExtension(c *ConflictDetails) bool {
	dmp := diffmatchpatch.New()

	checked := false
	for _, f := range c.Fields {
		if !textFieldNames[f] {
			continue
		}
		localText, _ := payloadString(c.LocalData, f)
		serverText, _ := payloadString(c.ServerData, f)
		if localText == "" || serverText == "" {
			continue
		}
		checked = true

		diffs := dmp.DiffMain(serverText, localText, false)
		for _, d := range diffs {
			if d.Type == diffmatchpatch.DiffDelete {
				return false
			}
		}
	}
	return checked
}
