package models_test

import (
	"strings"
	"testing"
	"time"

	"bptrack/models"
)

func queuedUpdate(table string, payload models.Payload, capturedAt time.Time) models.QueuedMutation {
	return models.QueuedMutation{
		ID:        models.GenerateLocalID(),
		Table:     table,
		Action:    models.ActionUpdate,
		Payload:   payload,
		CreatedAt: capturedAt,
	}
}

// TestDetectConflictNoServerRecord verifies absence of a server record means
// no conflict
func TestDetectConflictNoServerRecord(t *testing.T) {
	m := queuedUpdate(models.TableReadings, models.Payload{"systolic": 120, "diastolic": 80}, time.Now())

	details, err := models.DetectConflict(m, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details != nil {
		t.Error("expected no conflict when server record is absent")
	}
}

// TestDetectConflictServerNotNewer verifies the timestamp gate: a server
// record last modified before the local mutation was captured cannot
// conflict, regardless of field values
func TestDetectConflictServerNotNewer(t *testing.T) {
	captured := time.Now()
	local := models.Payload{
		"systolic": 130, "diastolic": 85,
		"updated_at": captured.Format(time.RFC3339),
	}
	server := models.Payload{
		"systolic": 120, "diastolic": 80,
		"updated_at": captured.Add(-time.Hour).Format(time.RFC3339),
	}

	details, err := models.DetectConflict(queuedUpdate(models.TableReadings, local, captured), server)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details != nil {
		t.Error("expected no conflict when server was not modified after capture")
	}
}

// TestDetectConflictIdenticalFields verifies a newer server record with no
// diverging fields is not a conflict
func TestDetectConflictIdenticalFields(t *testing.T) {
	captured := time.Now().Add(-time.Hour)
	local := models.Payload{
		"systolic": 120, "diastolic": 80,
		"updated_at": captured.Format(time.RFC3339),
	}
	server := models.Payload{
		"systolic": 120, "diastolic": 80,
		"updated_at": time.Now().Format(time.RFC3339),
	}

	details, err := models.DetectConflict(queuedUpdate(models.TableReadings, local, captured), server)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details != nil {
		t.Errorf("expected no conflict for identical fields, got divergence in %v", details.Fields)
	}
}

// TestDetectConflictDivergingFields verifies a genuine divergence is reported
// with the diverging field names
func TestDetectConflictDivergingFields(t *testing.T) {
	captured := time.Now().Add(-time.Hour)
	local := models.Payload{
		"systolic": 130, "diastolic": 85, "notes": "after walk",
		"updated_at": captured.Format(time.RFC3339),
	}
	server := models.Payload{
		"systolic": 120, "diastolic": 85, "notes": "morning reading",
		"updated_at": time.Now().Format(time.RFC3339),
	}

	details, err := models.DetectConflict(queuedUpdate(models.TableReadings, local, captured), server)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details == nil {
		t.Fatal("expected a conflict")
	}
	if details.Type != models.ConflictUpdateVsUpdate {
		t.Errorf("expected update_vs_update, got %s", details.Type)
	}

	got := map[string]bool{}
	for _, f := range details.Fields {
		got[f] = true
	}
	if !got["systolic"] || !got["notes"] {
		t.Errorf("expected systolic and notes to diverge, got %v", details.Fields)
	}
	if got["diastolic"] {
		t.Errorf("diastolic did not diverge but was reported: %v", details.Fields)
	}
}

// TestDetectConflictDeleteClassification verifies a queued delete against a
// newer server update is classified update_vs_delete
func TestDetectConflictDeleteClassification(t *testing.T) {
	captured := time.Now().Add(-time.Hour)
	m := models.QueuedMutation{
		ID:     models.GenerateLocalID(),
		Table:  models.TableReadings,
		Action: models.ActionDelete,
		Payload: models.Payload{
			"id": "r-1", "systolic": 120,
			"updated_at": captured.Format(time.RFC3339),
		},
		CreatedAt: captured,
	}
	server := models.Payload{
		"id": "r-1", "systolic": 125,
		"updated_at": time.Now().Format(time.RFC3339),
	}

	details, err := models.DetectConflict(m, server)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details == nil {
		t.Fatal("expected a conflict")
	}
	if details.Type != models.ConflictUpdateVsDelete {
		t.Errorf("expected update_vs_delete, got %s", details.Type)
	}
}

// TestResolveLocalKeepsLocalValues verifies the local strategy preserves the
// user's clinical entries verbatim
func TestResolveLocalKeepsLocalValues(t *testing.T) {
	details := &models.ConflictDetails{
		Table:      models.TableReadings,
		LocalData:  models.Payload{"systolic": 130, "diastolic": 85},
		ServerData: models.Payload{"systolic": 120, "diastolic": 80},
		Type:       models.ConflictUpdateVsUpdate,
		Fields:     []string{"systolic", "diastolic"},
	}

	resolved, err := models.Resolve(details, models.ResolveLocal, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved["systolic"] != 130 {
		t.Errorf("expected local systolic 130, got %v", resolved["systolic"])
	}
	if resolved["sync_status"] != "synced" {
		t.Errorf("expected sync_status synced, got %v", resolved["sync_status"])
	}
	if _, ok := resolved["updated_at"]; !ok {
		t.Error("expected resolution to stamp updated_at")
	}
}

// TestResolveMergeClinicalSet verifies the later clinical timestamp wins all
// quantitative values as a coherent set
func TestResolveMergeClinicalSet(t *testing.T) {
	laterReading := time.Now().Format(time.RFC3339)
	earlierReading := time.Now().Add(-2 * time.Hour).Format(time.RFC3339)

	details := &models.ConflictDetails{
		Table: models.TableReadings,
		LocalData: models.Payload{
			"systolic": 135, "diastolic": 88, "heart_rate": 76,
			"reading_time": laterReading,
		},
		ServerData: models.Payload{
			"systolic": 120, "diastolic": 80, "heart_rate": 70,
			"reading_time": earlierReading,
		},
		Type:   models.ConflictUpdateVsUpdate,
		Fields: []string{"systolic", "diastolic", "heart_rate", "reading_time"},
	}

	resolved, err := models.Resolve(details, models.ResolveMerge, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Local reading is temporally authoritative, so the whole clinical set
	// comes from the local side
	if resolved["systolic"] != 135 || resolved["diastolic"] != 88 || resolved["heart_rate"] != 76 {
		t.Errorf("expected local clinical set, got systolic=%v diastolic=%v heart_rate=%v",
			resolved["systolic"], resolved["diastolic"], resolved["heart_rate"])
	}
	if resolved["reading_time"] != laterReading {
		t.Errorf("expected local reading_time, got %v", resolved["reading_time"])
	}
}

// TestResolveMergeConcatenatesNotes verifies divergent free text survives
// from both sides
func TestResolveMergeConcatenatesNotes(t *testing.T) {
	details := &models.ConflictDetails{
		Table: models.TableReadings,
		LocalData: models.Payload{
			"systolic": 120, "diastolic": 80,
			"notes": "felt dizzy afterwards",
		},
		ServerData: models.Payload{
			"systolic": 120, "diastolic": 80,
			"notes": "taken before breakfast",
		},
		Type:   models.ConflictUpdateVsUpdate,
		Fields: []string{"notes"},
	}

	resolved, err := models.Resolve(details, models.ResolveMerge, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	notes, _ := resolved["notes"].(string)
	if !strings.Contains(notes, "taken before breakfast") || !strings.Contains(notes, "felt dizzy afterwards") {
		t.Errorf("expected both note fragments in merged notes, got %q", notes)
	}
	if !strings.Contains(notes, "[Local update]:") {
		t.Errorf("expected local fragment marked, got %q", notes)
	}
}

// TestResolveMergeLocalContextWins verifies non-null local context fields
// override null server ones
func TestResolveMergeLocalContextWins(t *testing.T) {
	details := &models.ConflictDetails{
		Table: models.TableReadings,
		LocalData: models.Payload{
			"systolic": 120, "diastolic": 80, "stress_level": 6,
		},
		ServerData: models.Payload{
			"systolic": 120, "diastolic": 80, "stress_level": nil,
		},
		Type:   models.ConflictUpdateVsUpdate,
		Fields: []string{"stress_level"},
	}

	resolved, err := models.Resolve(details, models.ResolveMerge, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved["stress_level"] != 6 {
		t.Errorf("expected local stress_level 6, got %v", resolved["stress_level"])
	}
}

// TestResolveCustomFieldsOverride verifies hand-picked field outcomes layer
// over the merge result
func TestResolveCustomFieldsOverride(t *testing.T) {
	details := &models.ConflictDetails{
		Table:      models.TableReadings,
		LocalData:  models.Payload{"systolic": 130, "diastolic": 85},
		ServerData: models.Payload{"systolic": 120, "diastolic": 80},
		Type:       models.ConflictUpdateVsUpdate,
		Fields:     []string{"systolic", "diastolic"},
	}

	resolved, err := models.Resolve(details, models.ResolveMerge, models.Payload{"systolic": 125})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved["systolic"] != 125 {
		t.Errorf("expected custom systolic 125, got %v", resolved["systolic"])
	}
}

// TestResolveMergeWithoutServerRecord verifies a merge with no server
// record fails cleanly instead of panicking
func TestResolveMergeWithoutServerRecord(t *testing.T) {
	details := &models.ConflictDetails{
		Table:      models.TableReadings,
		LocalData:  models.Payload{"systolic": 130, "diastolic": 85},
		ServerData: nil,
		Type:       models.ConflictUpdateVsUpdate,
	}

	_, err := models.Resolve(details, models.ResolveMerge, nil)
	if err == nil || !strings.Contains(err.Error(), "server record unavailable") {
		t.Errorf("expected server-record-unavailable error, got: %v", err)
	}

	// Local strategy remains usable on the same details
	resolved, err := models.Resolve(details, models.ResolveLocal, nil)
	if err != nil {
		t.Fatalf("local resolution should not need the server record, got: %v", err)
	}
	if resolved["systolic"] != 130 {
		t.Errorf("expected local systolic 130, got %v", resolved["systolic"])
	}
}

// TestResolveInvalidStrategy verifies unknown strategies are rejected
func TestResolveInvalidStrategy(t *testing.T) {
	details := &models.ConflictDetails{
		Table:      models.TableReadings,
		LocalData:  models.Payload{},
		ServerData: models.Payload{},
	}

	_, err := models.Resolve(details, models.ConflictResolution("coin-flip"), nil)
	if err == nil || !strings.Contains(err.Error(), "invalid resolution strategy") {
		t.Errorf("expected invalid strategy error, got: %v", err)
	}
}

// TestSummarizeClinicalConflictPrefersMerge verifies the advisory ranking
// for a clinical + timestamp divergence
func TestSummarizeClinicalConflictPrefersMerge(t *testing.T) {
	details := &models.ConflictDetails{
		Table:  models.TableReadings,
		Fields: []string{"systolic", "reading_time"},
	}

	summary := models.Summarize(details)
	if len(summary.Recommendations) == 0 {
		t.Fatal("expected at least one recommendation")
	}
	top := summary.Recommendations[0]
	if top.Strategy != models.ResolveMerge {
		t.Errorf("expected merge as top recommendation, got %s", top.Strategy)
	}
	if top.Confidence != 90 {
		t.Errorf("expected confidence 90, got %d", top.Confidence)
	}
	if !strings.Contains(summary.Description, "systolic") {
		t.Errorf("expected diverging fields in description, got %q", summary.Description)
	}
}

// TestSummarizeTextExtensionBoostsConfidence verifies a pure text extension
// ranks the merge higher than generic text divergence
func TestSummarizeTextExtensionBoostsConfidence(t *testing.T) {
	extension := &models.ConflictDetails{
		Table:      models.TableReadings,
		Fields:     []string{"notes"},
		LocalData:  models.Payload{"notes": "morning reading, felt fine"},
		ServerData: models.Payload{"notes": "morning reading"},
	}

	summary := models.Summarize(extension)
	if summary.Recommendations[0].Strategy != models.ResolveMerge {
		t.Fatalf("expected merge recommendation, got %s", summary.Recommendations[0].Strategy)
	}
	if summary.Recommendations[0].Confidence != 95 {
		t.Errorf("expected boosted confidence 95 for pure extension, got %d", summary.Recommendations[0].Confidence)
	}

	rewrite := &models.ConflictDetails{
		Table:      models.TableReadings,
		Fields:     []string{"notes"},
		LocalData:  models.Payload{"notes": "evening reading"},
		ServerData: models.Payload{"notes": "morning reading"},
	}
	summary = models.Summarize(rewrite)
	if summary.Recommendations[0].Confidence != 85 {
		t.Errorf("expected confidence 85 for rewrite, got %d", summary.Recommendations[0].Confidence)
	}
}

// TestSummarizeWithoutFieldDetails verifies the summary reads sensibly when
// the diverging fields are unknown
func TestSummarizeWithoutFieldDetails(t *testing.T) {
	details := &models.ConflictDetails{
		Table:     models.TableReadings,
		LocalData: models.Payload{"systolic": 130, "diastolic": 85},
		Type:      models.ConflictUpdateVsUpdate,
	}

	summary := models.Summarize(details)
	if strings.Contains(summary.Description, "0 field") {
		t.Errorf("expected no field count in description, got %q", summary.Description)
	}
	if !strings.Contains(summary.Description, "could not be determined") {
		t.Errorf("expected unknown-divergence wording, got %q", summary.Description)
	}
	if len(summary.Recommendations) == 0 {
		t.Error("expected recommendations even without field details")
	}
}

// TestSummarizeNonClinicalPrefersLocal verifies divergence in non-clinical
// fields ranks local first
func TestSummarizeNonClinicalPrefersLocal(t *testing.T) {
	details := &models.ConflictDetails{
		Table:  models.TableReadings,
		Fields: []string{"position", "arm_used"},
	}

	summary := models.Summarize(details)
	if summary.Recommendations[0].Strategy != models.ResolveLocal {
		t.Errorf("expected local as top recommendation, got %s", summary.Recommendations[0].Strategy)
	}
	if len(summary.Recommendations) < 2 || summary.Recommendations[1].Strategy != models.ResolveServer {
		t.Errorf("expected server as fallback recommendation, got %+v", summary.Recommendations)
	}
}
