package models

import (
	"fmt"
	"time"

	"github.com/rohanthewiz/serr"
)

// ============================================================================
// Entity Schemas
//
// Each syncable entity table has a schema describing how to validate a
// mutation payload at the boundary and which fields matter during conflict
// detection and merge resolution. Payloads are tagged variants: the queue
// entry's table name selects the schema, and nothing un-validated ever
// reaches the queue.
// ============================================================================

// Entity table names. These match the backend's collection names.
const (
	TableReadings    = "blood_pressure_readings"
	TableSymptoms    = "symptom_entries"
	TableMedications = "medication_entries"
)

// Mutation actions.
const (
	ActionInsert int32 = 1
	ActionUpdate int32 = 2
	ActionDelete int32 = 3
)

// Clinical validation limits for blood pressure readings and related entries.
const (
	SystolicMin      = 70
	SystolicMax      = 250
	DiastolicMin     = 40
	DiastolicMax     = 150
	HeartRateMin     = 40
	HeartRateMax     = 200
	StressLevelMin   = 1
	StressLevelMax   = 10
	SleepHoursMax    = 24
	WeightKgMin      = 30
	WeightKgMax      = 300
	SeverityMin      = 1
	SeverityMax      = 10
	DurationMinutes  = 1440 // 24 hours
	EffectivenessMax = 5
	NotesMaxLen      = 1000
)

// entitySchema describes per-table behavior for validation, conflict
// detection, and merge resolution.
type entitySchema struct {
	// timeField is the clinical timestamp: the field that decides which
	// side's quantitative values are temporally authoritative in a merge.
	timeField string

	// compareFields are checked one by one during conflict detection.
	compareFields []string

	// clinicalFields carry quantitative clinical data; in a merge the
	// temporally authoritative side's values win.
	clinicalFields []string

	// textFields hold free-text the user typed; merges concatenate both
	// sides rather than dropping either.
	textFields []string

	// contextFields are qualitative context; a non-null local value takes
	// precedence over a null server value in a merge.
	contextFields []string

	validate func(p Payload) error
}

var entitySchemas = map[string]entitySchema{
	TableReadings: {
		timeField: "reading_time",
		compareFields: []string{
			"systolic", "diastolic", "heart_rate", "reading_time",
			"position", "arm_used", "notes", "stress_level", "sleep_hours",
		},
		clinicalFields: []string{"systolic", "diastolic", "heart_rate", "reading_time"},
		textFields:     []string{"notes"},
		contextFields:  []string{"stress_level", "sleep_hours", "activity_before_reading", "position", "arm_used"},
		validate:       validateReading,
	},
	TableSymptoms: {
		timeField: "occurred_at",
		compareFields: []string{
			"symptom_id", "custom_symptom_name", "severity",
			"duration_minutes", "notes", "occurred_at",
		},
		clinicalFields: []string{"severity", "duration_minutes", "occurred_at"},
		textFields:     []string{"notes"},
		contextFields:  []string{"custom_symptom_name"},
		validate:       validateSymptomEntry,
	},
	TableMedications: {
		timeField: "taken_at",
		compareFields: []string{
			"medication_id", "custom_medication_name", "dosage",
			"dosage_unit", "frequency", "taken_at", "prescribed_by",
		},
		clinicalFields: []string{"dosage", "dosage_unit", "taken_at"},
		textFields:     []string{"side_effects", "notes"},
		contextFields:  []string{"taken_with_food", "effectiveness_rating", "frequency", "prescribed_by"},
		validate:       validateMedicationEntry,
	},
}

// schemaFor returns the schema for an entity table.
func schemaFor(table string) (entitySchema, error) {
	schema, ok := entitySchemas[table]
	if !ok {
		return entitySchema{}, serr.New("unknown entity table: " + table)
	}
	return schema, nil
}

// KnownTables returns the entity tables the sync layer manages.
func KnownTables() []string {
	return []string{TableReadings, TableSymptoms, TableMedications}
}

// ============================================================================
// Per-entity validation
//
// Runs before a mutation is queued. Limits mirror what the backend enforces
// so a payload that passes here won't bounce with a validation error during
// a later sync pass.
// ============================================================================

// ValidationError marks a payload rejected at the boundary. Callers match
// it with errors.As to map rejections to client errors without depending on
// message wording.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationError(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ValidatePayload checks a mutation payload against its entity schema.
// Delete payloads only need a record id; insert and update payloads get the
// full field check.
func ValidatePayload(table string, action int32, p Payload) error {
	schema, err := schemaFor(table)
	if err != nil {
		return err
	}

	if action == ActionDelete {
		if id, ok := payloadString(p, "id"); !ok || id == "" {
			if localID, ok := payloadString(p, "local_id"); !ok || localID == "" {
				return validationError("delete payload requires an id or local_id")
			}
		}
		return nil
	}

	return schema.validate(p)
}

func validateReading(p Payload) error {
	systolic, ok := payloadNumber(p, "systolic")
	if !ok {
		return validationError("systolic is required")
	}
	if systolic < SystolicMin || systolic > SystolicMax {
		return validationError("systolic must be between %d and %d", SystolicMin, SystolicMax)
	}

	diastolic, ok := payloadNumber(p, "diastolic")
	if !ok {
		return validationError("diastolic is required")
	}
	if diastolic < DiastolicMin || diastolic > DiastolicMax {
		return validationError("diastolic must be between %d and %d", DiastolicMin, DiastolicMax)
	}
	if systolic <= diastolic {
		return validationError("systolic pressure must be higher than diastolic pressure")
	}

	if hr, ok := payloadNumber(p, "heart_rate"); ok {
		if hr < HeartRateMin || hr > HeartRateMax {
			return validationError("heart rate must be between %d and %d", HeartRateMin, HeartRateMax)
		}
	}

	if rt, ok := payloadTime(p, "reading_time"); ok {
		if rt.After(time.Now()) {
			return validationError("reading time cannot be in the future")
		}
	} else if _, present := p["reading_time"]; present {
		return validationError("reading_time must be an RFC3339 timestamp")
	}

	if stress, ok := payloadNumber(p, "stress_level"); ok {
		if stress < StressLevelMin || stress > StressLevelMax {
			return validationError("stress level must be between %d and %d", StressLevelMin, StressLevelMax)
		}
	}
	if sleep, ok := payloadNumber(p, "sleep_hours"); ok {
		if sleep < 0 || sleep > SleepHoursMax {
			return validationError("sleep hours must be between 0 and %d", SleepHoursMax)
		}
	}
	if weight, ok := payloadNumber(p, "weight_kg"); ok {
		if weight < WeightKgMin || weight > WeightKgMax {
			return validationError("weight must be between %dkg and %dkg", WeightKgMin, WeightKgMax)
		}
	}

	return validateNotesLen(p, "notes")
}

func validateSymptomEntry(p Payload) error {
	// A symptom entry needs either a catalog symptom id or a custom name
	symptomID, hasID := payloadString(p, "symptom_id")
	customName, hasCustom := payloadString(p, "custom_symptom_name")
	if (!hasID || symptomID == "") && (!hasCustom || customName == "") {
		return validationError("symptom entry requires a symptom_id or custom_symptom_name")
	}

	if sev, ok := payloadNumber(p, "severity"); ok {
		if sev < SeverityMin || sev > SeverityMax {
			return validationError("severity must be between %d and %d", SeverityMin, SeverityMax)
		}
	}
	if dur, ok := payloadNumber(p, "duration_minutes"); ok {
		if dur < 1 || dur > DurationMinutes {
			return validationError("duration must be between 1 and %d minutes", DurationMinutes)
		}
	}

	return validateNotesLen(p, "notes")
}

func validateMedicationEntry(p Payload) error {
	medicationID, hasID := payloadString(p, "medication_id")
	customName, hasCustom := payloadString(p, "custom_medication_name")
	if (!hasID || medicationID == "") && (!hasCustom || customName == "") {
		return validationError("medication entry requires a medication_id or custom_medication_name")
	}

	if dosage, ok := payloadString(p, "dosage"); !ok || dosage == "" {
		return validationError("dosage is required")
	}

	if rating, ok := payloadNumber(p, "effectiveness_rating"); ok {
		if rating < 1 || rating > EffectivenessMax {
			return validationError("effectiveness rating must be between 1 and %d", EffectivenessMax)
		}
	}

	if err := validateNotesLen(p, "side_effects"); err != nil {
		return err
	}
	return validateNotesLen(p, "notes")
}

func validateNotesLen(p Payload, field string) error {
	if notes, ok := payloadString(p, field); ok && len(notes) > NotesMaxLen {
		return validationError("%s too long (max %d characters)", field, NotesMaxLen)
	}
	return nil
}
