package models_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"bptrack/models"
)

// TestValidateReadingRanges verifies the clinical limits on blood pressure
// readings
func TestValidateReadingRanges(t *testing.T) {
	valid := models.Payload{
		"systolic":  120,
		"diastolic": 80,
	}
	if err := models.ValidatePayload(models.TableReadings, models.ActionInsert, valid); err != nil {
		t.Fatalf("expected valid reading to pass, got: %v", err)
	}

	cases := []struct {
		name    string
		payload models.Payload
		wantErr string
	}{
		{
			name:    "missing systolic",
			payload: models.Payload{"diastolic": 80},
			wantErr: "systolic is required",
		},
		{
			name:    "systolic too high",
			payload: models.Payload{"systolic": 300, "diastolic": 80},
			wantErr: "systolic must be between",
		},
		{
			name:    "systolic not above diastolic",
			payload: models.Payload{"systolic": 90, "diastolic": 95},
			wantErr: "higher than diastolic",
		},
		{
			name:    "heart rate out of range",
			payload: models.Payload{"systolic": 120, "diastolic": 80, "heart_rate": 20},
			wantErr: "heart rate must be between",
		},
		{
			name: "reading time in the future",
			payload: models.Payload{
				"systolic": 120, "diastolic": 80,
				"reading_time": time.Now().Add(time.Hour).Format(time.RFC3339),
			},
			wantErr: "cannot be in the future",
		},
		{
			name:    "stress level out of range",
			payload: models.Payload{"systolic": 120, "diastolic": 80, "stress_level": 11},
			wantErr: "stress level must be between",
		},
		{
			name: "notes too long",
			payload: models.Payload{
				"systolic": 120, "diastolic": 80,
				"notes": strings.Repeat("x", 1001),
			},
			wantErr: "too long",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := models.ValidatePayload(models.TableReadings, models.ActionInsert, tc.payload)
			if err == nil {
				t.Fatalf("expected validation error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

// TestValidateSymptomEntry verifies symptom entries need an identity and
// sane severity/duration
func TestValidateSymptomEntry(t *testing.T) {
	valid := models.Payload{"custom_symptom_name": "headache", "severity": 4}
	if err := models.ValidatePayload(models.TableSymptoms, models.ActionInsert, valid); err != nil {
		t.Fatalf("expected valid symptom entry to pass, got: %v", err)
	}

	noIdentity := models.Payload{"severity": 4}
	err := models.ValidatePayload(models.TableSymptoms, models.ActionInsert, noIdentity)
	if err == nil || !strings.Contains(err.Error(), "symptom_id or custom_symptom_name") {
		t.Errorf("expected identity error, got: %v", err)
	}

	badSeverity := models.Payload{"symptom_id": "sym-1", "severity": 11}
	err = models.ValidatePayload(models.TableSymptoms, models.ActionInsert, badSeverity)
	if err == nil || !strings.Contains(err.Error(), "severity must be between") {
		t.Errorf("expected severity error, got: %v", err)
	}

	badDuration := models.Payload{"symptom_id": "sym-1", "duration_minutes": 2000}
	err = models.ValidatePayload(models.TableSymptoms, models.ActionInsert, badDuration)
	if err == nil || !strings.Contains(err.Error(), "duration must be between") {
		t.Errorf("expected duration error, got: %v", err)
	}
}

// TestValidateMedicationEntry verifies medication entries require identity
// and dosage
func TestValidateMedicationEntry(t *testing.T) {
	valid := models.Payload{"medication_id": "med-1", "dosage": "50", "dosage_unit": "mg"}
	if err := models.ValidatePayload(models.TableMedications, models.ActionInsert, valid); err != nil {
		t.Fatalf("expected valid medication entry to pass, got: %v", err)
	}

	noDosage := models.Payload{"medication_id": "med-1"}
	err := models.ValidatePayload(models.TableMedications, models.ActionInsert, noDosage)
	if err == nil || !strings.Contains(err.Error(), "dosage is required") {
		t.Errorf("expected dosage error, got: %v", err)
	}

	badRating := models.Payload{"medication_id": "med-1", "dosage": "50", "effectiveness_rating": 6}
	err = models.ValidatePayload(models.TableMedications, models.ActionInsert, badRating)
	if err == nil || !strings.Contains(err.Error(), "effectiveness rating") {
		t.Errorf("expected effectiveness error, got: %v", err)
	}
}

// TestValidateDeleteNeedsIdentityOnly verifies delete payloads skip the full
// field check
func TestValidateDeleteNeedsIdentityOnly(t *testing.T) {
	if err := models.ValidatePayload(models.TableReadings, models.ActionDelete, models.Payload{"id": "r-1"}); err != nil {
		t.Errorf("expected delete with id to pass, got: %v", err)
	}
	if err := models.ValidatePayload(models.TableReadings, models.ActionDelete, models.Payload{"local_id": "l-1"}); err != nil {
		t.Errorf("expected delete with local_id to pass, got: %v", err)
	}

	err := models.ValidatePayload(models.TableReadings, models.ActionDelete, models.Payload{})
	if err == nil || !strings.Contains(err.Error(), "requires an id or local_id") {
		t.Errorf("expected identity error for delete, got: %v", err)
	}
}

// TestValidationFailuresAreTyped verifies rejections surface as
// ValidationError so transports can classify them without message matching
func TestValidationFailuresAreTyped(t *testing.T) {
	err := models.ValidatePayload(models.TableReadings, models.ActionInsert, models.Payload{"systolic": 300, "diastolic": 80})
	var ve *models.ValidationError
	if err == nil || !errors.As(err, &ve) {
		t.Fatalf("expected a ValidationError, got: %v", err)
	}

	err = models.ValidatePayload(models.TableReadings, models.ActionDelete, models.Payload{})
	if !errors.As(err, &ve) {
		t.Errorf("expected delete rejection to be a ValidationError, got: %v", err)
	}
}

// TestValidateUnknownTable verifies an unrecognized table is rejected up front
func TestValidateUnknownTable(t *testing.T) {
	err := models.ValidatePayload("mystery_table", models.ActionInsert, models.Payload{})
	if err == nil || !strings.Contains(err.Error(), "unknown entity table") {
		t.Errorf("expected unknown table error, got: %v", err)
	}
}
