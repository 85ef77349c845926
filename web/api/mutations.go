package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"bptrack/models"

	"github.com/rohanthewiz/rweb"
)

// ============================================================================
// Entity Mutation Handlers
//
// Every write goes through the Offline Storage Manager: validated, cached
// locally, queued, and synced in the background when connectivity allows.
// The response is the locally-visible record so the UI can render
// optimistically; HTTP 202 signals "accepted, sync pending".
// ============================================================================

// recordMutation decodes the request body and hands it to the manager.
func recordMutation(ctx rweb.Context, table string, action int32) error {
	payload := models.Payload{}

	if action != models.ActionDelete {
		if err := json.Unmarshal(ctx.Request().Body(), &payload); err != nil {
			return writeError(ctx, http.StatusBadRequest, "invalid request body")
		}
	}

	if action == models.ActionUpdate || action == models.ActionDelete {
		id := ctx.Request().Param("id")
		if id == "" {
			return writeError(ctx, http.StatusBadRequest, "record id is required")
		}
		payload["id"] = id
		if _, ok := payload["local_id"]; !ok {
			payload["local_id"] = id
		}
	}

	mutation, err := manager.RecordMutation(table, action, payload)
	if err != nil {
		// Validation failures read as client errors; anything else is a
		// local storage problem
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			return writeError(ctx, http.StatusBadRequest, err.Error())
		}
		return writeError(ctx, http.StatusInternalServerError, err.Error())
	}

	return writeSuccess(ctx, http.StatusAccepted, mutation)
}

// listSnapshots returns the locally cached records for a table.
func listSnapshots(ctx rweb.Context, load func() ([]models.Payload, error)) error {
	records, err := load()
	if err != nil {
		return writeError(ctx, http.StatusInternalServerError, err.Error())
	}
	return writeSuccess(ctx, http.StatusOK, records)
}

// Blood pressure readings

func CreateReading(ctx rweb.Context) error {
	return recordMutation(ctx, models.TableReadings, models.ActionInsert)
}

func UpdateReading(ctx rweb.Context) error {
	return recordMutation(ctx, models.TableReadings, models.ActionUpdate)
}

func DeleteReading(ctx rweb.Context) error {
	return recordMutation(ctx, models.TableReadings, models.ActionDelete)
}

func ListReadings(ctx rweb.Context) error {
	return listSnapshots(ctx, manager.Readings)
}

// Symptom entries

func CreateSymptomEntry(ctx rweb.Context) error {
	return recordMutation(ctx, models.TableSymptoms, models.ActionInsert)
}

func UpdateSymptomEntry(ctx rweb.Context) error {
	return recordMutation(ctx, models.TableSymptoms, models.ActionUpdate)
}

func DeleteSymptomEntry(ctx rweb.Context) error {
	return recordMutation(ctx, models.TableSymptoms, models.ActionDelete)
}

func ListSymptomEntries(ctx rweb.Context) error {
	return listSnapshots(ctx, manager.SymptomEntries)
}

// Medication entries

func CreateMedicationEntry(ctx rweb.Context) error {
	return recordMutation(ctx, models.TableMedications, models.ActionInsert)
}

func UpdateMedicationEntry(ctx rweb.Context) error {
	return recordMutation(ctx, models.TableMedications, models.ActionUpdate)
}

func DeleteMedicationEntry(ctx rweb.Context) error {
	return recordMutation(ctx, models.TableMedications, models.ActionDelete)
}

func ListMedicationEntries(ctx rweb.Context) error {
	return listSnapshots(ctx, manager.MedicationEntries)
}
