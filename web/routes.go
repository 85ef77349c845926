package web

import (
	"bptrack/models"
	"bptrack/web/api"
	"bptrack/web/pages"

	"github.com/rohanthewiz/rweb"
)

// setupRoutes configures all application routes.
func setupRoutes(s *rweb.Server, manager *models.OfflineStorageManager) {
	// Sync status page - HTML response
	s.Get("/", func(ctx rweb.Context) error {
		ctx.Response().SetHeader("Content-Type", "text/html; charset=utf-8")
		return ctx.WriteHTML(pages.StatusPage(manager))
	})

	// Entity mutation endpoints - writes go through the offline layer so
	// they work identically with or without connectivity
	s.Post("/api/v1/readings", api.CreateReading)
	s.Put("/api/v1/readings/:id", api.UpdateReading)
	s.Delete("/api/v1/readings/:id", api.DeleteReading)

	s.Post("/api/v1/symptom-entries", api.CreateSymptomEntry)
	s.Put("/api/v1/symptom-entries/:id", api.UpdateSymptomEntry)
	s.Delete("/api/v1/symptom-entries/:id", api.DeleteSymptomEntry)

	s.Post("/api/v1/medication-entries", api.CreateMedicationEntry)
	s.Put("/api/v1/medication-entries/:id", api.UpdateMedicationEntry)
	s.Delete("/api/v1/medication-entries/:id", api.DeleteMedicationEntry)

	// Locally cached reads for offline rendering
	s.Get("/api/v1/readings", api.ListReadings)
	s.Get("/api/v1/symptom-entries", api.ListSymptomEntries)
	s.Get("/api/v1/medication-entries", api.ListMedicationEntries)

	// Sync control
	s.Get("/api/v1/sync/status", api.SyncStatus)
	s.Post("/api/v1/sync/now", api.SyncNow)
	s.Get("/api/v1/sync/conflicts", api.ListConflicts)
	s.Post("/api/v1/sync/conflicts/:id/resolve", api.ResolveConflict)

	// Offline data maintenance
	s.Get("/api/v1/offline/export", api.ExportOfflineData)
	s.Delete("/api/v1/offline", api.ClearOfflineData)
}
