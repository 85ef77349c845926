package pages

import (
	"fmt"

	"bptrack/models"

	"github.com/rohanthewiz/element"
)

const statusStyles = `
	body { font-family: -apple-system, sans-serif; margin: 2rem auto; max-width: 640px; color: #222; }
	h1 { font-size: 1.4rem; }
	.badge { display: inline-block; padding: 0.2rem 0.6rem; border-radius: 1rem; color: #fff; font-size: 0.85rem; }
	.badge.online { background: #2a9d4a; }
	.badge.offline { background: #b33; }
	.stat-row { display: flex; justify-content: space-between; padding: 0.4rem 0; border-bottom: 1px solid #ddd; }
	.conflict { padding: 0.6rem 0; border-bottom: 1px solid #eee; }
	.conflict-meta { color: #666; font-size: 0.85rem; }
	.muted { color: #888; font-size: 0.85rem; margin-top: 1.5rem; }
`

// StatusPage renders the sync status dashboard as HTML.
func StatusPage(m *models.OfflineStorageManager) string {
	b := element.NewBuilder()

	pending, _ := m.GetPendingSyncCount()
	lastSync, _ := m.GetLastSyncTime()
	conflicts := m.PendingConflicts()

	lastSyncText := "never"
	if lastSync != nil {
		lastSyncText = lastSync.Format("2006-01-02 15:04:05 MST")
	}

	badgeClass, badgeText := "badge offline", "Offline"
	if m.IsOnline() {
		badgeClass, badgeText = "badge online", "Online"
	}

	b.Html().R(
		b.Head().R(
			b.Meta("charset", "UTF-8"),
			b.Meta("viewport", "width=device-width, initial-scale=1.0"),
			b.Title().T("BP Tracker Sync Status"),
			b.Style().T(statusStyles),
		),
		b.Body().R(
			b.H1().R(
				b.T("Sync Status "),
				b.Span("class", badgeClass).T(badgeText),
			),

			b.DivClass("stat-row").R(
				b.Span().T("Pending mutations"),
				b.Span().F("%d", pending),
			),
			b.DivClass("stat-row").R(
				b.Span().T("Unresolved conflicts"),
				b.Span().F("%d", len(conflicts)),
			),
			b.DivClass("stat-row").R(
				b.Span().T("Last successful sync"),
				b.Span().T(lastSyncText),
			),

			// Conflict list, shown only when something needs review
			b.Wrap(func() {
				if len(conflicts) > 0 {
					b.H1().T("Conflicts Awaiting Review")
					for i := range conflicts {
						c := &conflicts[i]
						summary := models.Summarize(c)
						b.DivClass("conflict").R(
							b.P().T(summary.Description),
							b.P("class", "conflict-meta").T(
								fmt.Sprintf("%s | %s | mutation %s", c.Table, c.Type, c.MutationID)),
						)
					}
				}
			}),

			b.P("class", "muted").T("Resolve conflicts via POST /api/v1/sync/conflicts/:id/resolve"),
		),
	)

	return b.String()
}
