package util

import (
	"strings"

	"github.com/vrsandeep/mango-tracker/internal/models"
)

var statusAliases = map[string]string{
	"reading":      models.StatusReading,
	"current":      models.StatusReading,
	"completed":    models.StatusCompleted,
	"complete":     models.StatusCompleted,
	"plan to read": models.StatusPlanToRead,
	"plantoread":   models.StatusPlanToRead,
	"planning":     models.StatusPlanToRead,
	"on hold":      models.StatusOnHold,
	"onhold":       models.StatusOnHold,
	"paused":       models.StatusOnHold,
	"dropped":      models.StatusDropped,
	"re-reading":   models.StatusRereading,
	"rereading":    models.StatusRereading,
	"repeating":    models.StatusRereading,
	"read":         models.StatusRead,
}

// NormalizeStatus maps the status spellings used by the supported sites and
// by MAL exports ("On-Hold", "plan_to_read", "PAUSED") onto the built-in
// statuses. Unknown values are returned trimmed but otherwise unchanged, so
// custom marker names survive.
func NormalizeStatus(status string) string {
	s := strings.TrimSpace(status)
	key := strings.ToLower(s)
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	if canonical, ok := statusAliases[key]; ok {
		return canonical
	}
	if canonical, ok := statusAliases[strings.ReplaceAll(key, " ", "")]; ok {
		return canonical
	}
	return s
}
