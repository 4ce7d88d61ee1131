package format

import (
	"time"

	"github.com/habilita/habilita/internal/payload"
)

// ExpiryWarningDays is the window in which a licence is flagged as expiring.
const ExpiryWarningDays = 30

// DaysUntil counts whole calendar days from now's date to the expiry date,
// negative once expired. ok is false when there is no expiry date.
func DaysUntil(expiry payload.Date, now time.Time) (days int, ok bool) {
	if !expiry.Valid {
		return 0, false
	}
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24), true
}

// ExpiryBadge classifies a days-until-expiry count.
func ExpiryBadge(days int, ok bool) Badge {
	switch {
	case !ok:
		return Badge{Label: "Sin fecha", Color: NeutralColor}
	case days < 0:
		return Badge{Label: "Vencido", Color: "danger"}
	case days <= ExpiryWarningDays:
		return Badge{Label: "Por vencer", Color: "warning"}
	default:
		return Badge{Label: "Vigente", Color: "success"}
	}
}
