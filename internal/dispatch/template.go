package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

// Render substitutes the alert template placeholders. Placeholders whose
// data is unavailable are omitted, never left verbatim in the message.
func Render(template string, loc *model.Location, battery int, personalInfo string, ts time.Time) string {
	location := ""
	mapsLink := ""
	if loc != nil {
		location = fmt.Sprintf("%.6f,%.6f (±%.0fm)", loc.Lat, loc.Lon, loc.Accuracy)
		mapsLink = loc.MapsLink()
	}

	batteryText := ""
	if battery >= 0 {
		batteryText = fmt.Sprintf("%d%%", battery)
	}

	out := strings.NewReplacer(
		"{LOCATION}", location,
		"{MAPS_LINK}", mapsLink,
		"{TIMESTAMP}", ts.Format(time.RFC3339),
		"{BATTERY}", batteryText,
		"{PERSONAL_INFO}", personalInfo,
	).Replace(template)

	// Omitted placeholders leave double spaces behind.
	return strings.Join(strings.Fields(out), " ")
}
