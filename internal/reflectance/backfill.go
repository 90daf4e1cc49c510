package reflectance

import (
	"github.com/roman-kulish/survey-transfer/internal/flight"
)

// BackfillPhantomRoutes gives Phantom captures still carrying the placeholder
// route the route of the nearest MS or panel folder in directory listing
// order; the earlier folder wins a tie. Returns the number of records updated.
//
// The rule mirrors how the 2024 Phantom flights were logged. Whether it holds
// for other field layouts is unverified.
func BackfillPhantomRoutes(records []*flight.Record, placeholder string) int {
	var updated int
	for i, r := range records {
		if r.CaptureType != flight.CapturePhantomMS || r.RouteID != placeholder {
			continue
		}
		if route := nearestSiblingRoute(records, i); route != "" {
			r.RouteID = route
			updated++
		}
	}
	return updated
}

func nearestSiblingRoute(records []*flight.Record, i int) string {
	for d := 1; d < len(records); d++ {
		for _, j := range []int{i - d, i + d} {
			if j < 0 || j >= len(records) {
				continue
			}

			s := records[j]
			if (s.CaptureType == flight.CaptureMS || s.CaptureType == flight.CaptureReflectance) && s.RouteID != "" {
				return s.RouteID
			}
		}
	}
	return ""
}
