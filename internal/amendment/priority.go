package amendment

import (
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

// ReviewPriority computes the manual-review priority for an amendment
// on the given booking.  Base 5, raised by check-in proximity (one
// tier applies), booking value and VIP guests, capped at 10.
func ReviewPriority(b *model.Booking, now time.Time) int {
	p := 5
	switch hours := b.CheckIn.Sub(now).Hours(); {
	case hours < 24:
		p += 5
	case hours < 72:
		p += 3
	case hours < 168:
		p++
	}
	if b.TotalAmount > 1000 {
		p += 2
	}
	if b.Guest.VIP {
		p += 3
	}
	if p > 10 {
		p = 10
	}
	return p
}
