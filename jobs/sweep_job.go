package jobs

import (
	"log"

	"github.com/wanjalae/hr_portal/websocket"
)

// SweepStaleConnections returns a cron job that pings every registered push
// connection and drops the ones whose client went away without a clean
// disconnect.
func SweepStaleConnections(hub *websocket.Hub) func() {
	return func() {
		if dropped := hub.SweepStale(); dropped > 0 {
			log.Printf("jobs: swept %d stale websocket connections", dropped)
		}
	}
}
