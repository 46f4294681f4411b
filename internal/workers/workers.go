package workers

import (
	"time"

	"github.com/nagomirachel/flagsmith/internal/platform/repositories"
	"github.com/rs/zerolog/log"
)

// ReapStaleDeliveries finalizes deliveries the dispatcher started but never
// finished, usually because the process died mid-dispatch. Marking them
// failed keeps every delivery accounted for instead of leaving rows parked in
// pending forever.
func ReapStaleDeliveries(deliveryRepo *repositories.DeliveryRepository, staleAfter time.Duration) {
	cutoff := time.Now().Add(-staleAfter).Unix()

	reaped, err := deliveryRepo.MarkStaleFailed(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to reap stale deliveries")
		return
	}
	if reaped > 0 {
		log.Warn().Int64("count", reaped).Msg("marked stale deliveries as failed")
	}
}
