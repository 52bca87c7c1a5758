package lifecycle

import "github.com/example/ride-dispatch/internal/models"

// AllowedTransitions is the complete ride state machine. Terminal statuses
// have no outgoing edges.
var AllowedTransitions = map[models.RideStatus][]models.RideStatus{
	models.StatusPending:    {models.StatusAccepted, models.StatusCancelled},
	models.StatusAccepted:   {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted, models.StatusCancelled},
}

func CanTransition(from, to models.RideStatus) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
