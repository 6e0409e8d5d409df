package tracking

// Order statuses pushed by the gateway. The stage index drives progress
// displays; statuses outside the map yield stage 0.
const (
	StatusPending          = "PENDING"
	StatusPreparing        = "PREPARING"
	StatusReadyForPickup   = "READY_FOR_PICKUP"
	StatusDispatched       = "DISPATCHED"
	StatusRestaurantPickup = "RESTAURANT_PICKUP"
	StatusEnRoute          = "EN_ROUTE"
	StatusDelivered        = "DELIVERED"
	StatusCancelled        = "CANCELLED"
)

var stageIndex = map[string]int{
	StatusPending:          1,
	StatusPreparing:        2,
	StatusReadyForPickup:   3,
	StatusDispatched:       4,
	StatusRestaurantPickup: 5,
	StatusEnRoute:          6,
	StatusDelivered:        7,
}

// Stage returns the fixed progress stage for a status, 0 when unknown.
func Stage(status string) int {
	return stageIndex[status]
}

// IsTerminal reports whether a status ends the delivery flow. A terminal
// push keeps the record, flagged for the UI; deletion only happens when the
// authoritative snapshot no longer lists the order.
func IsTerminal(status string) bool {
	return status == StatusDelivered || status == StatusCancelled
}
