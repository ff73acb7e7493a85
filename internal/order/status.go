package order

import "ms-tableside/internal/models"

// next lists the forward moves of the kitchen flow. Cancellation is allowed from any
// non-terminal state and is not repeated here.
var next = map[models.OrderStatus]models.OrderStatus{
	models.OrderServerReview: models.OrderPending,
	models.OrderPending:      models.OrderPreparing,
	models.OrderPreparing:    models.OrderReady,
	models.OrderReady:        models.OrderServed,
}

func ValidStatus(s models.OrderStatus) bool {
	switch s {
	case models.OrderServerReview, models.OrderPending, models.OrderPreparing,
		models.OrderReady, models.OrderServed, models.OrderCancelled:
		return true
	}
	return false
}

func IsTerminal(s models.OrderStatus) bool {
	return s == models.OrderServed || s == models.OrderCancelled
}

// CanAdvance reports whether from -> to is a regular step of the flow.
func CanAdvance(from, to models.OrderStatus) bool {
	if IsTerminal(from) {
		return false
	}
	if to == models.OrderCancelled {
		return true
	}
	return next[from] == to
}
