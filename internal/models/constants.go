package models

const (
	// DefaultSyncBatchSize bounds how many refresh keys one sync cycle may
	// process, which bounds external provider load per cycle.
	DefaultSyncBatchSize = 4

	// DefaultHorizonMonths is the rolling coverage window for refresh keys.
	DefaultHorizonMonths = 12

	// DefaultReservationBlockDays is the size of one revalidation window.
	DefaultReservationBlockDays = 7

	// DefaultRedemptionRatio converts one currency unit to loyalty points.
	DefaultRedemptionRatio = 100.0

	// DefaultPageSize is the search result page size.
	DefaultPageSize = 20
)
