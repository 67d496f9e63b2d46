package models

// Pricing models reported by the external provider for add-on packages.
const (
	PricingPerStay  = "per_stay"
	PricingPerNight = "per_night"
	PricingPerGuest = "per_guest"
)

// AvailablePackage is one cached add-on package offer for a single day.
type AvailablePackage struct {
	PackageID    int64   `json:"package_id"`
	Code         string  `json:"code"`
	Name         string  `json:"name,omitempty"`
	PricingModel string  `json:"pricing_model"`
	Quantity     int64   `json:"quantity"`
	BasePrice    float64 `json:"base_price"`
	TaxAmount    float64 `json:"tax_amount,omitempty"`
	TotalPrice   float64 `json:"total_price"`
}
