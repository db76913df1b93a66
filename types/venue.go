package types

type VenueType string

const (
	VenueTypeWinery     VenueType = "winery"
	VenueTypeRestaurant VenueType = "restaurant"
	VenueTypeHotel      VenueType = "hotel"
)

// IsValid checks if the venue type is known
func (t VenueType) IsValid() bool {
	switch t {
	case VenueTypeWinery, VenueTypeRestaurant, VenueTypeHotel:
		return true
	default:
		return false
	}
}

// Venue is read-only reference data used to resolve names found in imported documents.
type Venue struct {
	ID   int64     `json:"id" yaml:"id"`
	Name string    `json:"name" yaml:"name"`
	Type VenueType `json:"type" yaml:"type"`
}
