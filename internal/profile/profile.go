// Package profile defines the canonical record emitted by the extraction
// pipelines and persisted by the profile store.
package profile

// Coordinates is a longitude/latitude pair resolved from a location query.
type Coordinates struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Address is embedded in a Profile; it is never persisted on its own. All
// fields are best-effort single values.
type Address struct {
	Prefecture string `json:"prefecture,omitempty"`
	City       string `json:"city,omitempty"`
	Street     string `json:"street,omitempty"`
	Postal     string `json:"postal,omitempty"`
}

// Profile is one normalized professional-listing record. ContactName is the
// only required field; records without it are never emitted. Pointer fields
// are nil when the source had no usable value, which is acceptable output
// rather than an error.
type Profile struct {
	ContactName  string  `json:"contact_name"`
	ActivityArea string  `json:"activity_area,omitempty"`
	Address      Address `json:"address"`

	// Coordinates is nil when geo resolution failed or timed out.
	Coordinates *Coordinates `json:"coordinates,omitempty"`

	CompanyName string `json:"company_name,omitempty"`
	ServiceCost string `json:"service_cost,omitempty"`

	ReviewsCount      *int `json:"reviews_count,omitempty"`
	ProjectsDoneCount *int `json:"projects_done_count,omitempty"`

	Website    string `json:"website,omitempty"`
	Email      string `json:"email,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`

	// PhoneNumber holds the E.164 form when parsing succeeded, otherwise the
	// raw source string unmodified.
	PhoneNumber string `json:"phone_number,omitempty"`

	ProRating *float64 `json:"pro_rating,omitempty"`
}

// Complete reports whether the record may be emitted.
func (p Profile) Complete() bool {
	return p.ContactName != ""
}
