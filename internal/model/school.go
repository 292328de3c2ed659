// Package model defines the normalized school record shared by all state
// scrapers, plus the tolerant field helpers used to build it from messy
// upstream payloads.
package model

// School is the normalized record every state scraper produces. All fields
// are optional; scrapers fill whatever the source provides. ID is namespaced
// with the state prefix (e.g. "BE-04K07") so records stay unique across the
// combined result set.
type School struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Address     string   `json:"address,omitempty"`
	Address2    string   `json:"address2,omitempty"`
	Zip         string   `json:"zip,omitempty"`
	City        string   `json:"city,omitempty"`
	Website     string   `json:"website,omitempty"`
	Email       string   `json:"email,omitempty"`
	SchoolType  string   `json:"school_type,omitempty"`
	LegalStatus string   `json:"legal_status,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Fax         string   `json:"fax,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Director    string   `json:"director,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (s *School) HasCoordinates() bool {
	return s.Latitude != nil && s.Longitude != nil
}
