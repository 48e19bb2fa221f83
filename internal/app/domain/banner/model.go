package banner

import "time"

// Banner is a homepage promotion slot.
type Banner struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Subtitle  string     `json:"subtitle"`
	ImageURL  string     `json:"image_url"`
	LinkURL   string     `json:"link_url"`
	Position  int        `json:"position"`
	Active    bool       `json:"active"`
	StartsAt  *time.Time `json:"starts_at"`
	EndsAt    *time.Time `json:"ends_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Visible reports whether the banner should be shown at now.
func (b Banner) Visible(now time.Time) bool {
	if !b.Active {
		return false
	}
	if b.StartsAt != nil && now.Before(*b.StartsAt) {
		return false
	}
	if b.EndsAt != nil && !now.Before(*b.EndsAt) {
		return false
	}
	return true
}
