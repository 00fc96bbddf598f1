package doctors

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source records where a Doctor came from.
type Source string

const (
	SourceRoster  Source = "roster"
	SourceProfile Source = "profile"
)

// Qualification categories a doctor may hold.
var Categories = []string{"highest", "first", "second", "none"}

// Doctor is the unified view of a doctor regardless of provenance.
type Doctor struct {
	ID          uuid.UUID `json:"id" yaml:"id"`
	FullName    string    `json:"full_name" yaml:"full_name"`
	Specialty   string    `json:"specialty" yaml:"specialty"`
	Department  string    `json:"department" yaml:"department"`
	Experience  int       `json:"experience" yaml:"experience"`
	Category    string    `json:"category" yaml:"category"`
	Education   string    `json:"education" yaml:"education"`
	Description string    `json:"description" yaml:"description"`
	PhotoURL    string    `json:"photo_url,omitempty" yaml:"photo_url"`
	Source      Source    `json:"source" yaml:"-"`
}

// Profile is a doctor-maintained profile row. The profile's ID is the
// doctor's user ID, which is also the doctor ID used by schedules and
// appointments.
type Profile struct {
	ID          uuid.UUID  `json:"id"`
	FullName    string     `json:"full_name"`
	Specialty   string     `json:"specialty"`
	Department  string     `json:"department"`
	Experience  int        `json:"experience"`
	Category    string     `json:"category"`
	Education   string     `json:"education"`
	Description string     `json:"description"`
	PhotoBlobID *uuid.UUID `json:"photo_blob_id,omitempty"`
	IsPublished bool       `json:"is_published"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AvatarPath is the public URL of a doctor's uploaded avatar.
func AvatarPath(id uuid.UUID) string {
	return "/api/v1/doctors/" + id.String() + "/avatar"
}

// Doctor converts a profile to the directory view.
func (p *Profile) Doctor() *Doctor {
	d := &Doctor{
		ID:          p.ID,
		FullName:    p.FullName,
		Specialty:   p.Specialty,
		Department:  p.Department,
		Experience:  p.Experience,
		Category:    p.Category,
		Education:   p.Education,
		Description: p.Description,
		Source:      SourceProfile,
	}
	if d.FullName == "" {
		d.FullName = "Doctor"
	}
	if p.PhotoBlobID != nil {
		d.PhotoURL = AvatarPath(p.ID)
	}
	return d
}

// ListFilter narrows a directory listing. Empty fields match everything;
// Query matches name or specialty case-insensitively.
type ListFilter struct {
	Specialty  string
	Department string
	Query      string
}

func (f ListFilter) Match(d *Doctor) bool {
	if f.Specialty != "" && !strings.EqualFold(d.Specialty, f.Specialty) {
		return false
	}
	if f.Department != "" && !strings.EqualFold(d.Department, f.Department) {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(d.FullName), q) && !strings.Contains(strings.ToLower(d.Specialty), q) {
			return false
		}
	}
	return true
}

var ErrNotFound = errors.New("doctor not found")
