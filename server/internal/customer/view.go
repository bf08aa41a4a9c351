package customer

import (
	"time"

	"github.com/clientledger/clientledger/server/internal/compute"
	"github.com/clientledger/clientledger/server/internal/store"
)

// Date is a calendar date that marshals as "YYYY-MM-DD".
type Date time.Time

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(d).Format(time.DateOnly) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return &time.ParseError{Layout: time.DateOnly, Value: string(b)}
	}
	t, err := time.Parse(time.DateOnly, string(b[1:len(b)-1]))
	if err != nil {
		return err
	}
	*d = Date(t)
	return nil
}

func (d Date) String() string { return time.Time(d).Format(time.DateOnly) }

// Equal reports whether d and o are the same calendar date.
func (d Date) Equal(o Date) bool { return time.Time(d).Equal(time.Time(o)) }

// View is a customer record together with its projection, as rendered to
// API clients.
type View struct {
	ID             int64     `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Age            int       `json:"age"`
	BirthDate      Date      `json:"birth_date"`
	ProjectedDate  Date      `json:"projected_date"`
	RemainingYears int       `json:"remaining_years"`
	RemainingDays  int       `json:"remaining_days"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Page is one page of customer views. Page numbers start at 0.
type Page struct {
	Items      []View `json:"items"`
	Page       int    `json:"page"`
	Size       int    `json:"size"`
	TotalItems int    `json:"total_items"`
	TotalPages int    `json:"total_pages"`
}

// Stats is a statistics report stamped with the time it was computed.
type Stats struct {
	compute.Report
	GeneratedAt time.Time
}

func (s *Service) view(c *store.Customer, today time.Time) View {
	p := compute.Project(c.BirthDate, s.lifeExpectancy, today)
	return View{
		ID:             c.ID,
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		Age:            c.Age,
		BirthDate:      Date(c.BirthDate),
		ProjectedDate:  Date(p.ProjectedDate),
		RemainingYears: p.RemainingYears,
		RemainingDays:  p.RemainingDays,
		CreatedBy:      c.CreatedBy,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
