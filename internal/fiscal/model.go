package fiscal

import "time"

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
)

// FiscalYear represents one accounting year for an organization.
// Years never overlap within an organization.
type FiscalYear struct {
	ID        int64
	OrgID     int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Closed    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Period represents a fiscal period window. Periods partition their fiscal
// year without gaps or overlaps; postings only land in OPEN periods.
type Period struct {
	ID           int64
	OrgID        int64
	FiscalYearID int64
	Code         string
	StartDate    time.Time
	EndDate      time.Time
	Status       PeriodStatus
	ClosedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Contains reports whether date falls inside the period window (inclusive).
func (p Period) Contains(date time.Time) bool {
	d := date.Truncate(24 * time.Hour)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}
