package fiscal

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var (
	// ErrNoPeriod indicates the date falls outside every defined period.
	ErrNoPeriod = fmt.Errorf("fiscal: no period covers date: %w", shared.ErrNotFound)
	// ErrPeriodNotFound indicates a missing period id.
	ErrPeriodNotFound = fmt.Errorf("fiscal: period %w", shared.ErrNotFound)
	// ErrPeriodClosed indicates the period exists but no longer accepts postings.
	ErrPeriodClosed = fmt.Errorf("fiscal: period closed: %w", shared.ErrInvalidState)
	// ErrYearOverlap indicates the new year collides with an existing one.
	ErrYearOverlap = fmt.Errorf("fiscal: overlapping fiscal year: %w", shared.ErrValidation)
	// ErrYearClosed indicates period status changes on a closed year.
	ErrYearClosed = fmt.Errorf("fiscal: fiscal year closed: %w", shared.ErrInvalidState)
	// ErrBadYearBounds indicates the year does not span whole months.
	ErrBadYearBounds = fmt.Errorf("fiscal: year must start on the first and end on the last day of a month: %w", shared.ErrValidation)
)

// Repository encapsulates DB operations for the fiscal calendar.
type Repository interface {
	CreateFiscalYear(ctx context.Context, year FiscalYear, periods []Period) (FiscalYear, []Period, error)
	GetFiscalYear(ctx context.Context, orgID, id int64) (FiscalYear, error)
	HasOverlappingYear(ctx context.Context, orgID int64, start, end time.Time) (bool, error)
	PeriodFor(ctx context.Context, orgID int64, date time.Time) (Period, error)
	GetPeriod(ctx context.Context, orgID, id int64) (Period, error)
	ListPeriods(ctx context.Context, orgID, fiscalYearID int64) ([]Period, error)
	SetPeriodStatus(ctx context.Context, orgID, id int64, status PeriodStatus) error
}

// Service resolves dates to periods and maintains the fiscal calendar.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// PeriodFor resolves the period covering date, or ErrNoPeriod.
func (s *Service) PeriodFor(ctx context.Context, orgID int64, date time.Time) (Period, error) {
	return s.repo.PeriodFor(ctx, orgID, date)
}

// GetPeriod fetches a period by id.
func (s *Service) GetPeriod(ctx context.Context, orgID, id int64) (Period, error) {
	return s.repo.GetPeriod(ctx, orgID, id)
}

// AssertOpen rejects postings into anything but an OPEN period.
func AssertOpen(p Period) error {
	if p.Status != PeriodStatusOpen {
		return fmt.Errorf("%w: period %s", ErrPeriodClosed, p.Code)
	}
	return nil
}

// CreateFiscalYear registers a year and generates its monthly periods.
// The year must start on the first day of a month and end on the last day of
// a month so the generated periods partition it exactly.
func (s *Service) CreateFiscalYear(ctx context.Context, orgID int64, code string, start, end time.Time) (FiscalYear, []Period, error) {
	start = dateOnly(start)
	end = dateOnly(end)
	if !end.After(start) {
		return FiscalYear{}, nil, fmt.Errorf("fiscal: end must follow start: %w", shared.ErrValidation)
	}
	if start.Day() != 1 || end.AddDate(0, 0, 1).Day() != 1 {
		return FiscalYear{}, nil, ErrBadYearBounds
	}
	overlap, err := s.repo.HasOverlappingYear(ctx, orgID, start, end)
	if err != nil {
		return FiscalYear{}, nil, err
	}
	if overlap {
		return FiscalYear{}, nil, ErrYearOverlap
	}
	year := FiscalYear{OrgID: orgID, Code: code, StartDate: start, EndDate: end}
	return s.repo.CreateFiscalYear(ctx, year, monthlyPeriods(orgID, start, end))
}

// ClosePeriod stops further postings into the period.
func (s *Service) ClosePeriod(ctx context.Context, orgID, periodID int64) error {
	period, err := s.repo.GetPeriod(ctx, orgID, periodID)
	if err != nil {
		return err
	}
	if period.Status == PeriodStatusClosed {
		return fmt.Errorf("fiscal: period %s already closed: %w", period.Code, shared.ErrInvalidState)
	}
	return s.repo.SetPeriodStatus(ctx, orgID, periodID, PeriodStatusClosed)
}

// ReopenPeriod re-admits postings; refused once the fiscal year is closed.
func (s *Service) ReopenPeriod(ctx context.Context, orgID, periodID int64) error {
	period, err := s.repo.GetPeriod(ctx, orgID, periodID)
	if err != nil {
		return err
	}
	year, err := s.repo.GetFiscalYear(ctx, orgID, period.FiscalYearID)
	if err != nil {
		return err
	}
	if year.Closed {
		return ErrYearClosed
	}
	if period.Status == PeriodStatusOpen {
		return nil
	}
	return s.repo.SetPeriodStatus(ctx, orgID, periodID, PeriodStatusOpen)
}

// ListPeriods returns the periods of a fiscal year ordered by start date.
func (s *Service) ListPeriods(ctx context.Context, orgID, fiscalYearID int64) ([]Period, error) {
	return s.repo.ListPeriods(ctx, orgID, fiscalYearID)
}

func monthlyPeriods(orgID int64, start, end time.Time) []Period {
	var out []Period
	cursor := start
	for cursor.Before(end) {
		monthEnd := cursor.AddDate(0, 1, 0).AddDate(0, 0, -1)
		if monthEnd.After(end) {
			monthEnd = end
		}
		out = append(out, Period{
			OrgID:     orgID,
			Code:      cursor.Format("2006-01"),
			StartDate: cursor,
			EndDate:   monthEnd,
			Status:    PeriodStatusOpen,
		})
		cursor = monthEnd.AddDate(0, 0, 1)
	}
	return out
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
