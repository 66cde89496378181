package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var (
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = fmt.Errorf("accounts: account %w", shared.ErrNotFound)
	// ErrInvalidAccount indicates the account cannot receive postings.
	ErrInvalidAccount = fmt.Errorf("accounts: account not postable: %w", shared.ErrValidation)
	// ErrDuplicateCode indicates the code is already used within the organization.
	ErrDuplicateCode = fmt.Errorf("accounts: duplicate code: %w", shared.ErrValidation)
	// ErrParentNotGroup indicates a child was attached to a leaf account.
	ErrParentNotGroup = fmt.Errorf("accounts: parent is not a group account: %w", shared.ErrValidation)
)

// maxTreeDepth bounds the ancestor walk; CoA trees deeper than this indicate
// a corrupt parent chain.
const maxTreeDepth = 32

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	Resolve(ctx context.Context, orgID int64, code string) (Account, error)
	GetByID(ctx context.Context, orgID, id int64) (Account, error)
	List(ctx context.Context, orgID int64) ([]Account, error)
	Create(ctx context.Context, in CreateAccountInput) (Account, error)
	SetActive(ctx context.Context, orgID, id int64, active bool) error
}

// CreateAccountInput groups fields for creating an account.
type CreateAccountInput struct {
	OrgID    int64
	Code     string
	Name     string
	Type     AccountType
	ParentID *int64
	IsGroup  bool
}

// Service resolves and maintains the chart of accounts index.
type Service struct {
	repo  Repository
	cache *cache.ReadThrough
}

// NewService builds a Service instance.
func NewService(repo Repository, listCache *cache.ReadThrough) *Service {
	return &Service{repo: repo, cache: listCache}
}

// Resolve looks up an account by organization and code.
func (s *Service) Resolve(ctx context.Context, orgID int64, code string) (Account, error) {
	if code == "" {
		return Account{}, fmt.Errorf("accounts: code required: %w", shared.ErrValidation)
	}
	return s.repo.Resolve(ctx, orgID, code)
}

// Get fetches an account by id.
func (s *Service) Get(ctx context.Context, orgID, id int64) (Account, error) {
	return s.repo.GetByID(ctx, orgID, id)
}

// IsPostable reports whether postings may target the account.
func IsPostable(a Account) bool {
	return a.IsActive && !a.IsGroup
}

// AssertPostable rejects group and inactive accounts.
func AssertPostable(a Account) error {
	if !IsPostable(a) {
		return fmt.Errorf("%w: account %s", ErrInvalidAccount, a.Code)
	}
	return nil
}

// Ancestors returns the chain root..self for rollup reporting.
func (s *Service) Ancestors(ctx context.Context, orgID, id int64) ([]Account, error) {
	var chain []Account
	seen := map[int64]struct{}{}
	current, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	for {
		if _, dup := seen[current.ID]; dup || len(chain) >= maxTreeDepth {
			return nil, fmt.Errorf("accounts: parent cycle at account %d: %w", current.ID, shared.ErrInvalidState)
		}
		seen[current.ID] = struct{}{}
		chain = append([]Account{current}, chain...)
		if current.ParentID == nil {
			return chain, nil
		}
		current, err = s.repo.GetByID(ctx, orgID, *current.ParentID)
		if err != nil {
			return nil, err
		}
	}
}

// List returns all accounts for the organization through the read-through cache.
func (s *Service) List(ctx context.Context, orgID int64) ([]Account, error) {
	if s.cache == nil {
		return s.repo.List(ctx, orgID)
	}
	var out []Account
	err := s.cache.FetchJSON(ctx, s.cache.Key(orgID, "ALL"), &out, func(ctx context.Context) (any, error) {
		return s.repo.List(ctx, orgID)
	})
	return out, err
}

// Create registers a new account node.
func (s *Service) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	if in.Code == "" || in.Name == "" {
		return Account{}, fmt.Errorf("accounts: code and name required: %w", shared.ErrValidation)
	}
	if !ValidType(in.Type) {
		return Account{}, fmt.Errorf("accounts: unknown type %q: %w", in.Type, shared.ErrValidation)
	}
	if in.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, in.OrgID, *in.ParentID)
		if err != nil {
			return Account{}, err
		}
		if !parent.IsGroup {
			return Account{}, ErrParentNotGroup
		}
		if parent.Type != in.Type {
			return Account{}, fmt.Errorf("accounts: child type must match parent: %w", shared.ErrValidation)
		}
	}
	created, err := s.repo.Create(ctx, in)
	if err != nil {
		return Account{}, err
	}
	s.invalidate(ctx, in.OrgID)
	return created, nil
}

// Deactivate retires an account; postings against it fail afterwards.
func (s *Service) Deactivate(ctx context.Context, orgID, id int64) error {
	if err := s.repo.SetActive(ctx, orgID, id, false); err != nil {
		return err
	}
	s.invalidate(ctx, orgID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, orgID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, orgID); err != nil && !errors.Is(err, context.Canceled) {
		// Stale listings expire with the TTL; mutation must not fail on cache errors.
		_ = err
	}
}
