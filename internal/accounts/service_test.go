package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryAccountRepo struct {
	accounts map[int64]Account
	nextID   int64
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{accounts: make(map[int64]Account)}
}

func (r *memoryAccountRepo) Resolve(ctx context.Context, orgID int64, code string) (Account, error) {
	for _, a := range r.accounts {
		if a.OrgID == orgID && a.Code == code {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (r *memoryAccountRepo) GetByID(ctx context.Context, orgID, id int64) (Account, error) {
	a, ok := r.accounts[id]
	if !ok || a.OrgID != orgID {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (r *memoryAccountRepo) List(ctx context.Context, orgID int64) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		if a.OrgID == orgID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryAccountRepo) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	for _, a := range r.accounts {
		if a.OrgID == in.OrgID && a.Code == in.Code {
			return Account{}, ErrDuplicateCode
		}
	}
	r.nextID++
	a := Account{
		ID:       r.nextID,
		OrgID:    in.OrgID,
		Code:     in.Code,
		Name:     in.Name,
		Type:     in.Type,
		ParentID: in.ParentID,
		IsGroup:  in.IsGroup,
		IsActive: true,
	}
	r.accounts[a.ID] = a
	return a, nil
}

func (r *memoryAccountRepo) SetActive(ctx context.Context, orgID, id int64, active bool) error {
	a, ok := r.accounts[id]
	if !ok || a.OrgID != orgID {
		return ErrAccountNotFound
	}
	a.IsActive = active
	r.accounts[id] = a
	return nil
}

func seedTree(t *testing.T, svc *Service) (root, child, leaf Account) {
	t.Helper()
	ctx := context.Background()
	root, err := svc.Create(ctx, CreateAccountInput{OrgID: 1, Code: "1000", Name: "Assets", Type: AccountTypeAsset, IsGroup: true})
	require.NoError(t, err)
	child, err = svc.Create(ctx, CreateAccountInput{OrgID: 1, Code: "1100", Name: "Current Assets", Type: AccountTypeAsset, ParentID: &root.ID, IsGroup: true})
	require.NoError(t, err)
	leaf, err = svc.Create(ctx, CreateAccountInput{OrgID: 1, Code: "1110", Name: "Cash", Type: AccountTypeAsset, ParentID: &child.ID})
	require.NoError(t, err)
	return root, child, leaf
}

func TestResolveByCode(t *testing.T) {
	svc := NewService(newMemoryAccountRepo(), nil)
	_, _, leaf := seedTree(t, svc)

	got, err := svc.Resolve(context.Background(), 1, "1110")
	require.NoError(t, err)
	require.Equal(t, leaf.ID, got.ID)

	_, err = svc.Resolve(context.Background(), 2, "1110")
	require.ErrorIs(t, err, ErrAccountNotFound, "codes are scoped per organization")

	_, err = svc.Resolve(context.Background(), 1, "9999")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestPostableRules(t *testing.T) {
	svc := NewService(newMemoryAccountRepo(), nil)
	root, _, leaf := seedTree(t, svc)

	require.True(t, IsPostable(leaf))
	require.False(t, IsPostable(root), "group accounts are never postable")
	require.ErrorIs(t, AssertPostable(root), ErrInvalidAccount)

	require.NoError(t, svc.Deactivate(context.Background(), 1, leaf.ID))
	got, err := svc.Get(context.Background(), 1, leaf.ID)
	require.NoError(t, err)
	require.False(t, IsPostable(got))
}

func TestAncestorsRootToSelf(t *testing.T) {
	svc := NewService(newMemoryAccountRepo(), nil)
	root, child, leaf := seedTree(t, svc)

	chain, err := svc.Ancestors(context.Background(), 1, leaf.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, []int64{root.ID, child.ID, leaf.ID}, []int64{chain[0].ID, chain[1].ID, chain[2].ID})
}

func TestAncestorsDetectsCycle(t *testing.T) {
	repo := newMemoryAccountRepo()
	svc := NewService(repo, nil)
	_, _, leaf := seedTree(t, svc)

	// Corrupt the chain: point the root at the leaf.
	broken := repo.accounts[1]
	broken.ParentID = &leaf.ID
	repo.accounts[1] = broken

	_, err := svc.Ancestors(context.Background(), 1, leaf.ID)
	require.Error(t, err)
}

func TestCreateRejectsLeafParentAndTypeMismatch(t *testing.T) {
	svc := NewService(newMemoryAccountRepo(), nil)
	root, _, leaf := seedTree(t, svc)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAccountInput{OrgID: 1, Code: "1111", Name: "Petty Cash", Type: AccountTypeAsset, ParentID: &leaf.ID})
	require.ErrorIs(t, err, ErrParentNotGroup)

	_, err = svc.Create(ctx, CreateAccountInput{OrgID: 1, Code: "4000", Name: "Sales", Type: AccountTypeRevenue, ParentID: &root.ID})
	require.Error(t, err, "child type must match parent type")

	_, err = svc.Create(ctx, CreateAccountInput{OrgID: 1, Code: "1110", Name: "Cash Again", Type: AccountTypeAsset})
	require.ErrorIs(t, err, ErrDuplicateCode)
}
