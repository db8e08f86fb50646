package services

import (
	"context"
	"strings"

	"poen/internal/core"
	"poen/internal/ledger"
)

// FunderService keeps the list of organizations funding a project.
type FunderService struct {
	store ledger.Store
}

func NewFunderService(store ledger.Store) *FunderService {
	return &FunderService{store: store}
}

// Save creates the funder when f.ID is zero and updates its name and url
// otherwise.
func (s *FunderService) Save(ctx context.Context, f core.Funder) (int64, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.URL = strings.TrimSpace(f.URL)
	if f.ID != 0 && f.ProjectID == 0 {
		cur, err := s.store.GetFunder(ctx, f.ID)
		if err != nil {
			return 0, err
		}
		f.ProjectID = cur.ProjectID
	}
	if err := f.Validate(); err != nil {
		return 0, err
	}
	if f.ID != 0 {
		return f.ID, s.store.UpdateFunder(ctx, f)
	}
	return s.store.CreateFunder(ctx, f)
}

func (s *FunderService) Remove(ctx context.Context, id int64) error {
	return s.store.DeleteFunder(ctx, id)
}

// ForProject lists a project's funders; an unknown project is ErrNotFound.
func (s *FunderService) ForProject(ctx context.Context, projectID int64) ([]core.Funder, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.ListFunders(ctx, projectID)
}
