package services

import (
	"context"
	"strings"

	"poen/internal/core"
	"poen/internal/ledger"
)

// CategoryService manages the payment categories of projects and
// subprojects.
type CategoryService struct {
	store ledger.Store
}

func NewCategoryService(store ledger.Store) *CategoryService {
	return &CategoryService{store: store}
}

func (s *CategoryService) Create(ctx context.Context, c core.Category) (int64, error) {
	c.ID = 0
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		if c.ProjectID != nil {
			if _, err := tx.GetProject(ctx, *c.ProjectID); err != nil {
				return err
			}
		} else if _, err := tx.GetSubproject(ctx, *c.SubprojectID); err != nil {
			return err
		}
		var err error
		id, err = tx.CreateCategory(ctx, c)
		return err
	})
	return id, err
}

func (s *CategoryService) Rename(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.ErrEmptyName
	}
	return s.store.RenameCategory(ctx, id, name)
}

// Delete removes a category; its payments lose the category link.
func (s *CategoryService) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteCategory(ctx, id)
}

func (s *CategoryService) ForProject(ctx context.Context, projectID int64) ([]core.Category, error) {
	return s.store.ListCategories(ctx, &projectID, nil)
}

func (s *CategoryService) ForSubproject(ctx context.Context, subprojectID int64) ([]core.Category, error) {
	return s.store.ListCategories(ctx, nil, &subprojectID)
}
