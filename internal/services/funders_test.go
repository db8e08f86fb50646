package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poen/internal/core"
	"poen/internal/ledger/memory"
)

func TestFunderService(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewFunderService(store)

	pid, err := store.CreateProject(ctx, core.Project{Name: "Wijkfeest"})
	require.NoError(t, err)

	id, err := svc.Save(ctx, core.Funder{ProjectID: pid, Name: " Gemeente ", URL: "https://gemeente.nl"})
	require.NoError(t, err)

	_, err = svc.Save(ctx, core.Funder{ProjectID: pid, Name: "Fonds", URL: "fonds.nl"})
	assert.ErrorIs(t, err, core.ErrInvalidURL)

	_, err = svc.Save(ctx, core.Funder{ProjectID: pid + 100, Name: "Fonds", URL: "https://fonds.nl"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Updating by id keeps the project.
	got, err := svc.Save(ctx, core.Funder{ID: id, Name: "Stadsdeel Noord", URL: "https://noord.nl"})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	funders, err := svc.ForProject(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, []core.Funder{{ID: id, ProjectID: pid, Name: "Stadsdeel Noord", URL: "https://noord.nl"}}, funders)

	_, err = svc.ForProject(ctx, pid+100)
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, svc.Remove(ctx, id))
	assert.ErrorIs(t, svc.Remove(ctx, id), core.ErrNotFound)
}
