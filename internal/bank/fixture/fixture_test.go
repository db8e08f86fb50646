package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poen/internal/bank"
)

func records(ids ...int64) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, json.RawMessage(fmt.Sprintf(`{"id": %d}`, id)))
	}
	return out
}

func TestListPaymentsPagesBackward(t *testing.T) {
	p := New(map[int64]History{
		1: {Accounts: []Account{{ID: 10, Payments: records(5, 4, 3, 2, 1)}}},
	})
	cred := bank.Credential{ProjectID: 1}
	ctx := context.Background()

	page, err := p.ListPayments(ctx, cred, 10, bank.Cursor{Count: 2})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.NotNil(t, page.Previous)
	assert.Equal(t, int64(4), recordID(page.Records[1]))

	page, err = p.ListPayments(ctx, cred, 10, *page.Previous)
	require.NoError(t, err)
	assert.Equal(t, int64(3), recordID(page.Records[0]))

	page, err = p.ListPayments(ctx, cred, 10, *page.Previous)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Nil(t, page.Previous)
}

func TestMonetaryAccountsFromDir(t *testing.T) {
	dir := t.TempDir()
	content := `{"accounts": [{"id": 3, "description": "Main", "aliases": [{"type": "IBAN", "value": "NL01", "name": "Poen"}], "payments": []}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project_7.json"), []byte(content), 0o644))

	p := NewFromDir(dir)
	accs, err := p.MonetaryAccounts(context.Background(), bank.Credential{ProjectID: 7})
	require.NoError(t, err)
	require.Len(t, accs, 1)

	alias, ok := accs[0].IBANAlias()
	require.True(t, ok)
	assert.Equal(t, "NL01", alias.Value)
	assert.Equal(t, "Poen", alias.Name)

	_, err = p.MonetaryAccounts(context.Background(), bank.Credential{ProjectID: 8})
	assert.Error(t, err)
}

func TestFailAccount(t *testing.T) {
	p := New(map[int64]History{1: {Accounts: []Account{{ID: 10}}}})
	p.FailAccount(10, assert.AnError)

	_, err := p.ListPayments(context.Background(), bank.Credential{ProjectID: 1}, 10, bank.FirstPage(0))
	assert.ErrorIs(t, err, assert.AnError)
}
