// Package fixture is a bank.Provider backed by recorded JSON histories.
// It serves development setups and tests; it never talks to a bank.
package fixture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"poen/internal/bank"
)

const olderThanParam = "older_id"

type (
	// History is the recorded state of one project's bank link.
	History struct {
		Accounts []Account `json:"accounts"`
	}

	Account struct {
		ID          int64               `json:"id"`
		Description string              `json:"description"`
		Aliases     []bank.AccountAlias `json:"aliases"`
		// Payments are ordered newest first, as the bank lists them.
		Payments []json.RawMessage `json:"payments"`
	}
)

type Provider struct {
	mu        sync.Mutex
	histories map[int64]History
	dir       string
	calls     int
	fail      map[int64]error
}

// New serves the given histories keyed by project id.
func New(histories map[int64]History) *Provider {
	if histories == nil {
		histories = map[int64]History{}
	}
	return &Provider{histories: histories, fail: map[int64]error{}}
}

// NewFromDir serves project_<id>.json files found in dir, read on demand.
func NewFromDir(dir string) *Provider {
	p := New(nil)
	p.dir = dir
	return p
}

// Set replaces the history of a project.
func (p *Provider) Set(projectID int64, h History) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.histories[projectID] = h
}

// FailAccount makes every ListPayments call for the account return err.
func (p *Provider) FailAccount(accountID int64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail[accountID] = err
}

// Calls reports how many provider calls were served.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *Provider) MonetaryAccounts(ctx context.Context, cred bank.Credential) ([]bank.MonetaryAccount, error) {
	h, err := p.history(cred.ProjectID)
	if err != nil {
		return nil, err
	}
	out := make([]bank.MonetaryAccount, 0, len(h.Accounts))
	for _, a := range h.Accounts {
		out = append(out, bank.MonetaryAccount{ID: a.ID, Description: a.Description, Aliases: a.Aliases})
	}
	return out, nil
}

func (p *Provider) ListPayments(ctx context.Context, cred bank.Credential, accountID int64, cursor bank.Cursor) (bank.Page, error) {
	h, err := p.history(cred.ProjectID)
	if err != nil {
		return bank.Page{}, err
	}

	p.mu.Lock()
	failErr := p.fail[accountID]
	p.mu.Unlock()
	if failErr != nil {
		return bank.Page{}, failErr
	}

	var acc *Account
	for i := range h.Accounts {
		if h.Accounts[i].ID == accountID {
			acc = &h.Accounts[i]
			break
		}
	}
	if acc == nil {
		return bank.Page{}, fmt.Errorf("monetary account %d not found", accountID)
	}

	start := 0
	if raw, ok := cursor.Params[olderThanParam]; ok {
		olderThan, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return bank.Page{}, fmt.Errorf("invalid cursor %q: %w", raw, err)
		}
		start = len(acc.Payments)
		for i, rec := range acc.Payments {
			if recordID(rec) == olderThan {
				start = i + 1
				break
			}
		}
	}

	count := cursor.Count
	if count <= 0 {
		count = bank.DefaultPageSize
	}
	end := min(start+count, len(acc.Payments))

	page := bank.Page{}
	for _, rec := range acc.Payments[start:end] {
		page.Records = append(page.Records, bank.RawPayment(rec))
	}
	if end < len(acc.Payments) && len(page.Records) > 0 {
		last := recordID(page.Records[len(page.Records)-1])
		page.Previous = &bank.Cursor{
			Count:  count,
			Params: map[string]string{olderThanParam: strconv.FormatInt(last, 10)},
		}
	}
	return page, nil
}

func (p *Provider) history(projectID int64) (History, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	if h, ok := p.histories[projectID]; ok {
		return h, nil
	}
	if p.dir == "" {
		return History{}, fmt.Errorf("no fixture for project %d", projectID)
	}

	path := filepath.Join(p.dir, fmt.Sprintf("project_%d.json", projectID))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return History{}, fmt.Errorf("no fixture for project %d", projectID)
		}
		return History{}, fmt.Errorf("read fixture: %w", err)
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return History{}, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return h, nil
}

func recordID(rec []byte) int64 {
	var head struct {
		ID int64 `json:"id"`
	}
	_ = json.Unmarshal(rec, &head)
	return head.ID
}
