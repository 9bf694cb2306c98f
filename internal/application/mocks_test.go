package application

import (
	"context"
	"sync"
	"time"

	"github.com/quotawatch/quotawatch/internal/domain/model"
	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
)

// In-memory port implementations for service tests.

type mockCredentialStore struct {
	mu     sync.Mutex
	nextID int64
	creds  map[int64]*model.Credential
}

var _ driven.CredentialStore = (*mockCredentialStore)(nil)

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{creds: make(map[int64]*model.Credential)}
}

func (m *mockCredentialStore) Create(_ context.Context, cred *model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cred.ID = m.nextID
	cred.CreatedAt = time.Now().UTC()
	c := *cred
	m.creds[cred.ID] = &c
	return nil
}

func (m *mockCredentialStore) GetByID(_ context.Context, id int64) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *mockCredentialStore) ListActive(_ context.Context) ([]model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Credential
	for id := int64(1); id <= m.nextID; id++ {
		if c, ok := m.creds[id]; ok && c.Active {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockCredentialStore) Update(_ context.Context, cred *model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.creds[cred.ID]
	c.Name = cred.Name
	c.Metadata = cred.Metadata
	c.EncryptedSecret = cred.EncryptedSecret
	c.Active = cred.Active
	c.NeedsAttention = false
	c.LastError = ""
	return nil
}

func (m *mockCredentialStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, id)
	return nil
}

func (m *mockCredentialStore) RecordCheckSuccess(_ context.Context, id int64, balance float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.creds[id]
	c.LastKnownBalance = &balance
	c.LastCheckedAt = &at
	c.NeedsAttention = false
	c.LastError = ""
	return nil
}

func (m *mockCredentialStore) RecordCheckFailure(_ context.Context, id int64, checkErr string, needsAttention bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.creds[id]
	c.LastError = checkErr
	c.LastCheckedAt = &at
	if needsAttention {
		c.NeedsAttention = true
	}
	return nil
}

type mockProviderStore struct {
	providers map[int64]*model.Provider
}

var _ driven.ProviderStore = (*mockProviderStore)(nil)

func newMockProviderStore(providers ...*model.Provider) *mockProviderStore {
	m := &mockProviderStore{providers: make(map[int64]*model.Provider)}
	for _, p := range providers {
		m.providers[p.ID] = p
	}
	return m
}

func (m *mockProviderStore) GetByID(_ context.Context, id int64) (*model.Provider, error) {
	p, ok := m.providers[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockProviderStore) GetBySlug(_ context.Context, slug string) (*model.Provider, error) {
	for _, p := range m.providers {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockProviderStore) ListAll(_ context.Context) ([]model.Provider, error) {
	var out []model.Provider
	for _, p := range m.providers {
		out = append(out, *p)
	}
	return out, nil
}

type mockHistoryStore struct {
	mu     sync.Mutex
	nextID int64
	obs    []model.BalanceObservation
}

var _ driven.HistoryStore = (*mockHistoryStore)(nil)

func newMockHistoryStore() *mockHistoryStore {
	return &mockHistoryStore{}
}

func (m *mockHistoryStore) Append(_ context.Context, obs *model.BalanceObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	obs.ID = m.nextID
	m.obs = append(m.obs, *obs)
	return nil
}

func (m *mockHistoryStore) Range(_ context.Context, credentialID int64, from, to time.Time) ([]model.BalanceObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BalanceObservation
	for _, o := range m.obs {
		if o.CredentialID == credentialID && !o.ObservedAt.Before(from) && !o.ObservedAt.After(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockHistoryStore) LatestSuccessBefore(_ context.Context, credentialID int64, beforeID int64) (*model.BalanceObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.obs) - 1; i >= 0; i-- {
		o := m.obs[i]
		if o.CredentialID != credentialID || o.Failed() {
			continue
		}
		if beforeID > 0 && o.ID >= beforeID {
			continue
		}
		cp := o
		return &cp, nil
	}
	return nil, nil
}

func (m *mockHistoryStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []model.BalanceObservation
	var pruned int64
	for _, o := range m.obs {
		if o.ObservedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, o)
	}
	m.obs = kept
	return pruned, nil
}

func (m *mockHistoryStore) all() []model.BalanceObservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.BalanceObservation, len(m.obs))
	copy(out, m.obs)
	return out
}

type mockRuleStore struct {
	mu     sync.Mutex
	nextID int64
	rules  map[int64]*model.NotificationRule
}

var _ driven.RuleStore = (*mockRuleStore)(nil)

func newMockRuleStore() *mockRuleStore {
	return &mockRuleStore{rules: make(map[int64]*model.NotificationRule)}
}

func (m *mockRuleStore) Create(_ context.Context, rule *model.NotificationRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rule.ID = m.nextID
	cp := *rule
	m.rules[rule.ID] = &cp
	return nil
}

func (m *mockRuleStore) ListByCredential(_ context.Context, credentialID int64) ([]model.NotificationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.NotificationRule
	for id := int64(1); id <= m.nextID; id++ {
		if r, ok := m.rules[id]; ok && r.CredentialID == credentialID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockRuleStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, id)
	return nil
}

func (m *mockRuleStore) MarkFired(_ context.Context, id int64, balance float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rules[id]
	r.LastFiredAt = &at
	r.LastFiredBalance = &balance
	return nil
}

// mockAdapter returns canned results or errors and counts calls. A
// non-nil block channel makes FetchBalance wait until it is closed.
type mockAdapter struct {
	mu      sync.Mutex
	calls   int
	results []model.BalanceResult
	errs    []error
	block   chan struct{}
	started chan struct{}
}

var _ driven.BalanceAdapter = (*mockAdapter)(nil)

func (m *mockAdapter) FetchBalance(ctx context.Context, _ string, _ map[string]string) (model.BalanceResult, error) {
	m.mu.Lock()
	n := m.calls
	m.calls++
	started := m.started
	block := m.block
	m.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return model.BalanceResult{}, &model.NetworkError{Provider: "mock", Cause: ctx.Err()}
		}
	}

	if n < len(m.errs) && m.errs[n] != nil {
		return model.BalanceResult{}, m.errs[n]
	}
	if n < len(m.results) {
		return m.results[n], nil
	}
	if len(m.results) > 0 {
		return m.results[len(m.results)-1], nil
	}
	return model.BalanceResult{Balance: 1}, nil
}

func (m *mockAdapter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockRegistry resolves every slug in its map and rejects the rest.
type mockRegistry struct {
	adapters map[string]driven.BalanceAdapter
}

var _ driven.AdapterRegistry = (*mockRegistry)(nil)

func (m *mockRegistry) Resolve(slug string) (driven.BalanceAdapter, error) {
	a, ok := m.adapters[slug]
	if !ok {
		return nil, &model.UnsupportedProviderError{Slug: slug}
	}
	return a, nil
}

// mockSender records alerts and optionally fails every send.
type mockSender struct {
	mu     sync.Mutex
	alerts []model.Alert
	fail   error
}

var _ driven.NotificationSender = (*mockSender)(nil)

func (m *mockSender) Send(_ context.Context, _ string, alert model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	if m.fail != nil {
		return m.fail
	}
	return nil
}

func (m *mockSender) sent() []model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}
