// Package ledgertest provides an in-memory ledger gateway for tests.
package ledgertest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ahmadzakiakmal/panelchain/ledger"
)

// Ops counted by Memory
const (
	OpRegister      = "register"
	OpUpdateStatus  = "update_status"
	OpMintToken     = "mint_token"
	OpMintMaterials = "mint_materials"
	OpTransfer      = "transfer"
	OpGetEntity     = "get_entity"
	OpGetHistory    = "get_history"
)

// Memory is a ledger.Gateway holding state in maps. It is safe for concurrent
// use.
type Memory struct {
	mu        sync.Mutex
	available bool
	entities  map[string]*ledger.Entity
	history   map[string][]ledger.HistoryEntry
	owners    map[string]string
	batches   []ledger.MaterialBatch
	calls     map[string]int
	failures  map[string]error
	nextToken int
	nextTx    int
	delay     time.Duration
}

var _ ledger.Gateway = (*Memory)(nil)

// NewMemory returns an available, empty ledger
func NewMemory() *Memory {
	return &Memory{
		available: true,
		entities:  map[string]*ledger.Entity{},
		history:   map[string][]ledger.HistoryEntry{},
		owners:    map[string]string{},
		calls:     map[string]int{},
		failures:  map[string]error{},
		nextToken: 1,
	}
}

// SetAvailable toggles IsAvailable
func (m *Memory) SetAvailable(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = ok
}

// FailOn makes every later call of op fail with err. A nil err clears it.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// SetDelay makes writes sleep before answering
func (m *Memory) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Seed stores an entity as if it had been registered earlier
func (m *Memory) Seed(entity ledger.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entity
	m.entities[entity.ExternalID] = &e
	if e.HasToken() {
		m.owners[e.TokenID] = e.Owner
	}
}

// Calls returns how often op was invoked, including failed attempts
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalWrites counts every write call
func (m *Memory) TotalWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[OpRegister] + m.calls[OpUpdateStatus] + m.calls[OpMintToken] + m.calls[OpMintMaterials] + m.calls[OpTransfer]
}

// Entity returns a copy of the stored entity
func (m *Memory) Entity(externalID string) (ledger.Entity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[externalID]
	if !ok {
		return ledger.Entity{}, false
	}
	return *e, true
}

// Batches returns every material batch minted
func (m *Memory) Batches() []ledger.MaterialBatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.MaterialBatch(nil), m.batches...)
}

// Owner returns the current holder of a token
func (m *Memory) Owner(tokenID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owners[tokenID]
}

func (m *Memory) IsAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// begin counts op and reports the injected failure, if any. Callers hold no
// lock.
func (m *Memory) begin(op string) error {
	m.mu.Lock()
	m.calls[op]++
	delay := m.delay
	available := m.available
	failure := m.failures[op]
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if !available {
		return ledger.ErrUnavailable
	}
	if failure != nil {
		return ledger.CallFailed(op, failure)
	}
	return nil
}

func (m *Memory) txID() string {
	m.nextTx++
	return fmt.Sprintf("%064x", m.nextTx)
}

func (m *Memory) Register(_ context.Context, externalID string, attrs ledger.Attributes) (string, error) {
	if err := m.begin(OpRegister); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entities[externalID]; exists {
		return "", ledger.Rejected(OpRegister, 1, "panel already registered")
	}
	tx := m.txID()
	m.entities[externalID] = &ledger.Entity{
		ExternalID: externalID,
		Brand:      attrs.Brand,
		Model:      attrs.Model,
		Status:     ledger.StatusCollected,
		Location:   attrs.Location,
		UpdatedAt:  time.Now().UTC(),
	}
	m.history[externalID] = append(m.history[externalID], ledger.HistoryEntry{TxID: tx, Status: ledger.StatusCollected, Location: attrs.Location, Note: attrs.Note, Timestamp: time.Now().UTC()})
	return tx, nil
}

func (m *Memory) UpdateStatus(_ context.Context, externalID string, status ledger.StatusCode, location, note string) (string, error) {
	if err := m.begin(OpUpdateStatus); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entity, ok := m.entities[externalID]
	if !ok {
		return "", ledger.Rejected(OpUpdateStatus, 2, "panel not registered")
	}
	tx := m.txID()
	entity.Status = status
	if location != "" {
		entity.Location = location
	}
	entity.UpdatedAt = time.Now().UTC()
	m.history[externalID] = append(m.history[externalID], ledger.HistoryEntry{TxID: tx, Status: status, Location: location, Note: note, Timestamp: entity.UpdatedAt})
	return tx, nil
}

func (m *Memory) MintToken(_ context.Context, externalID, _ string, owner string) (ledger.MintReceipt, error) {
	if err := m.begin(OpMintToken); err != nil {
		return ledger.MintReceipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entity, ok := m.entities[externalID]
	if !ok {
		entity = &ledger.Entity{ExternalID: externalID, Status: ledger.StatusCollected}
		m.entities[externalID] = entity
	}
	if entity.HasToken() {
		return ledger.MintReceipt{TokenID: entity.TokenID}, nil
	}
	token := strconv.Itoa(m.nextToken)
	m.nextToken++
	entity.TokenID = token
	entity.Owner = owner
	m.owners[token] = owner
	return ledger.MintReceipt{TxID: m.txID(), TokenID: token}, nil
}

func (m *Memory) MintMaterials(_ context.Context, batch ledger.MaterialBatch) (string, error) {
	if err := m.begin(OpMintMaterials); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, batch)
	return m.txID(), nil
}

func (m *Memory) Transfer(_ context.Context, tokenID, to string) (string, error) {
	if err := m.begin(OpTransfer); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[tokenID]; !ok {
		return "", ledger.Rejected(OpTransfer, 3, "unknown token")
	}
	m.owners[tokenID] = to
	for _, e := range m.entities {
		if e.TokenID == tokenID {
			e.Owner = to
		}
	}
	return m.txID(), nil
}

func (m *Memory) GetEntity(_ context.Context, externalID string) *ledger.Entity {
	if err := m.begin(OpGetEntity); err != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[externalID]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

func (m *Memory) GetHistory(_ context.Context, externalID string) []ledger.HistoryEntry {
	if err := m.begin(OpGetHistory); err != nil {
		return []ledger.HistoryEntry{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.HistoryEntry{}, m.history[externalID]...)
}
