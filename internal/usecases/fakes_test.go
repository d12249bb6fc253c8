package usecases

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memProjects struct {
	mu    sync.Mutex
	items map[string]entities.Project
}

func newMemProjects() *memProjects {
	return &memProjects{items: make(map[string]entities.Project)}
}

func (m *memProjects) snapshot() map[string]entities.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]entities.Project, len(m.items))
	for k, v := range m.items {
		out[k] = v
	}
	return out
}

func (m *memProjects) restore(snapshot map[string]entities.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = snapshot
}

func (m *memProjects) FindProject(_ context.Context, projectID string) (*entities.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.items[projectID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, entities.ErrNotFound)
	}
	return &project, nil
}

func (m *memProjects) FindProjects(_ context.Context, filter ProjectFilter) ([]entities.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.Project
	for _, project := range m.items {
		if filter.Status != "" && project.Status != filter.Status {
			continue
		}
		if filter.EcosystemType != "" && project.EcosystemType != filter.EcosystemType {
			continue
		}
		if filter.OwnerWallet != "" && project.OwnerWallet != filter.OwnerWallet {
			continue
		}
		out = append(out, project)
	}
	return out, nil
}

func (m *memProjects) FindProjectsByStatuses(_ context.Context, statuses []entities.ProjectStatus) ([]entities.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.Project
	for _, project := range m.items {
		for _, status := range statuses {
			if project.Status == status {
				out = append(out, project)
				break
			}
		}
	}
	return out, nil
}

func (m *memProjects) InsertProject(_ context.Context, project *entities.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[project.ID] = *project
	return nil
}

func (m *memProjects) UpdateProject(_ context.Context, project *entities.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[project.ID]; !ok {
		return fmt.Errorf("project %s: %w", project.ID, entities.ErrNotFound)
	}
	m.items[project.ID] = *project
	return nil
}

type memVerifications struct {
	mu      sync.Mutex
	records []entities.VerificationRecord
	nextID  int
}

func (m *memVerifications) FindRecords(_ context.Context, projectID string) ([]entities.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.VerificationRecord
	for _, record := range m.records {
		if record.ProjectID == projectID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *memVerifications) InsertRecord(_ context.Context, record *entities.VerificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	record.ID = m.nextID
	m.records = append(m.records, *record)
	return nil
}

type memRegistrations struct {
	mu     sync.Mutex
	items  []entities.Registration
	nextID int
}

func (m *memRegistrations) FindLatestByProject(_ context.Context, projectID string) (*entities.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].ProjectID == projectID {
			registration := m.items[i]
			return &registration, nil
		}
	}
	return nil, fmt.Errorf("registration for project %s: %w", projectID, entities.ErrNotFound)
}

func (m *memRegistrations) InsertRegistration(_ context.Context, registration *entities.Registration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	registration.ID = m.nextID
	m.items = append(m.items, *registration)
	return registration.ID, nil
}

func (m *memRegistrations) UpdateRegistration(_ context.Context, registration *entities.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == registration.ID {
			m.items[i] = *registration
			return nil
		}
	}
	return fmt.Errorf("registration %d: %w", registration.ID, entities.ErrNotFound)
}

type memBatches struct {
	mu    sync.Mutex
	items []entities.CreditBatch
}

func (m *memBatches) FindBatches(_ context.Context, projectID string) ([]entities.CreditBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.CreditBatch
	for _, batch := range m.items {
		if batch.ProjectID == projectID {
			out = append(out, batch)
		}
	}
	return out, nil
}

func (m *memBatches) FindBatch(_ context.Context, batchID string) (*entities.CreditBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, batch := range m.items {
		if batch.BatchID == batchID {
			out := batch
			return &out, nil
		}
	}
	return nil, fmt.Errorf("batch %s: %w", batchID, entities.ErrNotFound)
}

func (m *memBatches) InsertBatch(_ context.Context, batch *entities.CreditBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, *batch)
	return nil
}

func (m *memBatches) UpdateBatch(_ context.Context, batch *entities.CreditBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].BatchID == batch.BatchID {
			m.items[i] = *batch
			return nil
		}
	}
	return fmt.Errorf("batch %s: %w", batch.BatchID, entities.ErrNotFound)
}

type memAudit struct {
	mu      sync.Mutex
	entries []entities.AuditEntry
}

func (m *memAudit) FindEntries(_ context.Context, projectID string) ([]entities.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.AuditEntry
	for _, entry := range m.entries {
		if entry.ProjectID == projectID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memAudit) InsertEntry(_ context.Context, entry *entities.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

type memListings struct {
	mu    sync.Mutex
	items map[string]entities.Listing
}

func newMemListings() *memListings {
	return &memListings{items: make(map[string]entities.Listing)}
}

func (m *memListings) snapshot() map[string]entities.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]entities.Listing, len(m.items))
	for k, v := range m.items {
		out[k] = v
	}
	return out
}

func (m *memListings) restore(snapshot map[string]entities.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = snapshot
}

func (m *memListings) FindListing(_ context.Context, listingID string) (*entities.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing, ok := m.items[listingID]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", listingID, entities.ErrNotFound)
	}
	return &listing, nil
}

func (m *memListings) FindActiveListings(_ context.Context) ([]entities.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.Listing
	for _, listing := range m.items {
		if listing.Status == entities.ListingActive {
			out = append(out, listing)
		}
	}
	return out, nil
}

func (m *memListings) FindListingsByProject(_ context.Context, projectID string) ([]entities.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.Listing
	for _, listing := range m.items {
		if listing.ProjectID == projectID {
			out = append(out, listing)
		}
	}
	return out, nil
}

func (m *memListings) InsertListing(_ context.Context, listing *entities.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[listing.ListingID] = *listing
	return nil
}

func (m *memListings) DecrementListingCredits(_ context.Context, listingID string, quantity float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing, ok := m.items[listingID]
	if !ok || listing.Status != entities.ListingActive || listing.CreditsAvailable < quantity {
		return 0, nil
	}
	listing.CreditsAvailable -= quantity
	if listing.CreditsAvailable <= 0 {
		listing.Status = entities.ListingSold
	}
	m.items[listingID] = listing
	return 1, nil
}

func (m *memListings) UpdateListingStatus(_ context.Context, listingID string, status entities.ListingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing, ok := m.items[listingID]
	if !ok {
		return fmt.Errorf("listing %s: %w", listingID, entities.ErrNotFound)
	}
	listing.Status = status
	m.items[listingID] = listing
	return nil
}

// passTransactor runs the wrapped function with no transactional
// semantics. For services whose tests never exercise a rollback.
type passTransactor struct{}

func (passTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeTransactor mimics rollback by restoring the listing table when the
// wrapped function fails.
type fakeTransactor struct {
	listings *memListings
}

func (t *fakeTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := t.listings.snapshot()
	if err := fn(ctx); err != nil {
		t.listings.restore(snapshot)
		return err
	}
	return nil
}

type memTransfers struct {
	mu    sync.Mutex
	items map[string]entities.Transfer
}

func newMemTransfers() *memTransfers {
	return &memTransfers{items: make(map[string]entities.Transfer)}
}

func (m *memTransfers) FindTransfer(_ context.Context, transferID string) (*entities.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	transfer, ok := m.items[transferID]
	if !ok {
		return nil, fmt.Errorf("transfer %s: %w", transferID, entities.ErrNotFound)
	}
	return &transfer, nil
}

func (m *memTransfers) FindTransferByIdempotencyKey(_ context.Context, key string) (*entities.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, transfer := range m.items {
		if transfer.IdempotencyKey == key {
			out := transfer
			return &out, nil
		}
	}
	return nil, fmt.Errorf("transfer %s: %w", key, entities.ErrNotFound)
}

func (m *memTransfers) FindTransfersByWallet(_ context.Context, wallet string) ([]entities.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.Transfer
	for _, transfer := range m.items {
		if transfer.FromWallet == wallet || transfer.ToWallet == wallet {
			out = append(out, transfer)
		}
	}
	return out, nil
}

func (m *memTransfers) InsertTransfer(_ context.Context, transfer *entities.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[transfer.TransferID] = *transfer
	return nil
}

func (m *memTransfers) UpdateTransfer(_ context.Context, transfer *entities.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[transfer.TransferID]; !ok {
		return fmt.Errorf("transfer %s: %w", transfer.TransferID, entities.ErrNotFound)
	}
	m.items[transfer.TransferID] = *transfer
	return nil
}

// fakeLedger scripts ledger write outcomes and records call counts.
type fakeLedger struct {
	mu sync.Mutex

	registerResult entities.WriteResult
	mintResult     entities.WriteResult
	transferResult entities.WriteResult

	registerCalls int
	mintCalls     int
	transferCalls int

	chainProjects map[string]*entities.LedgerProject
	balances      map[string]*big.Int
	events        chan entities.LedgerEvent
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		registerResult: entities.WriteResult{Success: true, TxHash: "0xreg"},
		mintResult:     entities.WriteResult{Success: true, TxHash: "0xmint"},
		transferResult: entities.WriteResult{Success: true, TxHash: "0xxfer"},
		chainProjects:  make(map[string]*entities.LedgerProject),
		balances:       make(map[string]*big.Int),
	}
}

func (f *fakeLedger) Connect(context.Context) error { return nil }
func (f *fakeLedger) Connected() bool               { return true }
func (f *fakeLedger) OperatorAddress() string       { return "0x0000000000000000000000000000000000000001" }
func (f *fakeLedger) ChainID() int64                { return 31337 }

func (f *fakeLedger) RegisterProject(context.Context, string, string, float64) entities.WriteResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	return f.registerResult
}

func (f *fakeLedger) ApproveProject(context.Context, string) entities.WriteResult {
	return entities.WriteResult{Success: true, TxHash: "0xapprove"}
}

func (f *fakeLedger) Mint(context.Context, string, *big.Int, string, string) entities.WriteResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mintCalls++
	return f.mintResult
}

func (f *fakeLedger) Transfer(context.Context, string, *big.Int) entities.WriteResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferCalls++
	return f.transferResult
}

func (f *fakeLedger) GetProject(_ context.Context, projectID string) (*entities.LedgerProject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	view, ok := f.chainProjects[projectID]
	if !ok {
		return nil, entities.ErrNotFound
	}
	out := *view
	return &out, nil
}

func (f *fakeLedger) BalanceOf(_ context.Context, address string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if balance, ok := f.balances[address]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeLedger) TotalSupply(context.Context) (*big.Int, error)   { return big.NewInt(0), nil }
func (f *fakeLedger) TotalProjects(context.Context) (*big.Int, error) { return big.NewInt(0), nil }
func (f *fakeLedger) LatestBlock(context.Context) (uint64, error)     { return 0, nil }

func (f *fakeLedger) SubscribeEvents(context.Context) (<-chan entities.LedgerEvent, error) {
	if f.events == nil {
		f.events = make(chan entities.LedgerEvent, 16)
	}
	return f.events, nil
}

func newTestLifecycle() (*LifecycleService, *memProjects, *memVerifications, *memRegistrations, *memBatches, *memAudit, *fakeLedger) {
	projects := newMemProjects()
	verifications := &memVerifications{}
	registrations := &memRegistrations{}
	batches := &memBatches{}
	audit := &memAudit{}
	chain := newFakeLedger()

	service := NewLifecycleService(testLogger(), projects, verifications, registrations, batches, audit, chain, passTransactor{})
	return service, projects, verifications, registrations, batches, audit, chain
}

func validProject(id string) *entities.Project {
	return &entities.Project{
		ID:            id,
		Name:          "Mangrove Bay Restoration",
		EcosystemType: entities.EcosystemMangrove,
		AreaHectares:  120.5,
		Location:      "9.5370,-75.3590",
		OwnerWallet:   "0x00000000000000000000000000000000000000aa",
		MediaRefs:     []string{"bafybeihash1"},
	}
}
