package vault

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"AegisVault/internal/model"
)

// Custodian moves the underlying asset between a wallet and the vault.
type Custodian interface {
	Pull(ctx context.Context, from common.Address, amount sdkmath.Int) error
	Push(ctx context.Context, to common.Address, amount sdkmath.Int) error
}

// Store persists each committed mutation before it becomes visible.
type Store interface {
	Apply(ctx context.Context, m model.Mutation) error
}

// Publisher receives observations in commit order. Publish must not block.
type Publisher interface {
	Publish(obs model.Observation)
}

// Limits bounds the analysis interval.
type Limits struct {
	MinInterval time.Duration
	MaxInterval time.Duration
}

// SeedModel is the advisory model registered on first start.
type SeedModel struct {
	Version  string
	Accuracy uint8
}

// Options configures a Vault. Store, Custodian, Publisher, Logger and Clock
// fall back to no-op or system implementations when nil.
type Options struct {
	Owner            common.Address
	AnalysisInterval time.Duration
	MinTVLToAnalyze  sdkmath.Int
	Limits           Limits
	Seed             SeedModel

	Store     Store
	Custodian Custodian
	Publisher Publisher
	Logger    *zap.Logger
	Clock     func() time.Time
}

// DefaultOptions mirrors the reference deployment parameters.
func DefaultOptions(owner common.Address) Options {
	return Options{
		Owner:            owner,
		AnalysisInterval: 24 * time.Hour,
		MinTVLToAnalyze:  sdkmath.NewInt(10).Mul(sdkmath.NewIntWithDecimal(1, 18)),
		Limits:           Limits{MinInterval: time.Hour, MaxInterval: 7 * 24 * time.Hour},
		Seed:             SeedModel{Version: "v1.0", Accuracy: 85},
	}
}

// Vault is the single aggregate owning ledger, registry, request and upkeep
// state. Every mutating method holds mu for its whole duration so operations
// are totally ordered and never observed half-applied.
type Vault struct {
	mu sync.Mutex

	ledger        model.LedgerState
	accounts      map[common.Address]model.Account
	models        []model.AdvisoryModel
	activeModelID uint64
	upkeep        model.UpkeepState
	pending       map[string]model.PendingRequest
	seq           uint64

	limits    Limits
	store     Store
	custodian Custodian
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// New restores a Vault from snap, or initialises a fresh one when snap is nil
// or has never been seeded. A fresh vault persists its genesis state before
// returning.
func New(ctx context.Context, opts Options, snap *model.Snapshot) (*Vault, error) {
	v := &Vault{
		accounts:  make(map[common.Address]model.Account),
		pending:   make(map[string]model.PendingRequest),
		limits:    opts.Limits,
		store:     opts.Store,
		custodian: opts.Custodian,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		now:       opts.Clock,
	}
	if v.store == nil {
		v.store = nopStore{}
	}
	if v.custodian == nil {
		v.custodian = nopCustodian{}
	}
	if v.publisher == nil {
		v.publisher = nopPublisher{}
	}
	if v.logger == nil {
		v.logger = zap.NewNop()
	}
	if v.now == nil {
		v.now = time.Now
	}
	if v.limits.MinInterval <= 0 || v.limits.MaxInterval < v.limits.MinInterval {
		return nil, fmt.Errorf("invalid interval limits %s..%s", v.limits.MinInterval, v.limits.MaxInterval)
	}

	if snap != nil && len(snap.Models) > 0 {
		if err := v.restore(snap); err != nil {
			return nil, fmt.Errorf("restore snapshot: %w", err)
		}
		v.logger.Info("vault: restored",
			zap.Int("accounts", len(v.accounts)),
			zap.Int("models", len(v.models)),
			zap.Int("pending", len(v.pending)),
			zap.String("total_assets", v.ledger.TotalAssets.String()))
		return v, nil
	}

	if err := v.genesis(ctx, opts); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vault) genesis(ctx context.Context, opts Options) error {
	if opts.Owner == (common.Address{}) {
		return ErrInvalidOwner
	}
	if opts.Seed.Version == "" || opts.Seed.Accuracy > 100 {
		return ErrInvalidModel
	}
	interval := opts.AnalysisInterval
	if interval < v.limits.MinInterval {
		return fmt.Errorf("analysis interval: %w", ErrIntervalTooShort)
	}
	if interval > v.limits.MaxInterval {
		return fmt.Errorf("analysis interval: %w", ErrIntervalTooLong)
	}
	minTVL := opts.MinTVLToAnalyze
	if minTVL.IsNil() {
		minTVL = sdkmath.ZeroInt()
	}
	if minTVL.IsNegative() {
		return fmt.Errorf("min tvl: %w", ErrInvalidAmount)
	}

	now := v.now().Unix()
	ledger := model.LedgerState{
		TotalAssets: sdkmath.ZeroInt(),
		TotalShares: sdkmath.ZeroInt(),
		Owner:       opts.Owner,
	}
	seed := model.AdvisoryModel{
		ID:        1,
		Version:   opts.Seed.Version,
		Accuracy:  opts.Seed.Accuracy,
		Active:    true,
		CreatedAt: now,
	}
	upkeep := model.UpkeepState{
		LastAnalysisTime: now,
		AnalysisInterval: int64(interval / time.Second),
		MinTVLToAnalyze:  minTVL,
	}
	mut := model.Mutation{
		Ledger:        &ledger,
		Models:        []model.AdvisoryModel{seed},
		ActiveModelID: seed.ID,
		Upkeep:        &upkeep,
	}
	if err := v.commit(ctx, mut); err != nil {
		return fmt.Errorf("persist genesis: %w", err)
	}
	v.logger.Info("vault: initialised",
		zap.String("owner", opts.Owner.Hex()),
		zap.String("seed_model", seed.Version),
		zap.Int64("analysis_interval", upkeep.AnalysisInterval))
	return nil
}

func (v *Vault) restore(snap *model.Snapshot) error {
	v.ledger = snap.Ledger
	if v.ledger.TotalAssets.IsNil() {
		v.ledger.TotalAssets = sdkmath.ZeroInt()
	}
	if v.ledger.TotalShares.IsNil() {
		v.ledger.TotalShares = sdkmath.ZeroInt()
	}

	sum := sdkmath.ZeroInt()
	for _, a := range snap.Accounts {
		if a.Shares.IsNil() {
			a.Shares = sdkmath.ZeroInt()
		}
		if a.Shares.IsNegative() {
			return fmt.Errorf("account %s has negative shares", a.Address.Hex())
		}
		sum = sum.Add(a.Shares)
		v.accounts[a.Address] = a
	}
	if !sum.Equal(v.ledger.TotalShares) {
		return fmt.Errorf("share totals diverge: ledger %s, accounts %s", v.ledger.TotalShares, sum)
	}
	if !v.ledger.TotalAssets.Equal(v.ledger.TotalShares) {
		return fmt.Errorf("assets %s do not match shares %s", v.ledger.TotalAssets, v.ledger.TotalShares)
	}

	models := append([]model.AdvisoryModel(nil), snap.Models...)
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	active := 0
	for i, m := range models {
		if m.ID != uint64(i+1) {
			return fmt.Errorf("model ids not contiguous at %d", m.ID)
		}
		if m.Active {
			active++
		}
	}
	if active > 1 {
		return fmt.Errorf("%d active models", active)
	}
	v.models = models
	v.activeModelID = snap.ActiveModelID

	v.upkeep = snap.Upkeep
	if v.upkeep.MinTVLToAnalyze.IsNil() {
		v.upkeep.MinTVLToAnalyze = sdkmath.ZeroInt()
	}

	for _, p := range snap.Pending {
		acct, ok := v.accounts[p.Account]
		if !ok || acct.PendingRequest != p.RequestID {
			return fmt.Errorf("pending request %s not indexed by its account", p.RequestID)
		}
		v.pending[p.RequestID] = p
	}
	for addr, a := range v.accounts {
		if a.Pending() {
			if p, ok := v.pending[a.PendingRequest]; !ok || p.Account != addr {
				return fmt.Errorf("account %s points at missing pending request %s", addr.Hex(), a.PendingRequest)
			}
		}
	}
	return nil
}

// commit persists m, then applies it in memory and publishes obs. Nothing is
// applied when persistence fails. Callers must hold mu (or be constructing).
func (v *Vault) commit(ctx context.Context, m model.Mutation, obs ...model.Observation) error {
	if err := v.store.Apply(ctx, m); err != nil {
		v.logger.Error("vault: persist mutation", zap.Error(err))
		return fmt.Errorf("persist: %w", err)
	}
	if m.Ledger != nil {
		v.ledger = *m.Ledger
	}
	for _, a := range m.Accounts {
		v.accounts[a.Address] = a
	}
	for _, md := range m.Models {
		if idx := int(md.ID) - 1; idx < len(v.models) {
			v.models[idx] = md
		} else {
			v.models = append(v.models, md)
		}
	}
	if m.ActiveModelID != 0 {
		v.activeModelID = m.ActiveModelID
	}
	if m.Upkeep != nil {
		v.upkeep = *m.Upkeep
	}
	for _, id := range m.DeletePending {
		delete(v.pending, id)
	}
	for _, p := range m.PutPending {
		v.pending[p.RequestID] = p
	}
	for _, o := range obs {
		v.emit(o)
	}
	return nil
}

func (v *Vault) emit(o model.Observation) {
	v.seq++
	o.Seq = v.seq
	v.publisher.Publish(o)
}

func (v *Vault) observation(kind model.ObservationKind) model.Observation {
	return model.NewObservation(kind, v.now())
}

// accountLocked returns a copy of the account, or a fresh idle one.
func (v *Vault) accountLocked(addr common.Address) model.Account {
	if a, ok := v.accounts[addr]; ok {
		return a
	}
	return model.NewAccount(addr)
}

// Snapshot returns a deep copy of the full vault state.
func (v *Vault) Snapshot() model.Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap := model.Snapshot{
		Ledger:        v.ledger,
		Models:        append([]model.AdvisoryModel(nil), v.models...),
		ActiveModelID: v.activeModelID,
		Upkeep:        v.upkeep,
	}
	for _, a := range v.accounts {
		snap.Accounts = append(snap.Accounts, a)
	}
	sort.Slice(snap.Accounts, func(i, j int) bool {
		return snap.Accounts[i].Address.Cmp(snap.Accounts[j].Address) < 0
	})
	for _, p := range v.pending {
		snap.Pending = append(snap.Pending, p)
	}
	sort.Slice(snap.Pending, func(i, j int) bool { return snap.Pending[i].IssuedAt < snap.Pending[j].IssuedAt })
	return snap
}

type nopStore struct{}

func (nopStore) Apply(context.Context, model.Mutation) error { return nil }

type nopCustodian struct{}

func (nopCustodian) Pull(context.Context, common.Address, sdkmath.Int) error { return nil }
func (nopCustodian) Push(context.Context, common.Address, sdkmath.Int) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(model.Observation) {}
