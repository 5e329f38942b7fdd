package balance

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mvale/housetab/internal/metrics"
	"github.com/mvale/housetab/internal/model"
	"github.com/mvale/housetab/internal/store"
)

// Service owns every mutation that can move a balance. Each mutation
// runs under the family's lock and inside a single transaction covering
// both the record write and the cache update, so readers never observe
// a half-applied change.
type Service struct {
	db     *sql.DB
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// familyLock returns the mutex serializing mutations for one family.
// Locks are never evicted; a long-lived process accumulates one small
// mutex per family it has touched.
func (s *Service) familyLock(familyID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[familyID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[familyID] = l
	}
	return l
}

func (s *Service) requireFamily(familyID string) error {
	family, err := store.NewFamilyStore(s.db).GetByID(familyID)
	if err != nil {
		return err
	}
	if family == nil {
		return notFound("family", familyID)
	}
	return nil
}

func loadFamilyState(q store.Querier, familyID string) ([]model.Member, []model.Expense, []model.Payment, error) {
	members, err := store.NewMemberStore(q).ListByFamily(familyID)
	if err != nil {
		return nil, nil, nil, err
	}
	expenses, err := store.NewExpenseStore(q).ListByFamily(familyID)
	if err != nil {
		return nil, nil, nil, err
	}
	payments, err := store.NewPaymentStore(q).ListByFamilyAndStatus(familyID, model.PaymentStatusConfirm)
	if err != nil {
		return nil, nil, nil, err
	}
	return members, expenses, payments, nil
}

// familyGraph recomputes the family's netted debt graph from history.
func (s *Service) familyGraph(q store.Querier, familyID, trigger string) ([]model.Member, debtGraph, error) {
	timer := prometheus.NewTimer(metrics.BalanceComputeSeconds)
	defer timer.ObserveDuration()
	metrics.BalanceRecomputes.WithLabelValues(trigger).Inc()

	members, expenses, payments, err := loadFamilyState(q, familyID)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	g := fold(ids, expenses, payments)
	g.net()
	return members, g, nil
}

func (s *Service) recompute(q store.Querier, familyID, trigger string) ([]model.MemberBalance, error) {
	members, g, err := s.familyGraph(q, familyID, trigger)
	if err != nil {
		return nil, err
	}
	return assemble(members, g), nil
}

// ComputeBalances recomputes the family's balances from history without
// reading or writing the cache.
func (s *Service) ComputeBalances(familyID string) ([]model.MemberBalance, error) {
	if err := s.requireFamily(familyID); err != nil {
		return nil, err
	}
	return s.recompute(s.db, familyID, "read")
}

// GetFamilyBalances returns every member's balance. With useCache set it
// serves from the persisted cache, rebuilding first when rows are
// missing or forceRefresh is set. Without useCache it recomputes and
// leaves the cache untouched.
func (s *Service) GetFamilyBalances(familyID string, useCache, forceRefresh bool) ([]model.MemberBalance, error) {
	if !useCache {
		return s.ComputeBalances(familyID)
	}
	if err := s.requireFamily(familyID); err != nil {
		return nil, err
	}
	if forceRefresh {
		return s.rebuildLocked(familyID, "force_refresh")
	}

	members, err := store.NewMemberStore(s.db).ListByFamily(familyID)
	if err != nil {
		return nil, err
	}
	balances, ok, err := readCachedBalances(s.db, familyID, members)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.CacheReads.WithLabelValues("miss").Inc()
		return s.rebuildLocked(familyID, "cache_miss")
	}
	metrics.CacheReads.WithLabelValues("hit").Inc()
	return balances, nil
}

// GetMemberBalance returns one member's balance from the cache, falling
// back to a full rebuild when the member's row is missing.
func (s *Service) GetMemberBalance(memberID string) (*model.MemberBalance, error) {
	member, err := store.NewMemberStore(s.db).GetByID(memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, notFound("member", memberID)
	}

	row, err := store.NewBalanceCacheStore(s.db).GetMemberRow(memberID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		metrics.CacheReads.WithLabelValues("miss").Inc()
		balances, err := s.rebuildLocked(member.FamilyID, "cache_miss")
		if err != nil {
			return nil, err
		}
		return pickMember(balances, memberID), nil
	}

	members, err := store.NewMemberStore(s.db).ListByFamily(member.FamilyID)
	if err != nil {
		return nil, err
	}
	balances, ok, err := readCachedBalances(s.db, member.FamilyID, members)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.CacheReads.WithLabelValues("miss").Inc()
		balances, err = s.rebuildLocked(member.FamilyID, "cache_miss")
		if err != nil {
			return nil, err
		}
		return pickMember(balances, memberID), nil
	}
	metrics.CacheReads.WithLabelValues("hit").Inc()
	return pickMember(balances, memberID), nil
}

// InitializeCache rebuilds the family's cache rows from scratch and
// returns the balances they now hold.
func (s *Service) InitializeCache(familyID string) ([]model.MemberBalance, error) {
	if err := s.requireFamily(familyID); err != nil {
		return nil, err
	}
	return s.rebuildLocked(familyID, "manual")
}

// rebuildLocked runs a full cache rebuild in its own transaction under
// the family lock.
func (s *Service) rebuildLocked(familyID, trigger string) ([]model.MemberBalance, error) {
	lock := s.familyLock(familyID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	balances, err := s.rebuildCache(tx, familyID, trigger)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return balances, nil
}

func pickMember(balances []model.MemberBalance, memberID string) *model.MemberBalance {
	for i := range balances {
		if balances[i].MemberID == memberID {
			return &balances[i]
		}
	}
	return nil
}
