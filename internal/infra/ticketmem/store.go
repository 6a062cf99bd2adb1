package ticketmem

import (
	"context"
	"fmt"
	"sync"

	"ticketgate/internal/domain"
)

// Store keeps tickets in process memory. It backs the no-database mode and
// tests; the quota check and insert for one VATIN run under that VATIN's lock.
// A lock lives only while some request holds or waits for it.
type Store struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
	byVATIN map[string]int64

	locksMu sync.Mutex
	locks   map[string]*vatinLock
}

type vatinLock struct {
	sync.Mutex
	refs int
}

func New() *Store {
	return &Store{
		tickets: make(map[string]domain.Ticket),
		byVATIN: make(map[string]int64),
		locks:   make(map[string]*vatinLock),
	}
}

func (s *Store) lock(vatin string) {
	s.locksMu.Lock()
	lock, ok := s.locks[vatin]
	if !ok {
		lock = &vatinLock{}
		s.locks[vatin] = lock
	}
	lock.refs++
	s.locksMu.Unlock()

	lock.Lock()
}

func (s *Store) unlock(vatin string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock := s.locks[vatin]
	lock.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, vatin)
	}
}

func (s *Store) CreateWithQuota(ctx context.Context, ticket domain.Ticket, limit int) error {
	s.lock(ticket.VATIN)
	defer s.unlock(ticket.VATIN)

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byVATIN[ticket.VATIN] >= int64(limit) {
		return domain.ErrQuotaExceeded
	}
	if _, exists := s.tickets[ticket.ID]; exists {
		return fmt.Errorf("ticket %s already exists", ticket.ID)
	}
	s.tickets[ticket.ID] = ticket
	s.byVATIN[ticket.VATIN]++
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ticket, nil
}

func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.tickets)), nil
}

func (s *Store) CountByVATIN(_ context.Context, vatin string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byVATIN[vatin], nil
}
