package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ticketgate/internal/domain"
	"ticketgate/internal/infra/ticketmem"
)

type countingRepo struct {
	domain.TicketRepository
	mu    sync.Mutex
	calls int
}

func (r *countingRepo) CreateWithQuota(ctx context.Context, ticket domain.Ticket, limit int) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.TicketRepository.CreateWithQuota(ctx, ticket, limit)
}

type stubPolicy struct {
	decision domain.PolicyDecision
	err      error
	last     domain.PolicyInput
}

func (p *stubPolicy) Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyDecision, error) {
	p.last = input
	return p.decision, p.err
}

func TestTicketService_ConcurrentIssuanceHoldsQuota(t *testing.T) {
	store := ticketmem.New()
	svc := NewTicketService(store, nil)

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		quota     int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.IssueTicket(context.Background(), IssueTicketInput{
				VATIN:     "12345678901",
				FirstName: "Ana",
				LastName:  "Kovač",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrQuotaExceeded):
				quota++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != domain.MaxTicketsPerVATIN || quota != n-domain.MaxTicketsPerVATIN {
		t.Fatalf("expected 3 successes and 7 quota errors, got %d and %d", successes, quota)
	}
	count, err := store.CountByVATIN(context.Background(), "12345678901")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != domain.MaxTicketsPerVATIN {
		t.Fatalf("expected 3 stored tickets, got %d", count)
	}
}

func TestTicketService_ValidationSkipsStorage(t *testing.T) {
	repo := &countingRepo{TicketRepository: ticketmem.New()}
	svc := NewTicketService(repo, nil)

	inputs := []IssueTicketInput{
		{FirstName: "Ana", LastName: "Kovač"},
		{VATIN: "12345678901", LastName: "Kovač"},
		{VATIN: "12345678901", FirstName: "Ana"},
		{VATIN: "  ", FirstName: "Ana", LastName: "Kovač"},
	}
	for _, in := range inputs {
		if _, err := svc.IssueTicket(context.Background(), in); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", in, err)
		}
	}
	if repo.calls != 0 {
		t.Fatalf("expected no storage calls, got %d", repo.calls)
	}
}

func TestTicketService_IssueThenGet(t *testing.T) {
	fixed := time.Date(2024, 11, 3, 10, 0, 0, 0, time.UTC)
	svc := NewTicketService(ticketmem.New(), nil)
	svc.Now = func() time.Time { return fixed }

	issued, err := svc.IssueTicket(context.Background(), IssueTicketInput{
		VATIN:     "12345678901",
		FirstName: "Ana",
		LastName:  "Kovač",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := svc.GetTicket(context.Background(), issued.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.VATIN != "12345678901" || got.FirstName != "Ana" || got.LastName != "Kovač" {
		t.Fatalf("fields do not round-trip: %+v", got)
	}
	if !got.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected created_at: %v", got.CreatedAt)
	}

	count, err := svc.CountTickets(context.Background())
	if err != nil || count != 1 {
		t.Fatalf("expected count 1, got %d (%v)", count, err)
	}
}

func TestTicketService_GetTicketCanonicalID(t *testing.T) {
	svc := NewTicketService(ticketmem.New(), nil)
	svc.NewID = func() string { return "6f1c1d64-8d1e-4c55-9c89-2d9f1b0e6a01" }
	if _, err := svc.IssueTicket(context.Background(), IssueTicketInput{
		VATIN:     "12345678901",
		FirstName: "Ana",
		LastName:  "Kovač",
	}); err != nil {
		t.Fatalf("issue: %v", err)
	}

	for _, id := range []string{
		"6F1C1D64-8D1E-4C55-9C89-2D9F1B0E6A01",
		"urn:uuid:6f1c1d64-8d1e-4c55-9c89-2d9f1b0e6a01",
		"{6f1c1d64-8d1e-4c55-9c89-2d9f1b0e6a01}",
	} {
		got, err := svc.GetTicket(context.Background(), id)
		if err != nil {
			t.Fatalf("get %q: %v", id, err)
		}
		if got.ID != "6f1c1d64-8d1e-4c55-9c89-2d9f1b0e6a01" {
			t.Fatalf("unexpected ticket id %q", got.ID)
		}
	}
}

func TestTicketService_ExhaustedVATINSkipsInsert(t *testing.T) {
	repo := &countingRepo{TicketRepository: ticketmem.New()}
	svc := NewTicketService(repo, nil)

	in := IssueTicketInput{VATIN: "12345678901", FirstName: "Ana", LastName: "Kovač"}
	for i := 0; i < domain.MaxTicketsPerVATIN; i++ {
		if _, err := svc.IssueTicket(context.Background(), in); err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
	}
	if _, err := svc.IssueTicket(context.Background(), in); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	if repo.calls != domain.MaxTicketsPerVATIN {
		t.Fatalf("expected %d inserts, got %d", domain.MaxTicketsPerVATIN, repo.calls)
	}

	other := IssueTicketInput{VATIN: "98765432109", FirstName: "Ivo", LastName: "Horvat"}
	if _, err := svc.IssueTicket(context.Background(), other); err != nil {
		t.Fatalf("other vatin: %v", err)
	}
}

func TestTicketService_GetTicketNotFound(t *testing.T) {
	svc := NewTicketService(ticketmem.New(), nil)
	for _, id := range []string{"not-a-uuid", "6f1c1d64-8d1e-4c55-9c89-2d9f1b0e6a01"} {
		if _, err := svc.GetTicket(context.Background(), id); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found for %q, got %v", id, err)
		}
	}
}

func TestTicketService_PolicyDeny(t *testing.T) {
	repo := &countingRepo{TicketRepository: ticketmem.New()}
	policy := &stubPolicy{decision: domain.PolicyDecision{Deny: []string{"blocked"}}}
	svc := NewTicketService(repo, policy)

	identity := &domain.Identity{Subject: "alice", App: "ticket-app"}
	_, err := svc.IssueTicket(context.Background(), IssueTicketInput{
		VATIN:     "12345678901",
		FirstName: "Ana",
		LastName:  "Kovač",
		Identity:  identity,
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if repo.calls != 0 {
		t.Fatalf("expected no storage calls after deny")
	}
	if !policy.last.Authenticated || policy.last.Subject != "alice" || policy.last.VATIN != "12345678901" {
		t.Fatalf("unexpected policy input: %+v", policy.last)
	}
}

func TestTicketService_PolicyErrorIsNotForbidden(t *testing.T) {
	policy := &stubPolicy{err: errors.New("boom")}
	svc := NewTicketService(ticketmem.New(), policy)
	_, err := svc.IssueTicket(context.Background(), IssueTicketInput{VATIN: "1", FirstName: "a", LastName: "b"})
	if err == nil || errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected plain error, got %v", err)
	}
}
