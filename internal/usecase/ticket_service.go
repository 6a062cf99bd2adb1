package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticketgate/internal/domain"

	"github.com/google/uuid"
)

type IssueTicketInput struct {
	VATIN     string
	FirstName string
	LastName  string
	// Identity is nil on the ungated issuance variant.
	Identity *domain.Identity
}

type TicketService struct {
	Tickets domain.TicketRepository
	Policy  domain.IssuancePolicy
	Now     func() time.Time
	NewID   func() string
}

func NewTicketService(tickets domain.TicketRepository, policy domain.IssuancePolicy) *TicketService {
	return &TicketService{
		Tickets: tickets,
		Policy:  policy,
	}
}

func (s *TicketService) IssueTicket(ctx context.Context, in IssueTicketInput) (domain.Ticket, error) {
	if s == nil || s.Tickets == nil {
		return domain.Ticket{}, errors.New("ticket repository is required")
	}
	vatin := strings.TrimSpace(in.VATIN)
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if vatin == "" || first == "" || last == "" {
		return domain.Ticket{}, fmt.Errorf("%w: vatin, firstName and lastName are required", domain.ErrValidation)
	}
	if s.Policy != nil {
		if err := s.checkPolicy(ctx, in.Identity, vatin); err != nil {
			return domain.Ticket{}, err
		}
	}

	// Exhausted VATINs skip the locked insert. CreateWithQuota still decides
	// races between concurrent requests.
	if count, err := s.Tickets.CountByVATIN(ctx, vatin); err == nil && count >= domain.MaxTicketsPerVATIN {
		return domain.Ticket{}, domain.ErrQuotaExceeded
	}

	ticket := domain.Ticket{
		ID:        s.newID(),
		VATIN:     vatin,
		FirstName: first,
		LastName:  last,
		CreatedAt: s.now(),
	}
	if err := s.Tickets.CreateWithQuota(ctx, ticket, domain.MaxTicketsPerVATIN); err != nil {
		return domain.Ticket{}, err
	}
	return ticket, nil
}

func (s *TicketService) checkPolicy(ctx context.Context, identity *domain.Identity, vatin string) error {
	input := domain.PolicyInput{VATIN: vatin}
	if identity != nil {
		input.Authenticated = true
		input.Subject = identity.Subject
		input.Issuer = identity.Issuer
		input.App = identity.App
		input.Claims = identity.Claims
	}
	decision, err := s.Policy.Evaluate(ctx, input)
	if err != nil {
		return fmt.Errorf("evaluate issuance policy: %w", err)
	}
	if !decision.Allow {
		if len(decision.Deny) > 0 {
			return fmt.Errorf("%w: %s", domain.ErrForbidden, strings.Join(decision.Deny, "; "))
		}
		return domain.ErrForbidden
	}
	return nil
}

func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	if s == nil || s.Tickets == nil {
		return nil, errors.New("ticket repository is required")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	// Stores key tickets by the canonical lower-case form.
	return s.Tickets.GetByID(ctx, parsed.String())
}

func (s *TicketService) CountTickets(ctx context.Context) (int64, error) {
	if s == nil || s.Tickets == nil {
		return 0, errors.New("ticket repository is required")
	}
	return s.Tickets.Count(ctx)
}

func (s *TicketService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *TicketService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
