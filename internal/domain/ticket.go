package domain

import (
	"context"
	"time"
)

const MaxTicketsPerVATIN = 3

type Ticket struct {
	ID        string    `json:"id"`
	VATIN     string    `json:"vatin"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketRepository persists tickets. CreateWithQuota must count and insert
// atomically with respect to other writers for the same VATIN.
type TicketRepository interface {
	CreateWithQuota(ctx context.Context, ticket Ticket, limit int) error
	GetByID(ctx context.Context, id string) (*Ticket, error)
	Count(ctx context.Context) (int64, error)
	CountByVATIN(ctx context.Context, vatin string) (int64, error)
}
