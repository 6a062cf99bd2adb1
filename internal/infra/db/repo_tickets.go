package db

import (
	"context"
	"errors"

	"ticketgate/internal/domain"

	"gorm.io/gorm"
)

type TicketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// CreateWithQuota serializes writers for one VATIN with a transaction-scoped
// advisory lock, so the count and the insert see a consistent view. The lock
// is released on commit or rollback, including when ctx is cancelled.
func (r *TicketRepository) CreateWithQuota(ctx context.Context, ticket domain.Ticket, limit int) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext(?))`, ticket.VATIN).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&TicketModel{}).Where("vatin = ?", ticket.VATIN).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(limit) {
			return domain.ErrQuotaExceeded
		}
		model := TicketModel{
			ID:        ticket.ID,
			VATIN:     ticket.VATIN,
			FirstName: ticket.FirstName,
			LastName:  ticket.LastName,
			CreatedAt: ticket.CreatedAt,
		}
		return tx.Create(&model).Error
	})
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model TicketModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &domain.Ticket{
		ID:        model.ID,
		VATIN:     model.VATIN,
		FirstName: model.FirstName,
		LastName:  model.LastName,
		CreatedAt: model.CreatedAt,
	}, nil
}

func (r *TicketRepository) Count(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&TicketModel{}).Count(&count).Error
	return count, err
}

func (r *TicketRepository) CountByVATIN(ctx context.Context, vatin string) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&TicketModel{}).Where("vatin = ?", vatin).Count(&count).Error
	return count, err
}
