package db

import "time"

type TicketModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	VATIN     string    `gorm:"column:vatin;index;not null"`
	FirstName string    `gorm:"not null"`
	LastName  string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (TicketModel) TableName() string {
	return "tickets"
}
