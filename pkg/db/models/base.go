package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// BeforeCreate hooks assign ids client side so rows are addressable before
// the insert returns and on engines without gen_random_uuid().

func (p *Profile) BeforeCreate(*gorm.DB) error              { ensureID(&p.ID); return nil }
func (b *Brand) BeforeCreate(*gorm.DB) error                { ensureID(&b.ID); return nil }
func (c *Category) BeforeCreate(*gorm.DB) error             { ensureID(&c.ID); return nil }
func (p *Product) BeforeCreate(*gorm.DB) error              { ensureID(&p.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error                { ensureID(&o.ID); return nil }
func (i *OrderItem) BeforeCreate(*gorm.DB) error            { ensureID(&i.ID); return nil }
func (p *Payment) BeforeCreate(*gorm.DB) error              { ensureID(&p.ID); return nil }
func (i *Invoice) BeforeCreate(*gorm.DB) error              { ensureID(&i.ID); return nil }
func (c *CardToken) BeforeCreate(*gorm.DB) error            { ensureID(&c.ID); return nil }
func (v *CardEditVerification) BeforeCreate(*gorm.DB) error { ensureID(&v.ID); return nil }
func (b *Bank) BeforeCreate(*gorm.DB) error                 { ensureID(&b.ID); return nil }
func (a *ManagedBankAccount) BeforeCreate(*gorm.DB) error   { ensureID(&a.ID); return nil }
func (n *Notification) BeforeCreate(*gorm.DB) error         { ensureID(&n.ID); return nil }
func (a *Announcement) BeforeCreate(*gorm.DB) error         { ensureID(&a.ID); return nil }
func (e *OutboxEvent) BeforeCreate(*gorm.DB) error          { ensureID(&e.ID); return nil }
