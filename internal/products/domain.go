package products

import (
	"errors"
	"time"
)

// ErrNotFound indicates the product does not exist.
var ErrNotFound = errors.New("products: not found")

// Product is a tracked item registered by a manufacturer.
type Product struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	BatchNumber string    `json:"batchNumber"`
	Status      string    `json:"status"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Patch holds the mutable product fields; nil fields are left unchanged.
type Patch struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	BatchNumber *string `json:"batchNumber" validate:"omitempty,max=64"`
	Status      *string `json:"status" validate:"omitempty,oneof=registered in_transit delivered recalled"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.BatchNumber == nil && p.Status == nil
}
