package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ShippingDetails is where a won artwork is delivered
type ShippingDetails struct {
	StreetAddress string `json:"streetAddress" validate:"required,min=3"`
	Address       string `json:"address" validate:"required"`
	Zipcode       string `json:"zipcode" validate:"required,len=5,numeric"`
}

// Order aggregates the won bids of a user into one purchase
type Order struct {
	ID            uuid.UUID       `json:"id"`
	OrderNumber   string          `json:"orderNumber"`
	OrderDate     time.Time       `json:"orderDate"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	TotalQuantity int             `json:"totalQuantity"`
	ShippingDetails
	UserID  uuid.UUID   `json:"userId"`
	ItemIDs []uuid.UUID `json:"items"`
}
