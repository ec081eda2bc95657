package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

type orderSagaModel struct {
	OrderID           string          `gorm:"column:order_id;primaryKey"`
	Amount            decimal.Decimal `gorm:"column:amount;type:numeric(18,2)"`
	State             string          `gorm:"column:state"`
	PaymentProcessed  bool            `gorm:"column:payment_processed"`
	ShippingProcessed bool            `gorm:"column:shipping_processed"`
	CreatedAt         time.Time       `gorm:"column:created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at"`
	ErrorMessage      *string         `gorm:"column:error_message"`
}

func (orderSagaModel) TableName() string { return "order_sagas" }
