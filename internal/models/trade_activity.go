package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TradeActivity is one observed trade of a watched wallet. Trade fields are
// written once; only Processed and ExecutionAttempts change afterwards.
type TradeActivity struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	Wallet          string `gorm:"type:varchar(64);not null;uniqueIndex:idx_activity_wallet_tx,priority:1;index:idx_activity_wallet_processed,priority:1"`
	TransactionHash string `gorm:"type:varchar(100);not null;uniqueIndex:idx_activity_wallet_tx,priority:2"`
	Timestamp       int64  `gorm:"not null;index"`

	ConditionID string `gorm:"type:varchar(100);not null;index"`
	Asset       string `gorm:"type:varchar(100);not null;index"`
	Side        string `gorm:"type:varchar(10);not null"`

	Size     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	USDCSize decimal.Decimal `gorm:"column:usdc_size;type:numeric(30,10);not null;default:0"`
	Price    decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`

	Title        string `gorm:"type:text"`
	Slug         string `gorm:"type:text"`
	Icon         string `gorm:"type:text"`
	EventSlug    string `gorm:"type:text"`
	Outcome      string `gorm:"type:varchar(100)"`
	OutcomeIndex int    `gorm:"not null;default:0"`
	Name         string `gorm:"type:text"`
	Pseudonym    string `gorm:"type:text"`

	Processed         bool           `gorm:"not null;default:false;index:idx_activity_wallet_processed,priority:2"`
	ExecutionAttempts int            `gorm:"not null;default:0"`
	Payload           datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TradeActivity) TableName() string {
	return "trade_activities"
}

func (a TradeActivity) TradedAt() time.Time {
	return time.Unix(a.Timestamp, 0).UTC()
}
