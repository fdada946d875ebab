package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletPosition is the exchange-reported holding of a wallet in one outcome.
// Rows are replaced wholesale on every sync.
type WalletPosition struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Wallet      string `gorm:"type:varchar(64);not null;uniqueIndex:idx_position_key,priority:1"`
	Asset       string `gorm:"type:varchar(100);not null;uniqueIndex:idx_position_key,priority:2"`
	ConditionID string `gorm:"type:varchar(100);not null;uniqueIndex:idx_position_key,priority:3"`

	Size               decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	AvgPrice           decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	InitialValue       decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	CurrentValue       decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	CashPnL            decimal.Decimal `gorm:"column:cash_pnl;type:numeric(30,10);not null;default:0"`
	PercentPnL         decimal.Decimal `gorm:"column:percent_pnl;type:numeric(20,10);not null;default:0"`
	TotalBought        decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	RealizedPnL        decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`
	PercentRealizedPnL decimal.Decimal `gorm:"column:percent_realized_pnl;type:numeric(20,10);not null;default:0"`
	CurPrice           decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`

	Redeemable   bool `gorm:"not null;default:false"`
	Mergeable    bool `gorm:"not null;default:false"`
	NegativeRisk bool `gorm:"not null;default:false"`

	Title           string `gorm:"type:text"`
	Slug            string `gorm:"type:text"`
	Icon            string `gorm:"type:text"`
	EventSlug       string `gorm:"type:text"`
	Outcome         string `gorm:"type:varchar(100)"`
	OutcomeIndex    int    `gorm:"not null;default:0"`
	OppositeOutcome string `gorm:"type:varchar(100)"`
	OppositeAsset   string `gorm:"type:varchar(100)"`
	EndDate         string `gorm:"type:varchar(40)"`

	SyncedAt  time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (WalletPosition) TableName() string {
	return "wallet_positions"
}
