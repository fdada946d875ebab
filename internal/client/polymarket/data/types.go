package polymarketdata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const ActivityTypeTrade = "TRADE"

// Decimal accepts both JSON numbers and numeric strings.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == `""` {
		d.Decimal = decimal.Zero
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		val, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		d.Decimal = val
		return nil
	}
	val, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid decimal: %s", raw)
	}
	d.Decimal = val
	return nil
}

// Int accepts integers encoded as numbers, floats or strings.
type Int int64

func (i *Int) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if raw == "" || raw == "null" {
		*i = 0
		return nil
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*i = Int(v)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid integer: %s", raw)
	}
	*i = Int(int64(f))
	return nil
}

type Activity struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Timestamp       Int     `json:"timestamp"`
	ConditionID     string  `json:"conditionId"`
	Type            string  `json:"type"`
	Size            Decimal `json:"size"`
	USDCSize        Decimal `json:"usdcSize"`
	TransactionHash string  `json:"transactionHash"`
	Price           Decimal `json:"price"`
	Asset           string  `json:"asset"`
	Side            string  `json:"side"`
	OutcomeIndex    Int     `json:"outcomeIndex"`
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	Icon            string  `json:"icon"`
	EventSlug       string  `json:"eventSlug"`
	Outcome         string  `json:"outcome"`
	Name            string  `json:"name"`
	Pseudonym       string  `json:"pseudonym"`

	// Raw keeps the original entry for auditing.
	Raw json.RawMessage `json:"-"`
}

func (a *Activity) UnmarshalJSON(b []byte) error {
	type alias Activity
	var tmp alias
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*a = Activity(tmp)
	a.Raw = append(json.RawMessage(nil), b...)
	return nil
}

type Position struct {
	ProxyWallet        string  `json:"proxyWallet"`
	Asset              string  `json:"asset"`
	ConditionID        string  `json:"conditionId"`
	Size               Decimal `json:"size"`
	AvgPrice           Decimal `json:"avgPrice"`
	InitialValue       Decimal `json:"initialValue"`
	CurrentValue       Decimal `json:"currentValue"`
	CashPnL            Decimal `json:"cashPnl"`
	PercentPnL         Decimal `json:"percentPnl"`
	TotalBought        Decimal `json:"totalBought"`
	RealizedPnL        Decimal `json:"realizedPnl"`
	PercentRealizedPnL Decimal `json:"percentRealizedPnl"`
	CurPrice           Decimal `json:"curPrice"`
	Redeemable         bool    `json:"redeemable"`
	Mergeable          bool    `json:"mergeable"`
	Title              string  `json:"title"`
	Slug               string  `json:"slug"`
	Icon               string  `json:"icon"`
	EventSlug          string  `json:"eventSlug"`
	Outcome            string  `json:"outcome"`
	OutcomeIndex       Int     `json:"outcomeIndex"`
	OppositeOutcome    string  `json:"oppositeOutcome"`
	OppositeAsset      string  `json:"oppositeAsset"`
	EndDate            string  `json:"endDate"`
	NegativeRisk       bool    `json:"negativeRisk"`
}
