package types

import (
	"github.com/shopspring/decimal"
)

// Trade is a settled conversion returned by the custody service.
type Trade struct {
	TradeID    string          `json:"trade_id"`
	WalletID   string          `json:"wallet_id"`
	FromAsset  string          `json:"from_asset"`
	ToAsset    string          `json:"to_asset"`
	FromAmount decimal.Decimal `json:"from_amount"`
	ToAmount   decimal.Decimal `json:"to_amount"`
	TxHash     string          `json:"transaction_hash,omitempty"`
	TxLink     string          `json:"transaction_link,omitempty"`
	Network    string          `json:"network,omitempty"`
	Status     string          `json:"status,omitempty"`
}
