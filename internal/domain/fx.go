package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FXRate converts one unit of From into Rate units of To.
type FXRate struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Rate   decimal.Decimal `json:"rate"`
	Source string          `json:"source"`
	AsOf   time.Time       `json:"as_of"`
}
