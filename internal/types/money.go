// README: Common money value object used across modules.
package types

import (
	"encoding/json"
	"fmt"
	"math"
)

// Money stores an amount in minor units (cents) to keep arithmetic exact.
type Money struct {
	Amount   int64
	Currency string
}

// FromFloat converts a decimal price (as it appears on the wire) to cents.
func FromFloat(v float64) Money {
	return Money{Amount: int64(math.Round(v * 100)), Currency: "USD"}
}

func (m Money) Float() float64 { return float64(m.Amount) / 100 }

func (m Money) Mul(n int) Money { return Money{Amount: m.Amount * int64(n), Currency: m.Currency} }

func (m Money) Add(o Money) Money { return Money{Amount: m.Amount + o.Amount, Currency: m.Currency} }

// MarshalJSON renders money as a plain decimal number so legacy clients
// keep seeing `"total_price": 13.00`.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%.2f", m.Float())), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*m = FromFloat(v)
	return nil
}
