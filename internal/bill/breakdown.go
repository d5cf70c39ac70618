package bill

import "math"

// Share is one person's final amount owed, tax and service included.
type Share struct {
	Name   string
	Amount float64
}

// Result is a finalized breakdown. Shares keep entry insertion order.
// Rounded shares may differ from GrandTotal by a few cents; that drift is
// accepted rather than reconciled.
type Result struct {
	Mode          Mode
	Currency      string
	BaseTotal     float64
	TaxRate       float64
	ServiceRate   float64
	TaxAmount     float64
	ServiceAmount float64
	GrandTotal    float64
	Shares        []Share
}

// breakdown computes the per-person split. Callers guarantee at least one
// entry and a positive base total.
func breakdown(s *Session) *Result {
	base := s.baseTotal()
	taxAmount := base * s.TaxRate / 100
	serviceAmount := base * s.ServiceRate / 100
	grand := round2(base + taxAmount + serviceAmount)

	entries := s.entries()
	shares := make([]Share, 0, len(entries))
	switch s.Mode {
	case EqualSplit:
		per := round2(grand / float64(len(entries)))
		for _, e := range entries {
			shares = append(shares, Share{Name: e.Name, Amount: per})
		}
	case CustomSplit:
		for _, e := range entries {
			shares = append(shares, Share{
				Name:   e.Name,
				Amount: round2(e.Amount / base * grand),
			})
		}
	}

	return &Result{
		Mode:          s.Mode,
		Currency:      s.Currency,
		BaseTotal:     round2(base),
		TaxRate:       s.TaxRate,
		ServiceRate:   s.ServiceRate,
		TaxAmount:     round2(taxAmount),
		ServiceAmount: round2(serviceAmount),
		GrandTotal:    grand,
		Shares:        shares,
	}
}

// round2 rounds half up to two decimal places.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
