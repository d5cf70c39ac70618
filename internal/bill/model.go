package bill

import (
	"errors"
	"fmt"
)

// Mode selects how the finalized total is distributed among entries.
type Mode int

const (
	// EqualSplit divides the grand total evenly among all named entries.
	EqualSplit Mode = iota
	// CustomSplit distributes the grand total proportionally to each
	// entry's subtotal share.
	CustomSplit
)

// Phase tracks where a session is in the guided setup flow. Commands from
// the dispatcher table work in any collecting phase; the phase only decides
// how plain-text replies are interpreted.
type Phase int

const (
	PhaseMode Phase = iota // waiting for a split-mode button
	PhaseCurrency          // waiting for a currency button
	PhaseTotal             // waiting for the bill total
	PhaseTax               // waiting for the tax percentage
	PhaseService           // waiting for the service-charge percentage
	PhaseCollect           // free-form entry collection
	PhaseFinal             // breakdown shown, session is read-only
)

const (
	CurrencySGD = "SGD"
	CurrencyMYR = "MYR"
)

// Session holds the state of one in-progress bill split for one chat.
// All access goes through Service, which serializes mutations per chat.
type Session struct {
	ChatID      int64
	Mode        Mode
	Phase       Phase
	Currency    string
	TaxRate     float64 // percent
	ServiceRate float64 // percent

	// TotalSet marks an explicit bill total that supersedes the sum of
	// entries when computing the breakdown.
	Total    float64
	TotalSet bool

	// Entries keep first-insertion order; overwriting an existing name
	// keeps its original position.
	names   []string
	amounts map[string]float64

	// Bot message ids pending deletion, plus the final breakdown message
	// which cleanup normally keeps.
	pending  []int
	finalMsg int
}

// Entry is a named subtotal on the bill.
type Entry struct {
	Name   string
	Amount float64
}

var (
	// ErrNoSession is returned when a chat has no active bill session.
	ErrNoSession = errors.New("no active bill session")
	// ErrEmptyBill is returned when finalizing a bill with no entries.
	ErrEmptyBill = errors.New("bill has no entries")
)

// ValidationError reports a semantically invalid value, such as a negative
// amount. It never mutates session state.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NotFoundError reports a reference to a name that is not on the bill.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s is not on the bill", e.Name)
}

func newSession(chatID int64) *Session {
	return &Session{
		ChatID:   chatID,
		Phase:    PhaseMode,
		Currency: CurrencySGD,
		amounts:  make(map[string]float64),
	}
}

// clear resets the bill contents in place, keeping the chat's slot.
func (s *Session) clear() {
	s.Mode = EqualSplit
	s.Phase = PhaseMode
	s.Currency = CurrencySGD
	s.TaxRate = 0
	s.ServiceRate = 0
	s.Total = 0
	s.TotalSet = false
	s.names = nil
	s.amounts = make(map[string]float64)
	s.finalMsg = 0
}

func (s *Session) entries() []Entry {
	out := make([]Entry, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, Entry{Name: name, Amount: s.amounts[name]})
	}
	return out
}

// entrySum is the sum of all entry subtotals, before tax and service.
func (s *Session) entrySum() float64 {
	var sum float64
	for _, a := range s.amounts {
		sum += a
	}
	return sum
}

// baseTotal is the amount tax and service apply to: the explicit total if
// one was set, otherwise the sum of entries.
func (s *Session) baseTotal() float64 {
	if s.TotalSet {
		return s.Total
	}
	return s.entrySum()
}
