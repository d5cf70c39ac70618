package bill

import (
	"math"
	"strings"
	"sync"
)

// maxRate bounds tax and service-charge percentages to sane values.
const maxRate = 100

// Service owns every chat's bill session. The mutex serializes access per
// process, which also satisfies the per-chat serialization requirement when
// the transport delivers overlapping updates for the same chat.
type Service struct {
	mu    sync.Mutex
	store map[int64]*Session
}

func NewService() *Service {
	return &Service{store: make(map[int64]*Session)}
}

// Start creates a fresh session for the chat, discarding any existing one.
// Tracked message ids survive so the old prompts can still be cleaned up.
func (s *Service) Start(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := newSession(chatID)
	if old, ok := s.store[chatID]; ok {
		fresh.pending = old.pending
		if old.finalMsg != 0 {
			fresh.pending = append(fresh.pending, old.finalMsg)
		}
	}
	s.store[chatID] = fresh
}

// Stop removes the chat's session entirely. Reports whether one existed.
func (s *Service) Stop(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.store[chatID]
	delete(s.store, chatID)
	return ok
}

// Reset clears the session contents in place and returns it to the start of
// the setup flow, keeping the chat's slot.
func (s *Service) Reset(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return ErrNoSession
	}
	sess.clear()
	return nil
}

// Exists reports whether the chat has an active session.
func (s *Service) Exists(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.store[chatID]
	return ok
}

// Count returns the number of active sessions across all chats.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.store)
}

// AddEntry inserts or overwrites a named subtotal. Overwriting keeps the
// entry's original position. Reports whether an existing entry was replaced.
func (s *Service) AddEntry(chatID int64, name string, amount float64) (bool, error) {
	if err := validAmount(amount); err != nil {
		return false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, &ValidationError{Reason: "name must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return false, ErrNoSession
	}
	_, replaced := sess.amounts[name]
	if !replaced {
		sess.names = append(sess.names, name)
	}
	sess.amounts[name] = amount
	return replaced, nil
}

// RemoveEntry deletes a named subtotal from the bill.
func (s *Service) RemoveEntry(chatID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return ErrNoSession
	}
	if _, exists := sess.amounts[name]; !exists {
		return &NotFoundError{Name: name}
	}
	delete(sess.amounts, name)
	for i, n := range sess.names {
		if n == name {
			sess.names = append(sess.names[:i], sess.names[i+1:]...)
			break
		}
	}
	return nil
}

// SetTotal stores an explicit bill total that supersedes the sum of entries.
func (s *Service) SetTotal(chatID int64, amount float64) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return ErrNoSession
	}
	sess.Total = amount
	sess.TotalSet = true
	return nil
}

// SetRates stores the tax and service-charge percentages.
func (s *Service) SetRates(chatID int64, taxRate, serviceRate float64) error {
	if err := validRate(taxRate); err != nil {
		return err
	}
	if err := validRate(serviceRate); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return ErrNoSession
	}
	sess.TaxRate = taxRate
	sess.ServiceRate = serviceRate
	return nil
}

// SetTaxRate stores only the tax percentage, used by the setup flow.
func (s *Service) SetTaxRate(chatID int64, rate float64) error {
	if err := validRate(rate); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return ErrNoSession
	}
	sess.TaxRate = rate
	return nil
}

// SetServiceRate stores only the service-charge percentage.
func (s *Service) SetServiceRate(chatID int64, rate float64) error {
	if err := validRate(rate); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return ErrNoSession
	}
	sess.ServiceRate = rate
	return nil
}

// SetMode selects the split mode and advances setup to currency choice when
// the session is still waiting for a mode.
func (s *Service) SetMode(chatID int64, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return ErrNoSession
	}
	sess.Mode = mode
	if sess.Phase == PhaseMode {
		sess.Phase = PhaseCurrency
	}
	return nil
}

// SetCurrency selects the display currency and advances setup to the total
// prompt when the session is still waiting for a currency.
func (s *Service) SetCurrency(chatID int64, currency string) error {
	if currency != CurrencySGD && currency != CurrencyMYR {
		return &ValidationError{Reason: "unsupported currency"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return ErrNoSession
	}
	sess.Currency = currency
	if sess.Phase == PhaseCurrency {
		sess.Phase = PhaseTotal
	}
	return nil
}

// Phase returns the session's current setup phase.
func (s *Service) Phase(chatID int64) (Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return 0, ErrNoSession
	}
	return sess.Phase, nil
}

// SetPhase moves the session to the given setup phase.
func (s *Service) SetPhase(chatID int64, phase Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return ErrNoSession
	}
	sess.Phase = phase
	return nil
}

// View is a copy of a session's user-visible state for rendering.
type View struct {
	Mode        Mode
	Phase       Phase
	Currency    string
	Entries     []Entry
	EntrySum    float64
	Total       float64
	TotalSet    bool
	TaxRate     float64
	ServiceRate float64
}

// View returns a snapshot of the chat's session.
func (s *Service) View(chatID int64) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return View{}, ErrNoSession
	}
	return View{
		Mode:        sess.Mode,
		Phase:       sess.Phase,
		Currency:    sess.Currency,
		Entries:     sess.entries(),
		EntrySum:    sess.entrySum(),
		Total:       sess.Total,
		TotalSet:    sess.TotalSet,
		TaxRate:     sess.TaxRate,
		ServiceRate: sess.ServiceRate,
	}, nil
}

// Finalize computes the breakdown and moves the session to its terminal
// display phase. The session stays in place so /list keeps working; /reset
// or /stop leave the finalized state.
func (s *Service) Finalize(chatID int64) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return nil, ErrNoSession
	}
	if len(sess.names) == 0 {
		return nil, ErrEmptyBill
	}
	res := breakdown(sess)
	sess.Phase = PhaseFinal
	return res, nil
}

// ScaleToTotal rescales every entry proportionally so the entry sum matches
// the explicit total. Used by the mismatch-fix flow before recalculating.
func (s *Service) ScaleToTotal(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return ErrNoSession
	}
	if !sess.TotalSet {
		return &ValidationError{Reason: "no explicit total to scale to"}
	}
	sum := sess.entrySum()
	if sum <= 0 {
		return &ValidationError{Reason: "cannot scale while the entry sum is zero"}
	}
	factor := sess.Total / sum
	for name, a := range sess.amounts {
		sess.amounts[name] = a * factor
	}
	return nil
}

// TotalFromSum replaces the explicit total with the current entry sum.
func (s *Service) TotalFromSum(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return ErrNoSession
	}
	sess.Total = sess.entrySum()
	sess.TotalSet = true
	return nil
}

// Track records a bot-sent prompt message id for later cleanup. Chats with
// no session are ignored.
func (s *Service) Track(chatID int64, messageID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.store[chatID]; ok {
		sess.pending = append(sess.pending, messageID)
	}
}

// SetFinalMessage marks the breakdown message that ordinary cleanup keeps.
func (s *Service) SetFinalMessage(chatID int64, messageID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.store[chatID]; ok {
		sess.finalMsg = messageID
	}
}

// Flush returns and forgets the message ids due for deletion. With keepFinal
// the last breakdown message is spared; otherwise it is included.
func (s *Service) Flush(chatID int64, keepFinal bool) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[chatID]
	if !ok {
		return nil
	}
	ids := sess.pending
	sess.pending = nil
	if !keepFinal && sess.finalMsg != 0 {
		ids = append(ids, sess.finalMsg)
		sess.finalMsg = 0
	}
	return ids
}

func validAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return &ValidationError{Reason: "amount must be a positive number"}
	}
	return nil
}

func validRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate > maxRate {
		return &ValidationError{Reason: "rate must be between 0 and 100"}
	}
	return nil
}
