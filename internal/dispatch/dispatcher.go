package dispatch

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tanweijie/splitbot/internal/bill"
)

// Keyboard identifies an inline keyboard the transport should attach to a
// reply. The dispatcher never sees transport types.
type Keyboard int

const (
	KbNone Keyboard = iota
	KbMode
	KbCurrency
	KbFix
)

// Callback tokens for inline keyboard buttons.
const (
	TokenModeEqual  = "mode_equal"
	TokenModeCustom = "mode_custom"
	TokenCurSGD     = "cur_sgd"
	TokenCurMYR     = "cur_myr"
	TokenFixScale   = "fix_scale"
	TokenFixSum     = "fix_sum"
	TokenFixAnyway  = "fix_anyway"
)

// Reply is what the transport should do after a command: send Text with the
// given keyboard, delete the PurgeIDs messages, and remember the sent
// message as the final breakdown when Final is set.
type Reply struct {
	Text     string
	Keyboard Keyboard
	PurgeIDs []int
	Final    bool
}

// mismatchTolerance is how far the entry sum may drift from an explicit
// total before /calculate asks the user to fix it, in currency units.
const mismatchTolerance = 0.01

// Dispatcher turns commands, text replies, and button callbacks into
// session mutations and response payloads. Errors from the session layer
// are mapped to user-visible messages here and never propagate further.
type Dispatcher struct {
	bills *bill.Service
}

func New(bills *bill.Service) *Dispatcher {
	return &Dispatcher{bills: bills}
}

// Dispatch runs one command for one chat. Commands not allowed in the
// chat's current state are rejected without touching the session.
func (d *Dispatcher) Dispatch(chatID int64, cmd Command, args []string) Reply {
	state := d.state(chatID)
	if !transitions[state][cmd] {
		return d.rejected(state)
	}

	switch cmd {
	case CmdStart:
		return d.start(chatID)
	case CmdHelp:
		return Reply{Text: helpText}
	case CmdAddAmount:
		return d.addAmount(chatID, args, "/addamount <name> <amount>")
	case CmdEditAmount:
		return d.addAmount(chatID, args, "/editamount <name> <amount>")
	case CmdRemove:
		return d.remove(chatID, args)
	case CmdList:
		return d.list(chatID)
	case CmdSetTotal:
		return d.setTotal(chatID, args)
	case CmdCalculate:
		return d.calculate(chatID, false)
	case CmdReset:
		return d.reset(chatID)
	case CmdStop:
		return d.stop(chatID)
	case CmdDelete:
		return d.cleanup(chatID)
	}
	return Reply{}
}

// HandleText interprets a plain-text message according to the session's
// setup phase. Reports false when the text is not part of the setup flow.
func (d *Dispatcher) HandleText(chatID int64, text string) (Reply, bool) {
	phase, err := d.bills.Phase(chatID)
	if err != nil {
		return Reply{}, false
	}
	text = strings.TrimSpace(text)

	switch phase {
	case bill.PhaseTotal:
		amount, perr := strconv.ParseFloat(text, 64)
		if perr != nil || d.bills.SetTotal(chatID, amount) != nil {
			return Reply{Text: "❌ Please enter a valid positive number for the total."}, true
		}
		d.bills.SetPhase(chatID, bill.PhaseTax)
		return Reply{Text: "🧾 Enter tax % (e.g. 9). Type 0 if none:"}, true
	case bill.PhaseTax:
		rate, perr := strconv.ParseFloat(text, 64)
		if perr != nil || d.bills.SetTaxRate(chatID, rate) != nil {
			return Reply{Text: "❌ Please enter a valid tax percentage (0–100)."}, true
		}
		d.bills.SetPhase(chatID, bill.PhaseService)
		return Reply{Text: "🍽 Enter service charge % (e.g. 10). Type 0 if none:"}, true
	case bill.PhaseService:
		rate, perr := strconv.ParseFloat(text, 64)
		if perr != nil || d.bills.SetServiceRate(chatID, rate) != nil {
			return Reply{Text: "❌ Please enter a valid service charge percentage (0–100)."}, true
		}
		d.bills.SetPhase(chatID, bill.PhaseCollect)
		return Reply{Text: setupDoneText}, true
	}
	return Reply{}, false
}

// HandleCallback runs an inline-button selection for one chat.
func (d *Dispatcher) HandleCallback(chatID int64, token string) Reply {
	if !d.bills.Exists(chatID) {
		return Reply{Text: noSessionText}
	}

	switch token {
	case TokenModeEqual:
		return d.chooseMode(chatID, bill.EqualSplit)
	case TokenModeCustom:
		return d.chooseMode(chatID, bill.CustomSplit)
	case TokenCurSGD:
		return d.chooseCurrency(chatID, bill.CurrencySGD)
	case TokenCurMYR:
		return d.chooseCurrency(chatID, bill.CurrencyMYR)
	case TokenFixScale:
		if err := d.bills.ScaleToTotal(chatID); err != nil {
			return d.errReply(err)
		}
		return Reply{Text: "✅ Scaled all amounts proportionally to match the bill total. Run /calculate again."}
	case TokenFixSum:
		if err := d.bills.TotalFromSum(chatID); err != nil {
			return d.errReply(err)
		}
		v, err := d.bills.View(chatID)
		if err != nil {
			return d.errReply(err)
		}
		return Reply{Text: fmt.Sprintf("✅ Total updated to match the entry sum: %s. Run /calculate again.", money(v.Currency, v.Total))}
	case TokenFixAnyway:
		return d.calculate(chatID, true)
	}
	return Reply{}
}

func (d *Dispatcher) state(chatID int64) State {
	phase, err := d.bills.Phase(chatID)
	if err != nil {
		return StateNone
	}
	if phase == bill.PhaseFinal {
		return StateFinalized
	}
	return StateCollecting
}

func (d *Dispatcher) rejected(state State) Reply {
	if state == StateFinalized {
		return Reply{Text: "⚠️ This bill is already finalized. Use /reset to start over or /stop to clear it."}
	}
	return Reply{Text: noSessionText}
}

func (d *Dispatcher) start(chatID int64) Reply {
	d.bills.Start(chatID)
	return Reply{
		Text:     "👋 Hello! Let's split a bill.\nHow should the total be divided?",
		Keyboard: KbMode,
	}
}

func (d *Dispatcher) chooseMode(chatID int64, mode bill.Mode) Reply {
	if err := d.bills.SetMode(chatID, mode); err != nil {
		return d.errReply(err)
	}
	phase, _ := d.bills.Phase(chatID)
	if phase == bill.PhaseCurrency {
		return Reply{Text: "Choose a currency:", Keyboard: KbCurrency}
	}
	return Reply{Text: "✅ Split mode updated."}
}

func (d *Dispatcher) chooseCurrency(chatID int64, currency string) Reply {
	if err := d.bills.SetCurrency(chatID, currency); err != nil {
		return d.errReply(err)
	}
	phase, _ := d.bills.Phase(chatID)
	if phase == bill.PhaseTotal {
		return Reply{Text: fmt.Sprintf("💰 Currency set to %s.\nEnter the total bill amount (before tax/service):", currency)}
	}
	return Reply{Text: fmt.Sprintf("✅ Currency set to %s.", currency)}
}

func (d *Dispatcher) addAmount(chatID int64, args []string, usage string) Reply {
	name, amount, err := parseNameAmount(args, usage)
	if err != nil {
		return d.errReply(err)
	}
	replaced, err := d.bills.AddEntry(chatID, name, amount)
	if err != nil {
		return d.errReply(err)
	}
	v, err := d.bills.View(chatID)
	if err != nil {
		return d.errReply(err)
	}
	if replaced {
		return Reply{Text: fmt.Sprintf("✏️ Updated %s to %s.", name, money(v.Currency, amount))}
	}
	return Reply{Text: fmt.Sprintf("✅ Added %s: %s.", name, money(v.Currency, amount))}
}

func (d *Dispatcher) remove(chatID int64, args []string) Reply {
	name, rest, err := parseName(args)
	if err != nil || len(rest) != 0 {
		return d.errReply(&UsageError{Usage: "/remove <name>"})
	}
	if err := d.bills.RemoveEntry(chatID, name); err != nil {
		return d.errReply(err)
	}
	return Reply{Text: fmt.Sprintf("🗑 Removed %s.", name)}
}

func (d *Dispatcher) list(chatID int64) Reply {
	v, err := d.bills.View(chatID)
	if err != nil {
		return d.errReply(err)
	}
	if len(v.Entries) == 0 {
		return Reply{Text: "📝 No entries yet. Add one with /addamount <name> <amount>."}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Current entries (%s):\n", v.Currency)
	for _, e := range v.Entries {
		fmt.Fprintf(&b, "• %s: %.2f\n", e.Name, e.Amount)
	}
	fmt.Fprintf(&b, "Sum of entries: %.2f", v.EntrySum)
	if v.TotalSet {
		fmt.Fprintf(&b, "\nBill total (before tax/service): %.2f", v.Total)
	}
	return Reply{Text: b.String()}
}

func (d *Dispatcher) setTotal(chatID int64, args []string) Reply {
	const usage = "/settotal <amount>"
	if len(args) != 1 {
		return d.errReply(&UsageError{Usage: usage})
	}
	amount, err := parseAmount(args[0], usage)
	if err != nil {
		return d.errReply(err)
	}
	if err := d.bills.SetTotal(chatID, amount); err != nil {
		return d.errReply(err)
	}
	v, err := d.bills.View(chatID)
	if err != nil {
		return d.errReply(err)
	}
	return Reply{Text: fmt.Sprintf("🔁 Bill total updated to %s (before tax/service).", money(v.Currency, amount))}
}

func (d *Dispatcher) calculate(chatID int64, force bool) Reply {
	v, err := d.bills.View(chatID)
	if err != nil {
		return d.errReply(err)
	}
	if !force && v.Mode == bill.CustomSplit && v.TotalSet && len(v.Entries) > 0 &&
		math.Abs(v.EntrySum-v.Total) > mismatchTolerance {
		return Reply{Text: mismatchText(v), Keyboard: KbFix}
	}
	res, err := d.bills.Finalize(chatID)
	if err != nil {
		return d.errReply(err)
	}
	return Reply{
		Text:     renderBreakdown(res),
		PurgeIDs: d.bills.Flush(chatID, true),
		Final:    true,
	}
}

func (d *Dispatcher) reset(chatID int64) Reply {
	ids := d.bills.Flush(chatID, false)
	if err := d.bills.Reset(chatID); err != nil {
		return d.errReply(err)
	}
	return Reply{
		Text:     "♻️ Reset done. Starting over…\nHow should the total be divided?",
		Keyboard: KbMode,
		PurgeIDs: ids,
	}
}

func (d *Dispatcher) stop(chatID int64) Reply {
	ids := d.bills.Flush(chatID, false)
	d.bills.Stop(chatID)
	return Reply{
		Text:     "🛑 Stopped. Type /start to begin again.",
		PurgeIDs: ids,
	}
}

func (d *Dispatcher) cleanup(chatID int64) Reply {
	if !d.bills.Exists(chatID) {
		return Reply{}
	}
	return Reply{
		Text:     "🧹 Cleaned up setup messages. Leaving the final breakdown.",
		PurgeIDs: d.bills.Flush(chatID, true),
	}
}

// errReply converts a session or parsing error into a user-facing message.
// Nothing escapes the dispatcher boundary.
func (d *Dispatcher) errReply(err error) Reply {
	var usage *UsageError
	var validation *bill.ValidationError
	var notFound *bill.NotFoundError
	switch {
	case errors.As(err, &usage):
		return Reply{Text: "❌ Usage: " + usage.Usage}
	case errors.As(err, &validation):
		return Reply{Text: "❌ " + capitalize(validation.Reason) + "."}
	case errors.As(err, &notFound):
		return Reply{Text: fmt.Sprintf("❌ %s not found.", notFound.Name)}
	case errors.Is(err, bill.ErrEmptyBill):
		return Reply{Text: "❌ Nothing to split yet. Add entries with /addamount <name> <amount> first."}
	case errors.Is(err, bill.ErrNoSession):
		return Reply{Text: noSessionText}
	}
	return Reply{Text: "❌ Something went wrong. Try /start to begin a new bill."}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
