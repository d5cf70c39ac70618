package dispatch

import (
	"strings"
	"testing"

	"github.com/tanweijie/splitbot/internal/bill"
)

const chatID = int64(77)

func newDispatcher() (*Dispatcher, *bill.Service) {
	bills := bill.NewService()
	return New(bills), bills
}

// walkSetup drives a session from /start to entry collection.
func walkSetup(t *testing.T, d *Dispatcher, mode, total, tax, service string) {
	t.Helper()
	if r := d.Dispatch(chatID, CmdStart, nil); r.Keyboard != KbMode {
		t.Fatalf("/start keyboard = %v, want KbMode", r.Keyboard)
	}
	if r := d.HandleCallback(chatID, mode); r.Keyboard != KbCurrency {
		t.Fatalf("mode callback keyboard = %v, want KbCurrency", r.Keyboard)
	}
	if r := d.HandleCallback(chatID, TokenCurSGD); !strings.Contains(r.Text, "Currency set to SGD") {
		t.Fatalf("currency callback reply = %q", r.Text)
	}
	for _, text := range []string{total, tax, service} {
		r, ok := d.HandleText(chatID, text)
		if !ok {
			t.Fatalf("HandleText(%q) not handled", text)
		}
		if strings.Contains(r.Text, "❌") {
			t.Fatalf("HandleText(%q) rejected: %q", text, r.Text)
		}
	}
}

func TestDispatchWithoutSession(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		args []string
	}{
		{name: "addamount", cmd: CmdAddAmount, args: []string{"Alice", "10"}},
		{name: "editamount", cmd: CmdEditAmount, args: []string{"Alice", "10"}},
		{name: "remove", cmd: CmdRemove, args: []string{"Alice"}},
		{name: "list", cmd: CmdList},
		{name: "settotal", cmd: CmdSetTotal, args: []string{"50"}},
		{name: "calculate", cmd: CmdCalculate},
		{name: "reset", cmd: CmdReset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, bills := newDispatcher()
			r := d.Dispatch(chatID, tt.cmd, tt.args)
			if r.Text != noSessionText {
				t.Errorf("reply = %q, want no-session message", r.Text)
			}
			if bills.Exists(chatID) {
				t.Error("rejected command created a session")
			}
		})
	}
}

func TestHelpWorksInAnyState(t *testing.T) {
	d, _ := newDispatcher()
	if r := d.Dispatch(chatID, CmdHelp, nil); !strings.Contains(r.Text, "/addamount") {
		t.Errorf("help without session = %q", r.Text)
	}
	walkSetup(t, d, TokenModeCustom, "100", "0", "0")
	if r := d.Dispatch(chatID, CmdHelp, nil); !strings.Contains(r.Text, "/calculate") {
		t.Errorf("help with session = %q", r.Text)
	}
}

func TestFullCustomFlow(t *testing.T) {
	d, _ := newDispatcher()
	walkSetup(t, d, TokenModeCustom, "100", "9", "10")

	if r := d.Dispatch(chatID, CmdAddAmount, []string{"Alice", "60"}); !strings.Contains(r.Text, "Added Alice: SGD 60.00") {
		t.Fatalf("addamount reply = %q", r.Text)
	}
	if r := d.Dispatch(chatID, CmdAddAmount, []string{"Bob", "40"}); !strings.Contains(r.Text, "Added Bob") {
		t.Fatalf("addamount reply = %q", r.Text)
	}

	r := d.Dispatch(chatID, CmdCalculate, nil)
	if !r.Final {
		t.Fatalf("calculate reply not marked final: %+v", r)
	}
	for _, want := range []string{
		"Grand total: SGD 119.00",
		"Alice: SGD 71.40",
		"Bob: SGD 47.60",
		"Tax (9%)",
		"Service charge (10%)",
	} {
		if !strings.Contains(r.Text, want) {
			t.Errorf("breakdown missing %q:\n%s", want, r.Text)
		}
	}
}

func TestOverwriteReflectedInList(t *testing.T) {
	d, _ := newDispatcher()
	walkSetup(t, d, TokenModeCustom, "100", "0", "0")

	d.Dispatch(chatID, CmdAddAmount, []string{"Alice", "18.5"})
	d.Dispatch(chatID, CmdAddAmount, []string{"Bob", "22"})
	if r := d.Dispatch(chatID, CmdEditAmount, []string{"Alice", "25"}); !strings.Contains(r.Text, "Updated Alice") {
		t.Fatalf("editamount reply = %q", r.Text)
	}

	r := d.Dispatch(chatID, CmdList, nil)
	aliceIdx := strings.Index(r.Text, "Alice: 25.00")
	bobIdx := strings.Index(r.Text, "Bob: 22.00")
	if aliceIdx < 0 || bobIdx < 0 {
		t.Fatalf("list missing overwritten entries:\n%s", r.Text)
	}
	if aliceIdx > bobIdx {
		t.Errorf("overwrite changed entry order:\n%s", r.Text)
	}
	if strings.Contains(r.Text, "18.5") {
		t.Errorf("list still shows the pre-overwrite amount:\n%s", r.Text)
	}
}

func TestQuotedNames(t *testing.T) {
	d, _ := newDispatcher()
	walkSetup(t, d, TokenModeCustom, "100", "0", "0")

	if r := d.Dispatch(chatID, CmdAddAmount, []string{`"Aunty`, `May"`, "12.80"}); !strings.Contains(r.Text, "Added Aunty May") {
		t.Fatalf("quoted addamount reply = %q", r.Text)
	}
	if r := d.Dispatch(chatID, CmdRemove, []string{`"Aunty`, `May"`}); !strings.Contains(r.Text, "Removed Aunty May") {
		t.Fatalf("quoted remove reply = %q", r.Text)
	}
}

func TestMalformedArgumentsDoNotMutate(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		args []string
		want string
	}{
		{name: "add missing amount", cmd: CmdAddAmount, args: []string{"Alice"}, want: "Usage: /addamount"},
		{name: "add non-numeric amount", cmd: CmdAddAmount, args: []string{"Alice", "ten"}, want: "Usage: /addamount"},
		{name: "add negative amount", cmd: CmdAddAmount, args: []string{"Alice", "-5"}, want: "Amount must be a positive number"},
		{name: "remove missing name", cmd: CmdRemove, args: nil, want: "Usage: /remove"},
		{name: "settotal missing amount", cmd: CmdSetTotal, args: nil, want: "Usage: /settotal"},
		{name: "settotal non-numeric", cmd: CmdSetTotal, args: []string{"lots"}, want: "Usage: /settotal"},
		{name: "settotal non-positive", cmd: CmdSetTotal, args: []string{"0"}, want: "Amount must be a positive number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, bills := newDispatcher()
			walkSetup(t, d, TokenModeCustom, "100", "0", "0")

			r := d.Dispatch(chatID, tt.cmd, tt.args)
			if !strings.Contains(r.Text, tt.want) {
				t.Errorf("reply = %q, want it to contain %q", r.Text, tt.want)
			}
			v, err := bills.View(chatID)
			if err != nil {
				t.Fatalf("View() error = %v", err)
			}
			if len(v.Entries) != 0 {
				t.Errorf("malformed command mutated entries: %+v", v.Entries)
			}
			if v.Total != 100 {
				t.Errorf("malformed command mutated total: %v", v.Total)
			}
		})
	}
}

func TestCalculateEmptyBill(t *testing.T) {
	d, _ := newDispatcher()
	walkSetup(t, d, TokenModeEqual, "100", "0", "0")

	r := d.Dispatch(chatID, CmdCalculate, nil)
	if !strings.Contains(r.Text, "Nothing to split") {
		t.Fatalf("empty calculate reply = %q", r.Text)
	}

	// State stays COLLECTING: entries can still be added and calculated
	if r := d.Dispatch(chatID, CmdAddAmount, []string{"Alice", "1"}); !strings.Contains(r.Text, "Added Alice") {
		t.Errorf("addamount after failed calculate = %q", r.Text)
	}
}

func TestFinalizedStateRejectsMutations(t *testing.T) {
	d, _ := newDispatcher()
	walkSetup(t, d, TokenModeEqual, "100", "0", "0")
	d.Dispatch(chatID, CmdAddAmount, []string{"Alice", "1"})
	d.Dispatch(chatID, CmdAddAmount, []string{"Bob", "1"})
	if r := d.Dispatch(chatID, CmdCalculate, nil); !r.Final {
		t.Fatalf("calculate did not finalize: %q", r.Text)
	}

	for _, tt := range []struct {
		cmd  Command
		args []string
	}{
		{cmd: CmdAddAmount, args: []string{"Carol", "1"}},
		{cmd: CmdRemove, args: []string{"Alice"}},
		{cmd: CmdSetTotal, args: []string{"50"}},
		{cmd: CmdCalculate},
	} {
		if r := d.Dispatch(chatID, tt.cmd, tt.args); !strings.Contains(r.Text, "already finalized") {
			t.Errorf("%v in finalized state = %q, want rejection", tt.cmd, r.Text)
		}
	}

	// /list still renders the snapshot
	if r := d.Dispatch(chatID, CmdList, nil); !strings.Contains(r.Text, "Alice") {
		t.Errorf("list in finalized state = %q", r.Text)
	}

	// /reset returns to a fresh collecting session
	if r := d.Dispatch(chatID, CmdReset, nil); r.Keyboard != KbMode {
		t.Errorf("reset keyboard = %v, want KbMode", r.Keyboard)
	}
	if r := d.HandleCallback(chatID, TokenModeCustom); r.Keyboard != KbCurrency {
		t.Errorf("mode choice after reset = %+v", r)
	}
}

func TestStopThenCommandsNeedNewSession(t *testing.T) {
	d, bills := newDispatcher()
	walkSetup(t, d, TokenModeCustom, "100", "0", "0")

	if r := d.Dispatch(chatID, CmdStop, nil); !strings.Contains(r.Text, "Stopped") {
		t.Fatalf("stop reply = %q", r.Text)
	}
	if bills.Exists(chatID) {
		t.Fatal("session survived /stop")
	}
	if r := d.Dispatch(chatID, CmdList, nil); r.Text != noSessionText {
		t.Errorf("list after stop = %q, want no-session message", r.Text)
	}
	if r := d.Dispatch(chatID, CmdStart, nil); r.Keyboard != KbMode {
		t.Errorf("start after stop = %+v, want mode prompt", r)
	}
}

func TestMismatchGuardAndFixes(t *testing.T) {
	setup := func(t *testing.T) (*Dispatcher, *bill.Service) {
		d, bills := newDispatcher()
		walkSetup(t, d, TokenModeCustom, "100", "0", "0")
		d.Dispatch(chatID, CmdAddAmount, []string{"A", "60"})
		d.Dispatch(chatID, CmdAddAmount, []string{"B", "30"})
		return d, bills
	}

	t.Run("guard trips on mismatch", func(t *testing.T) {
		d, _ := setup(t)
		r := d.Dispatch(chatID, CmdCalculate, nil)
		if r.Keyboard != KbFix || !strings.Contains(r.Text, "don't add up") {
			t.Fatalf("mismatch reply = %+v", r)
		}
		if r.Final {
			t.Error("mismatch reply must not finalize")
		}
	})

	t.Run("scale amounts", func(t *testing.T) {
		d, bills := setup(t)
		d.Dispatch(chatID, CmdCalculate, nil)
		if r := d.HandleCallback(chatID, TokenFixScale); !strings.Contains(r.Text, "Scaled") {
			t.Fatalf("fix_scale reply = %q", r.Text)
		}
		v, _ := bills.View(chatID)
		if diff := v.EntrySum - 100; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("EntrySum after scale = %v, want 100", v.EntrySum)
		}
		if r := d.Dispatch(chatID, CmdCalculate, nil); !r.Final {
			t.Errorf("calculate after scale = %+v, want breakdown", r)
		}
	})

	t.Run("total from sum", func(t *testing.T) {
		d, _ := setup(t)
		d.Dispatch(chatID, CmdCalculate, nil)
		if r := d.HandleCallback(chatID, TokenFixSum); !strings.Contains(r.Text, "SGD 90.00") {
			t.Fatalf("fix_sum reply = %q", r.Text)
		}
		r := d.Dispatch(chatID, CmdCalculate, nil)
		if !r.Final || !strings.Contains(r.Text, "Grand total: SGD 90.00") {
			t.Errorf("calculate after fix_sum = %q", r.Text)
		}
	})

	t.Run("calculate anyway keeps override", func(t *testing.T) {
		d, _ := setup(t)
		d.Dispatch(chatID, CmdCalculate, nil)
		r := d.HandleCallback(chatID, TokenFixAnyway)
		if !r.Final {
			t.Fatalf("fix_anyway reply = %+v, want breakdown", r)
		}
		// Shares are proportional to the overridden base of 100, so they
		// deliberately do not sum to the grand total
		for _, want := range []string{"Grand total: SGD 100.00", "A: SGD 60.00", "B: SGD 30.00"} {
			if !strings.Contains(r.Text, want) {
				t.Errorf("breakdown missing %q:\n%s", want, r.Text)
			}
		}
	})

	t.Run("equal mode skips the guard", func(t *testing.T) {
		d, _ := newDispatcher()
		walkSetup(t, d, TokenModeEqual, "100", "0", "0")
		d.Dispatch(chatID, CmdAddAmount, []string{"A", "1"})
		d.Dispatch(chatID, CmdAddAmount, []string{"B", "1"})
		if r := d.Dispatch(chatID, CmdCalculate, nil); !r.Final {
			t.Errorf("equal-mode calculate = %+v, want breakdown", r)
		}
	})
}

func TestSetupRejectsBadInput(t *testing.T) {
	d, _ := newDispatcher()
	d.Dispatch(chatID, CmdStart, nil)
	d.HandleCallback(chatID, TokenModeCustom)
	d.HandleCallback(chatID, TokenCurMYR)

	for _, bad := range []string{"abc", "-10", "0"} {
		if r, ok := d.HandleText(chatID, bad); !ok || !strings.Contains(r.Text, "valid positive number") {
			t.Errorf("total %q reply = %q", bad, r.Text)
		}
	}
	if r, ok := d.HandleText(chatID, "88"); !ok || !strings.Contains(r.Text, "tax") {
		t.Fatalf("total accept reply = %q", r.Text)
	}
	for _, bad := range []string{"abc", "-1", "120"} {
		if r, ok := d.HandleText(chatID, bad); !ok || !strings.Contains(r.Text, "valid tax percentage") {
			t.Errorf("tax %q reply = %q", bad, r.Text)
		}
	}
	if r, ok := d.HandleText(chatID, "6"); !ok || !strings.Contains(r.Text, "service charge") {
		t.Fatalf("tax accept reply = %q", r.Text)
	}
	if r, ok := d.HandleText(chatID, "10"); !ok || !strings.Contains(r.Text, "Setup complete") {
		t.Fatalf("service accept reply = %q", r.Text)
	}

	// Free-form text is ignored once setup is done
	if _, ok := d.HandleText(chatID, "thanks bot"); ok {
		t.Error("text outside the setup flow was handled")
	}
}

func TestTextWithoutSessionIgnored(t *testing.T) {
	d, _ := newDispatcher()
	if _, ok := d.HandleText(chatID, "100"); ok {
		t.Error("text with no session was handled")
	}
	if r := d.HandleCallback(chatID, TokenModeEqual); r.Text != noSessionText {
		t.Errorf("callback with no session = %q", r.Text)
	}
}

func TestDeleteCleansUpKeepingBreakdown(t *testing.T) {
	d, bills := newDispatcher()

	// Without a session /delete quietly does nothing
	if r := d.Dispatch(chatID, CmdDelete, nil); r.Text != "" || len(r.PurgeIDs) != 0 {
		t.Errorf("delete without session = %+v", r)
	}

	walkSetup(t, d, TokenModeEqual, "100", "0", "0")
	bills.Track(chatID, 11)
	bills.Track(chatID, 12)
	bills.SetFinalMessage(chatID, 13)

	r := d.Dispatch(chatID, CmdDelete, nil)
	if len(r.PurgeIDs) != 2 {
		t.Errorf("delete purge ids = %v, want the two prompts", r.PurgeIDs)
	}
	for _, id := range r.PurgeIDs {
		if id == 13 {
			t.Error("delete purged the final breakdown message")
		}
	}

	// /stop purges everything that is left, breakdown included
	bills.Track(chatID, 14)
	r = d.Dispatch(chatID, CmdStop, nil)
	got := map[int]bool{}
	for _, id := range r.PurgeIDs {
		got[id] = true
	}
	if !got[13] || !got[14] {
		t.Errorf("stop purge ids = %v, want 13 and 14", r.PurgeIDs)
	}
}

func TestTransitionTable(t *testing.T) {
	for _, state := range []State{StateNone, StateCollecting, StateFinalized} {
		row, ok := transitions[state]
		if !ok {
			t.Fatalf("no transition row for state %v", state)
		}
		// /start, /help, /stop and /delete work everywhere
		for _, cmd := range []Command{CmdStart, CmdHelp, CmdStop, CmdDelete} {
			if !row[cmd] {
				t.Errorf("%v should be allowed in state %v", cmd, state)
			}
		}
	}

	for _, cmd := range []Command{CmdAddAmount, CmdEditAmount, CmdRemove, CmdSetTotal, CmdCalculate} {
		if transitions[StateNone][cmd] {
			t.Errorf("%v must not be allowed without a session", cmd)
		}
		if transitions[StateFinalized][cmd] {
			t.Errorf("%v must not be allowed on a finalized bill", cmd)
		}
	}
	if !transitions[StateFinalized][CmdList] || !transitions[StateFinalized][CmdReset] {
		t.Error("list and reset must stay available on a finalized bill")
	}
}
