package dispatch

import (
	"fmt"
	"strings"

	"github.com/tanweijie/splitbot/internal/bill"
)

const noSessionText = "❌ No active bill. Use /start first."

const helpText = `📖 How to use Bill Split Bot

1️⃣ Type /start to begin.
2️⃣ Pick a split mode: equal shares or custom amounts.
3️⃣ Choose your currency (SGD or MYR).
4️⃣ Enter the total bill amount (before tax/service).
5️⃣ Enter tax % and service charge %.
6️⃣ Add everyone with /addamount, then /calculate.

💡 Commands:
• /addamount <name> <amount> — add a person's subtotal
• /editamount <name> <amount> — change someone's subtotal
• /remove <name> — remove a person
• /list — show current entries
• /settotal <amount> — change the bill total
• /calculate — finalize and show the breakdown
• /reset — start over
• /stop — stop and clear everything
• /delete — clean up setup messages
• /help — show this text

Example:
/addamount Alice 18.5
/addamount Bob 22
Quote names with spaces: /addamount "Aunty May" 12.80`

const setupDoneText = `✅ Setup complete.

Now add each person's subtotal (before tax/service):
/addamount <name> <amount>

When everyone is in, run /calculate.
/list shows the entries so far, /help shows every command.`

func money(currency string, amount float64) string {
	return fmt.Sprintf("%s %.2f", currency, amount)
}

// pct formats a percentage without trailing zeros: 9, 9.5, 0.
func pct(rate float64) string {
	return fmt.Sprintf("%g%%", rate)
}

func mismatchText(v bill.View) string {
	diff := v.Total - v.EntrySum
	sign := "more"
	if diff < 0 {
		sign = "less"
		diff = -diff
	}
	var b strings.Builder
	b.WriteString("⚠️ Amounts don't add up\n\n")
	fmt.Fprintf(&b, "• Bill total (before tax/service): %s\n", money(v.Currency, v.Total))
	fmt.Fprintf(&b, "• Sum of entries: %s\n", money(v.Currency, v.EntrySum))
	fmt.Fprintf(&b, "• Difference: %s (%s)\n\n", money(v.Currency, diff), sign)
	b.WriteString("Choose an option below, or use /editamount, /addamount, /remove, or /settotal.")
	return b.String()
}

func renderBreakdown(res *bill.Result) string {
	var b strings.Builder
	if res.Mode == bill.CustomSplit {
		fmt.Fprintf(&b, "📊 Bill Breakdown (Custom) — %s\n", res.Currency)
	} else {
		fmt.Fprintf(&b, "📊 Bill Breakdown (Equal) — %s\n", res.Currency)
	}
	fmt.Fprintf(&b, "💵 Subtotal: %s\n", money(res.Currency, res.BaseTotal))
	fmt.Fprintf(&b, "🧾 Tax (%s): %s\n", pct(res.TaxRate), money(res.Currency, res.TaxAmount))
	fmt.Fprintf(&b, "🍽 Service charge (%s): %s\n", pct(res.ServiceRate), money(res.Currency, res.ServiceAmount))
	fmt.Fprintf(&b, "💰 Grand total: %s\n", money(res.Currency, res.GrandTotal))
	b.WriteString("—")
	for _, share := range res.Shares {
		fmt.Fprintf(&b, "\n👤 %s: %s", share.Name, money(res.Currency, share.Amount))
	}
	return b.String()
}
