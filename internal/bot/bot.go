package bot

import (
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"

	"github.com/tanweijie/splitbot/internal/bill"
	"github.com/tanweijie/splitbot/internal/dispatch"
)

// Bot is the Telegram transport adapter. It owns no bill logic: every
// update is forwarded to the dispatcher and the resulting Reply is played
// back as sends, deletions, and keyboard attachments.
type Bot struct {
	tb        *telebot.Bot
	bills     *bill.Service
	d         *dispatch.Dispatcher
	keyboards map[dispatch.Keyboard]*telebot.ReplyMarkup
}

func New(token string, bills *bill.Service, d *dispatch.Dispatcher) (*Bot, error) {
	tb, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	b := &Bot{
		tb:        tb,
		bills:     bills,
		d:         d,
		keyboards: make(map[dispatch.Keyboard]*telebot.ReplyMarkup),
	}
	b.registerHandlers()

	return b, nil
}

// Start begins long polling in the background.
func (b *Bot) Start() {
	go b.tb.Start()
	log.Infof("Telegram bot is running as @%s", b.tb.Me.Username)
}

func (b *Bot) Stop() {
	b.tb.Stop()
}

func (b *Bot) registerHandlers() {
	for cmd, name := range map[dispatch.Command]string{
		dispatch.CmdStart:      "/start",
		dispatch.CmdHelp:       "/help",
		dispatch.CmdAddAmount:  "/addamount",
		dispatch.CmdEditAmount: "/editamount",
		dispatch.CmdRemove:     "/remove",
		dispatch.CmdList:       "/list",
		dispatch.CmdSetTotal:   "/settotal",
		dispatch.CmdCalculate:  "/calculate",
		dispatch.CmdReset:      "/reset",
		dispatch.CmdStop:       "/stop",
		dispatch.CmdDelete:     "/delete",
	} {
		b.tb.Handle(name, b.command(name, cmd))
	}

	b.tb.Handle(telebot.OnText, b.onText)

	modeMenu := &telebot.ReplyMarkup{}
	btnEqual := modeMenu.Data("➗ Equal shares", dispatch.TokenModeEqual)
	btnCustom := modeMenu.Data("🧾 Custom amounts", dispatch.TokenModeCustom)
	modeMenu.Inline(modeMenu.Row(btnEqual), modeMenu.Row(btnCustom))
	b.keyboards[dispatch.KbMode] = modeMenu

	currencyMenu := &telebot.ReplyMarkup{}
	btnSGD := currencyMenu.Data("🇸🇬 SGD", dispatch.TokenCurSGD)
	btnMYR := currencyMenu.Data("🇲🇾 MYR", dispatch.TokenCurMYR)
	currencyMenu.Inline(currencyMenu.Row(btnSGD, btnMYR))
	b.keyboards[dispatch.KbCurrency] = currencyMenu

	fixMenu := &telebot.ReplyMarkup{}
	btnScale := fixMenu.Data("🔁 Scale amounts to match total", dispatch.TokenFixScale)
	btnSum := fixMenu.Data("🧾 Change total to sum of entries", dispatch.TokenFixSum)
	btnAnyway := fixMenu.Data("➡️ Calculate anyway", dispatch.TokenFixAnyway)
	fixMenu.Inline(fixMenu.Row(btnScale), fixMenu.Row(btnSum), fixMenu.Row(btnAnyway))
	b.keyboards[dispatch.KbFix] = fixMenu

	for _, btn := range []telebot.Btn{btnEqual, btnCustom, btnSGD, btnMYR, btnScale, btnSum, btnAnyway} {
		btn := btn
		b.tb.Handle(&btn, b.callback(btn.Unique))
	}
}

func (b *Bot) command(name string, cmd dispatch.Command) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		chatID := c.Chat().ID
		log.Infof("command %s chat=%d args=%d", name, chatID, len(c.Args()))
		return b.deliver(c, b.d.Dispatch(chatID, cmd, c.Args()))
	}
}

func (b *Bot) callback(token string) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		chatID := c.Chat().ID
		log.Infof("callback %s chat=%d", token, chatID)
		if err := c.Respond(); err != nil {
			log.Debugf("callback ack failed for chat %d: %v", chatID, err)
		}
		return b.deliver(c, b.d.HandleCallback(chatID, token))
	}
}

// onText feeds non-command text into the setup flow. Text outside the flow
// is ignored.
func (b *Bot) onText(c telebot.Context) error {
	reply, ok := b.d.HandleText(c.Chat().ID, c.Text())
	if !ok {
		return nil
	}
	return b.deliver(c, reply)
}

// deliver plays back a dispatcher reply: send the text with its keyboard,
// record the sent message for cleanup, then delete whatever the reply asks
// to purge.
func (b *Bot) deliver(c telebot.Context, reply dispatch.Reply) error {
	chatID := c.Chat().ID
	if reply.Text != "" {
		var opts []interface{}
		if markup, ok := b.keyboards[reply.Keyboard]; ok {
			opts = append(opts, markup)
		}
		msg, err := b.tb.Send(c.Chat(), reply.Text, opts...)
		if err != nil {
			return fmt.Errorf("failed to send reply to chat %d: %w", chatID, err)
		}
		if reply.Final {
			b.bills.SetFinalMessage(chatID, msg.ID)
		} else {
			b.bills.Track(chatID, msg.ID)
		}
	}
	b.purge(chatID, reply.PurgeIDs)
	return nil
}

// purge deletes tracked messages, ignoring per-message failures (missing
// admin rights, already deleted).
func (b *Bot) purge(chatID int64, ids []int) {
	for _, id := range ids {
		stored := telebot.StoredMessage{MessageID: strconv.Itoa(id), ChatID: chatID}
		if err := b.tb.Delete(stored); err != nil {
			log.Debugf("delete failed (msg %d, chat %d): %v", id, chatID, err)
		}
	}
}
