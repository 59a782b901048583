// Package telegram sends rotation reports through the Telegram Bot API.
// Reports are formatted as MarkdownV2 and delivered with a linear retry backoff.
package telegram

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/dmgvar/internal/compare"
	"github.com/rewired-gh/dmgvar/internal/models"
)

// maxComparedGroups caps the group lines of a comparison message.
const maxComparedGroups = 5

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	return newClient(bot, chatIDInt, maxRetries, retryDelayBase), nil
}

func newClient(bot sender, chatID int64, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		bot:            bot,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// SendRun sends the report of one analyzed rotation.
func (c *Client) SendRun(run *models.Run) error {
	return c.send(formatRun(run))
}

// SendComparison sends the comparison of a candidate run against a baseline.
func (c *Client) SendComparison(baseline, candidate *models.Run, report *compare.Report) error {
	return c.send(formatComparison(baseline, candidate, report))
}

func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

func runName(run *models.Run) string {
	if run.Label != "" {
		return run.Label
	}
	if len(run.ID) > 8 {
		return run.ID[:8]
	}
	return run.ID
}

// dps formats a per-second value with thousands separators and one decimal.
func dps(v float64) string {
	return humanize.FormatFloat("#,###.#", v)
}

func signed(v float64) string {
	if v >= 0 {
		return "+" + dps(v)
	}
	return "-" + dps(-v)
}

func formatRun(run *models.Run) string {
	var b strings.Builder
	perSecond := 1 / run.Elapsed

	b.WriteString("📊 *Rotation Report*\n\n")
	fmt.Fprintf(&b, "🏷 Run: %s\n", escapeMarkdownV2(runName(run)))
	fmt.Fprintf(&b, "⏱ Duration: %s\n", escapeMarkdownV2(formatDuration(time.Duration(run.Elapsed*float64(time.Second)))))
	fmt.Fprintf(&b, "📅 Analyzed: %s\n\n", escapeMarkdownV2(run.CreatedAt.Format("2006-01-02 15:04:05")))

	fmt.Fprintf(&b, "💥 Total: *%s* DPS ± %s, skew %s\n\n",
		escapeMarkdownV2(dps(run.Total.Mean*perSecond)),
		escapeMarkdownV2(dps(run.Total.StdDev()*perSecond)),
		escapeMarkdownV2(fmt.Sprintf("%.3f", run.Total.Skewness)))

	for i, g := range run.Groups {
		fmt.Fprintf(&b, "%d\\. %s: *%s* DPS ± %s\n", i+1,
			escapeMarkdownV2(g.Name),
			escapeMarkdownV2(dps(g.Moments.Mean*perSecond)),
			escapeMarkdownV2(dps(g.Moments.StdDev()*perSecond)))
		if g.P95 > 0 {
			fmt.Fprintf(&b, "   5%%–95%%: %s – %s\n",
				escapeMarkdownV2(dps(g.P05*perSecond)),
				escapeMarkdownV2(dps(g.P95*perSecond)))
		}
	}
	return b.String()
}

func formatComparison(baseline, candidate *models.Run, report *compare.Report) string {
	var b strings.Builder

	b.WriteString("⚖️ *Rotation Comparison*\n\n")
	fmt.Fprintf(&b, "%s → %s\n\n", escapeMarkdownV2(runName(baseline)), escapeMarkdownV2(runName(candidate)))

	emoji := "📈"
	if report.Total.Direction == compare.Decrease {
		emoji = "📉"
	}
	fmt.Fprintf(&b, "%s Total: *%s* DPS \\(%s\\), z %s\n", emoji,
		escapeMarkdownV2(signed(report.Total.Difference)),
		escapeMarkdownV2(fmt.Sprintf("%+.2f%%", report.Total.Relative*100)),
		escapeMarkdownV2(formatZ(report.Total.Z)))
	if report.ProbabilityGreater != nil {
		fmt.Fprintf(&b, "🎲 P\\(candidate \\> baseline\\): *%s*\n",
			escapeMarkdownV2(fmt.Sprintf("%.1f%%", *report.ProbabilityGreater*100)))
	}
	b.WriteString("\n")

	for i, d := range report.Groups {
		if i == maxComparedGroups {
			fmt.Fprintf(&b, "\\.\\.\\. %d more\n", len(report.Groups)-maxComparedGroups)
			break
		}
		fmt.Fprintf(&b, "%d\\. %s: %s DPS, z %s\n", i+1,
			escapeMarkdownV2(d.Name),
			escapeMarkdownV2(signed(d.Difference)),
			escapeMarkdownV2(formatZ(d.Z)))
	}
	return b.String()
}

func formatZ(z float64) string {
	switch {
	case math.IsInf(z, 1):
		return "+∞"
	case math.IsInf(z, -1):
		return "-∞"
	}
	return fmt.Sprintf("%+.2f", z)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// formatDuration formats a rotation length such as 2m30s.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	mins := int(d.Minutes())
	secs := int(d.Seconds()) - mins*60

	switch {
	case mins == 0:
		return fmt.Sprintf("%ds", secs)
	case secs == 0:
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}
