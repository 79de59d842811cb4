// Package smtp sends crawl alerts by email.
package smtp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

const (
	subjectPrefix = "[戶政爬蟲] 異常通知 - "
	rule          = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
	timeLayout    = "2006-01-02 15:04:05"
)

// Config holds the SMTP settings. Without a user and password the notifier
// stays silent even when enabled.
type Config struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
}

// Notifier sends crawl alerts over STARTTLS SMTP.
type Notifier struct {
	cfg  Config
	now  func() time.Time
	send func(ctx context.Context, msg *mail.Msg) error
}

// NewNotifier creates a notifier for cfg.
func NewNotifier(cfg Config) *Notifier {
	n := &Notifier{cfg: cfg, now: time.Now}
	n.send = n.dialAndSend
	return n
}

// Configured reports whether alerts will actually be sent.
func (n *Notifier) Configured() bool {
	return n.cfg.Enabled && n.cfg.User != "" && n.cfg.Password != ""
}

// NotifyCrawlerError reports a batch that could not run. It returns false
// without error when notifications are disabled or there is nobody to tell.
func (n *Notifier) NotifyCrawlerError(ctx context.Context, to []string, message string, batchID int64) (bool, error) {
	body := n.render("⚠️ 異常類型: 爬蟲執行失敗", batchID, "錯誤訊息:", message, []string{"請檢查系統狀態。"})
	return n.sendMail(ctx, to, subjectPrefix+"爬蟲執行失敗", body)
}

// NotifyEmptyData reports a batch that finished without any records.
func (n *Notifier) NotifyEmptyData(ctx context.Context, to []string, queryInfo string, batchID int64) (bool, error) {
	body := n.render("📭 異常類型: 查詢資料為空", batchID, "查詢資訊:", queryInfo, []string{
		"這可能表示指定日期範圍內沒有新的門牌資料，",
		"或者爬蟲無法正確取得資料。",
		"請確認查詢條件是否正確。",
	})
	return n.sendMail(ctx, to, subjectPrefix+"查詢資料為空", body)
}

func (n *Notifier) render(kind string, batchID int64, label, detail string, footer []string) string {
	id := "N/A"
	if batchID > 0 {
		id = fmt.Sprint(batchID)
	}

	var b strings.Builder
	b.WriteString("戶政門牌爬蟲系統 - 異常通知\n")
	b.WriteString(rule + "\n")
	b.WriteString(kind + "\n")
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "發生時間: %s\n", n.now().Format(timeLayout))
	fmt.Fprintf(&b, "批次 ID: %s\n\n", id)
	b.WriteString(label + "\n")
	b.WriteString(detail + "\n\n")
	for _, line := range footer {
		b.WriteString(line + "\n")
	}
	b.WriteString("\n---\n此信件由系統自動發送")
	return b.String()
}

func (n *Notifier) sendMail(ctx context.Context, to []string, subject, body string) (bool, error) {
	if !n.cfg.Enabled {
		slog.Debug("Notifications disabled, skipping", "subject", subject)
		return false, nil
	}
	if !n.Configured() {
		slog.Warn("SMTP is not configured, cannot send notification", "subject", subject)
		return false, nil
	}
	if len(to) == 0 {
		slog.Warn("No notification recipients", "subject", subject)
		return false, nil
	}

	msg := mail.NewMsg()
	if err := msg.From(n.cfg.User); err != nil {
		return false, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to...); err != nil {
		return false, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := n.send(ctx, msg); err != nil {
		slog.Error("Failed to send notification", "subject", subject, "error", err)
		return false, err
	}
	slog.Info("Notification sent", "subject", subject, "recipients", strings.Join(to, ", "))
	return true, nil
}

func (n *Notifier) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(n.cfg.Host,
		mail.WithPort(n.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.cfg.User),
		mail.WithPassword(n.cfg.Password),
		mail.WithTimeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
