// Package messaging はWhatsAppへのメッセージ送信を担当します
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/saulcastac/PIA-2.0/internal/model"
)

// Sender はテキストメッセージを1通送信します
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// Notifier は通知を文面に変換して送信します
type Notifier struct {
	sender Sender
	loc    *time.Location
}

func NewNotifier(sender Sender, loc *time.Location) *Notifier {
	return &Notifier{sender: sender, loc: loc}
}

// Notify は通知を送信します
func (n *Notifier) Notify(ctx context.Context, notification model.Notification) error {
	body, err := notification.Render(n.loc)
	if err != nil {
		return fmt.Errorf("failed to render %s notification: %w", notification.Type, err)
	}
	if err := n.sender.Send(ctx, notification.PhoneNumber, body); err != nil {
		return fmt.Errorf("failed to send %s notification to %s: %w", notification.Type, notification.PhoneNumber, err)
	}
	return nil
}

// Reply は会話の返信をそのまま送信します
func (n *Notifier) Reply(ctx context.Context, to, body string) error {
	return n.sender.Send(ctx, to, body)
}
