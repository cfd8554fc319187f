package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/saulcastac/PIA-2.0/internal/model"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type MockMessageCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (m *MockMessageCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.params = append(m.params, params)
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestWhatsAppAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "5491122334455", want: "whatsapp:+5491122334455"},
		{in: "+5491122334455", want: "whatsapp:+5491122334455"},
		{in: "whatsapp:+5491122334455", want: "whatsapp:+5491122334455"},
	}
	for _, tt := range tests {
		if got := WhatsAppAddress(tt.in); got != tt.want {
			t.Errorf("WhatsAppAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTwilioSender_Send(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestTwilioSender_Send")
	defer seg.Close(nil)

	api := &MockMessageCreator{}
	s := &TwilioSender{api: api, from: WhatsAppAddress("14155238886")}

	if err := s.Send(ctx, "5491122334455", "hola"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(api.params) != 1 {
		t.Fatalf("CreateMessage called %d times, want 1", len(api.params))
	}
	p := api.params[0]
	if *p.To != "whatsapp:+5491122334455" || *p.From != "whatsapp:+14155238886" || *p.Body != "hola" {
		t.Errorf("params = to:%s from:%s body:%s", *p.To, *p.From, *p.Body)
	}

	s.api = &MockMessageCreator{err: errors.New("boom")}
	if err := s.Send(ctx, "5491122334455", "hola"); err == nil {
		t.Error("Send() error = nil, want error")
	}
}

func TestNotifier_Notify(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestNotifier_Notify")
	defer seg.Close(nil)

	sender := NewLogSender()
	n := NewNotifier(sender, time.UTC)

	r := model.Reservation{
		ID:              1,
		PhoneNumber:     "5491122334455",
		CourtName:       "GOCSA",
		StartsAt:        time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
	}
	if err := n.Notify(ctx, model.NewReminderNotification(model.Reminder3h, r, time.Now())); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	bodies := sender.SentTo("5491122334455")
	if len(bodies) != 1 || !strings.Contains(bodies[0], "GOCSA") {
		t.Errorf("sent = %v", bodies)
	}

	// 予約のない確定通知は送信しない
	err := n.Notify(ctx, model.Notification{Type: model.NotificationTypeBookingConfirmed, PhoneNumber: "5491122334455"})
	if err == nil {
		t.Error("Notify() error = nil, want render error")
	}
	if got := len(sender.Sent()); got != 1 {
		t.Errorf("sent %d messages, want 1", got)
	}

	sender.Fail = errors.New("down")
	if err := n.Reply(ctx, "5491122334455", "hola"); err == nil {
		t.Error("Reply() error = nil, want error")
	}
}
