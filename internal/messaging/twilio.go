package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

const whatsappPrefix = "whatsapp:"

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender はTwilio WhatsApp APIでメッセージを送信します
type TwilioSender struct {
	api  messageCreator
	from string
}

func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{api: client.Api, from: WhatsAppAddress(from)}
}

// WhatsAppAddress は番号にwhatsapp:プレフィックスを付けます
func WhatsAppAddress(phone string) string {
	phone = strings.TrimSpace(phone)
	if strings.HasPrefix(phone, whatsappPrefix) {
		return phone
	}
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return whatsappPrefix + phone
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	_, seg := xray.BeginSubsegment(ctx, "Twilio.Send")
	defer seg.Close(nil)

	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(WhatsAppAddress(to))
	params.SetFrom(s.from)
	params.SetBody(body)

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to create twilio message: %w", err)
	}
	if seg != nil && msg != nil && msg.Sid != nil {
		seg.AddMetadata("sid", *msg.Sid)
	}
	return nil
}
