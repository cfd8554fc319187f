package intent

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/sashabaranov/go-openai"
	"github.com/saulcastac/PIA-2.0/internal/model"
)

var testNow = time.Date(2024, 12, 14, 9, 0, 0, 0, time.UTC)

// fakeExtractor はテスト用の抽出器です
type fakeExtractor struct {
	extraction *Extraction
	err        error
	calls      int
}

func (f *fakeExtractor) Extract(ctx context.Context, message string, prior model.BookingFields, now time.Time) (*Extraction, error) {
	f.calls++
	return f.extraction, f.err
}

func newTestResolver(nlu Extractor) *Resolver {
	return NewResolver(nlu, model.NewCourtCatalog(nil), func() time.Time { return testNow })
}

func TestResolver_NLUOutcomes(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestResolver_NLUOutcomes")
	defer seg.Close(nil)

	tests := []struct {
		name       string
		extraction *Extraction
		prior      model.BookingFields
		want       Outcome
	}{
		{
			name:       "not booking",
			extraction: &Extraction{Intent: IntentNotBooking},
			want:       NotBooking{},
		},
		{
			name:       "info query without topic",
			extraction: &Extraction{Intent: IntentInfoQuery},
			want:       InfoQuery{Topic: TopicOther},
		},
		{
			name: "booking is normalized",
			extraction: &Extraction{
				Intent: IntentBooking, Court: "gocsa", Date: "2024-12-15", Time: "10:00 AM",
				Name: "  juan  pérez ", Duration: 90, Confirmed: true,
			},
			want: Booking{
				Fields:    model.BookingFields{Name: "Juan Pérez", Court: "GOCSA", Date: "2024-12-15", Time: "10:00", Duration: 90},
				Missing:   nil,
				Confirmed: true,
			},
		},
		{
			name:       "unknown court and bad duration become unknown",
			extraction: &Extraction{Intent: IntentBooking, Court: "Central", Duration: 600, Name: "usuario"},
			prior:      model.BookingFields{Date: "2024-12-15"},
			want: Booking{
				Fields:  model.BookingFields{},
				Missing: []string{"court", "time"},
			},
		},
		{
			name:       "missing is computed over the carried context",
			extraction: &Extraction{Intent: IntentBooking, Time: "18:00"},
			prior:      model.BookingFields{Court: "MONEX", Date: "2024-12-16"},
			want: Booking{
				Fields:  model.BookingFields{Time: "18:00"},
				Missing: nil,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(&fakeExtractor{extraction: tt.extraction})
			got := r.Resolve(ctx, "mensaje", tt.prior)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestResolver_FallsBackOnFailure(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestResolver_FallsBackOnFailure")
	defer seg.Close(nil)

	msg := "Quiero reservar GOCSA mañana a las 10:00 AM para Juan"
	want := Booking{
		Fields:    model.BookingFields{Name: "Juan", Court: "GOCSA", Date: "2024-12-15", Time: "10:00"},
		Confirmed: true,
	}

	tests := []struct {
		name string
		nlu  Extractor
	}{
		{"NLUなし", nil},
		{"NLUエラー", &fakeExtractor{err: errors.New("timeout")}},
		{"NLUが未知の意図を返す", &fakeExtractor{extraction: &Extraction{Intent: "reservar"}}},
		{"NLUが空を返す", &fakeExtractor{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newTestResolver(tt.nlu).Resolve(ctx, msg, model.BookingFields{})
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Resolve() = %#v, want %#v", got, want)
			}
		})
	}
}

func TestBasicExtractor(t *testing.T) {
	b := BasicExtractor{Courts: model.NewCourtCatalog(nil)}

	tests := []struct {
		message string
		want    Extraction
	}{
		{
			message: "reservar",
			want:    Extraction{Intent: IntentBooking, Confirmed: true},
		},
		{
			message: "hola",
			want:    Extraction{Intent: IntentNotBooking},
		},
		{
			message: "¿Qué canchas hay?",
			want:    Extraction{Intent: IntentInfoQuery, Topic: TopicCourts},
		},
		{
			message: "si",
			want:    Extraction{Intent: IntentBooking, Confirmed: true},
		},
		{
			message: "sin apuro",
			want:    Extraction{Intent: IntentNotBooking},
		},
		{
			message: "turno en monex el 20/12 a las 7 de la tarde por hora y media",
			want:    Extraction{Intent: IntentBooking, Court: "MONEX", Date: "2024-12-20", Time: "19:00", Duration: 90},
		},
		{
			message: "para mañana a nombre de Ana Lopez",
			want:    Extraction{Intent: IntentBooking, Date: "2024-12-15", Name: "Ana Lopez"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got, err := b.Extract(context.Background(), tt.message, model.BookingFields{}, testNow)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("Extract(%q) = %+v, want %+v", tt.message, *got, tt.want)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"juan", "Juan", true},
		{"  MARÍA   josé ", "María José", true},
		{"O'Neil-Smith", "O'neil-smith", true},
		{"null", "", false},
		{"Juan123", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := SanitizeName(tt.raw)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("SanitizeName(%q) = %q, %v, want %q, %v", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// fakeChatClient はOpenAIクライアントのモックです
type fakeChatClient struct {
	content string
	err     error
	req     openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.content}}},
	}, nil
}

func TestOpenAIExtractor(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
		want    *Extraction
		wantErr bool
	}{
		{
			name:    "正常なJSON",
			content: `{"intent":"booking","topic":null,"name":"Juan","court":"GOCSA","date":"2024-12-15","time":"10:00","duration":60,"confirmed":true}`,
			want:    &Extraction{Intent: "booking", Name: "Juan", Court: "GOCSA", Date: "2024-12-15", Time: "10:00", Duration: 60, Confirmed: true},
		},
		{
			name:    "コードブロック付き",
			content: "```json\n{\"intent\":\"info_query\",\"topic\":\"prices\",\"duration\":null}\n```",
			want:    &Extraction{Intent: "info_query", Topic: "prices"},
		},
		{
			name:    "壊れたJSON",
			content: `{"intent": booking`,
			wantErr: true,
		},
		{
			name:    "APIエラー",
			err:     errors.New("429"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeChatClient{content: tt.content, err: tt.err}
			o := &OpenAIExtractor{client: client, model: openai.GPT4oMini, courts: model.NewCourtCatalog(nil)}

			got, err := o.Extract(context.Background(), "hola", model.BookingFields{Court: "MONEX"}, testNow)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Extract() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract() = %+v, want %+v", got, tt.want)
			}
			if client.req.ResponseFormat == nil || client.req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
				t.Error("request does not ask for a JSON object")
			}
		})
	}
}
