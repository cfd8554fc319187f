package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/saulcastac/PIA-2.0/internal/model"
)

// chatClient は*openai.Clientのうち使用する部分です
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIExtractor はチャットモデルにメッセージのJSON抽出を依頼します
type OpenAIExtractor struct {
	client  chatClient
	model   string
	timeout time.Duration
	courts  model.CourtCatalog
	loc     *time.Location
}

// NewOpenAIExtractor はOpenAIのChat Completions APIを使うExtractorを作成します
func NewOpenAIExtractor(apiKey, chatModel string, timeout time.Duration, courts model.CourtCatalog, loc *time.Location) *OpenAIExtractor {
	if chatModel == "" {
		chatModel = openai.GPT4oMini
	}
	return &OpenAIExtractor{
		client:  openai.NewClient(apiKey),
		model:   chatModel,
		timeout: timeout,
		courts:  courts,
		loc:     loc,
	}
}

type openAIAnswer struct {
	Intent    string      `json:"intent"`
	Topic     string      `json:"topic"`
	Name      *string     `json:"name"`
	Court     *string     `json:"court"`
	Date      *string     `json:"date"`
	Time      *string     `json:"time"`
	Duration  json.Number `json:"duration"`
	Confirmed bool        `json:"confirmed"`
}

const systemPrompt = `Sos un asistente que interpreta mensajes de WhatsApp para reservar canchas de pádel.
Hoy es %s (%s). Canchas: %s.
Datos ya conocidos de la conversación: %s.
Respondé SOLO un objeto JSON con estas claves:
{"intent": "booking" | "info_query" | "not_booking",
 "topic": "courts" | "hours" | "prices" | "other" | null,
 "name": string | null, "court": string | null,
 "date": "YYYY-MM-DD" | null, "time": "HH:MM" (24h) | null,
 "duration": minutos | null, "confirmed": boolean}
Reglas: usá null para todo lo que el mensaje no diga (no inventes valores por defecto);
"confirmed" es true solo si el usuario pide explícitamente hacer o confirmar la reserva;
"info_query" es una pregunta sobre el club sin pedido de reserva.`

// Extract はチャットモデルを呼び出します。不正な応答はエラーとして返し、呼び出し側でフォールバックさせます
func (o *OpenAIExtractor) Extract(ctx context.Context, message string, prior model.BookingFields, now time.Time) (*Extraction, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	known, err := json.Marshal(prior)
	if err != nil {
		return nil, err
	}
	loc := o.loc
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(systemPrompt, local.Format(model.DateLayout), local.Weekday(), strings.Join(o.courts.Names(), ", "), known),
			},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		Temperature:    0.1,
		MaxTokens:      200,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return parseAnswer(resp.Choices[0].Message.Content)
}

func parseAnswer(content string) (*Extraction, error) {
	content = strings.TrimSpace(content)
	// ```json ... ``` で囲まれた応答も受け付ける
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var a openAIAnswer
	if err := json.Unmarshal([]byte(content), &a); err != nil {
		return nil, fmt.Errorf("malformed extraction %q: %w", content, err)
	}

	e := &Extraction{
		Intent:    strings.ToLower(strings.TrimSpace(a.Intent)),
		Topic:     a.Topic,
		Name:      deref(a.Name),
		Court:     deref(a.Court),
		Date:      deref(a.Date),
		Time:      deref(a.Time),
		Confirmed: a.Confirmed,
	}
	if a.Duration != "" {
		if f, err := a.Duration.Float64(); err == nil {
			e.Duration = int(f)
		}
	}
	return e, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
