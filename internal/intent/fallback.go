package intent

import (
	"context"
	"strings"
	"time"

	"github.com/saulcastac/PIA-2.0/internal/model"
)

var (
	confirmPhrases = []string{"reservar", "confirmar", "confirmo", "quiero", "hacer reserva", "dale"}
	confirmWords   = []string{"si", "ok"}
	bookingHints   = []string{"reserv", "agendar", "turno", "cancha", "jugar"}
	infoHints      = []struct {
		topic string
		hints []string
	}{
		{TopicCourts, []string{"que canchas", "cuales canchas", "canchas disponibles", "canchas hay"}},
		{TopicHours, []string{"horario", "a que hora abren", "hasta que hora", "disponibilidad"}},
		{TopicPrices, []string{"precio", "cuanto cuesta", "cuanto sale", "tarifa"}},
	}
)

// BasicExtractor はNLUがない場合や失敗した場合に使うキーワードと正規表現による抽出です
type BasicExtractor struct {
	Courts model.CourtCatalog
}

// Extract は失敗しません
func (b BasicExtractor) Extract(_ context.Context, message string, _ model.BookingFields, now time.Time) (*Extraction, error) {
	folded := model.FoldText(strings.TrimSpace(message))
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == 'ñ')
	})

	e := &Extraction{Intent: IntentNotBooking}
	for _, p := range confirmPhrases {
		if strings.Contains(folded, p) {
			e.Confirmed = true
		}
	}
	for _, w := range words {
		for _, c := range confirmWords {
			if w == c {
				e.Confirmed = true
			}
		}
	}

	if date, ok := model.ParseDate(message, now); ok {
		e.Date = date
	}
	if clock, ok := model.ParseTimeOfDay(message); ok {
		e.Time = clock
	}
	if court, ok := b.Courts.Find(message); ok {
		e.Court = court
	}
	e.Name = extractName(message, b.Courts)
	e.Duration = extractDuration(folded)

	hasFields := e.Date != "" || e.Time != "" || e.Court != "" || e.Name != "" || e.Duration > 0
	if hasFields || containsAny(folded, bookingHints) || e.Confirmed {
		e.Intent = IntentBooking
	}

	// 予約項目が取れていない質問は案内として扱う
	if !hasFields {
		for _, info := range infoHints {
			if containsAny(folded, info.hints) && (!e.Confirmed || strings.Contains(message, "?")) {
				e.Intent = IntentInfoQuery
				e.Topic = info.topic
				break
			}
		}
	}

	return e, nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
