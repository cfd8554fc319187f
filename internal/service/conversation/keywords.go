package conversation

import (
	"strconv"
	"strings"

	"github.com/saulcastac/PIA-2.0/internal/model"
)

var (
	bookKeywords        = []string{"reservar", "reserva", "agendar", "cita"}
	greetingKeywords    = []string{"hola", "hi", "inicio", "start", "/start", "ayuda", "menu"}
	affirmativeKeywords = []string{"si", "s", "yes", "ok", "dale", "confirmo", "confirmar", "de acuerdo"}
	negativeKeywords    = []string{"no", "n", "cancelar", "cancela", "cancelo"}
	listKeywords        = []string{"mis reservas", "ver reservas", "ver mis reservas"}
)

// normalize はキーワード照合用に小文字化・アクセント除去・記号除去を行います
func normalize(text string) string {
	folded := model.FoldText(strings.TrimSpace(text))
	folded = strings.Trim(folded, " .,!¡?¿")
	return strings.Join(strings.Fields(folded), " ")
}

func isExactly(text string, keywords []string) bool {
	for _, k := range keywords {
		if text == k {
			return true
		}
	}
	return false
}

// hasWord はtextの単語にkeywordsのいずれかが含まれるかを返します
func hasWord(text string, keywords []string) bool {
	for _, w := range strings.Fields(text) {
		if isExactly(w, keywords) {
			return true
		}
	}
	return false
}

func isBookCommand(text string) bool {
	return hasWord(text, bookKeywords)
}

func isGreeting(text string) bool {
	return hasWord(text, greetingKeywords)
}

func isAffirmative(text string) bool {
	return isExactly(text, affirmativeKeywords) || hasWord(text, []string{"si", "confirmo"})
}

func isNegative(text string) bool {
	return isExactly(text, negativeKeywords) || hasWord(text, []string{"no", "cancelar"})
}

func isListCommand(text string) bool {
	for _, k := range listKeywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// parseIndex は1から始まる番号のみを受け付けます
func parseIndex(text string) (int, bool) {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "."))
	if text == "" || len(text) > 3 {
		return 0, false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return n, true
}
