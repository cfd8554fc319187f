package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/saulcastac/PIA-2.0/internal/model"
)

const (
	maxNameRunes = 40
	minDuration  = 30
	maxDuration  = 240
)

var namePlaceholders = map[string]bool{
	"usuario": true, "user": true, "null": true, "none": true, "n/a": true, "na": true, "cliente": true,
}

// SanitizeName は名前の前後の空白を除き、単語の先頭を大文字にします
// 文字・空白・ハイフン・アポストロフィ以外を含む名前は受け付けません
func SanitizeName(raw string) (string, bool) {
	raw = strings.Join(strings.Fields(raw), " ")
	if raw == "" || namePlaceholders[strings.ToLower(raw)] {
		return "", false
	}
	for _, r := range raw {
		if !unicode.IsLetter(r) && r != ' ' && r != '-' && r != '\'' {
			return "", false
		}
	}
	words := strings.Split(strings.ToLower(raw), " ")
	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	name := strings.Join(words, " ")
	if rs := []rune(name); len(rs) > maxNameRunes {
		name = strings.TrimSpace(string(rs[:maxNameRunes]))
	}
	return name, true
}

// ClampDuration は30分から240分までの予約時間を受け付けます
func ClampDuration(minutes int) (int, bool) {
	if minutes < minDuration || minutes > maxDuration {
		return 0, false
	}
	return minutes, true
}

// Normalizer は抽出した値をコンテキストに保存する形式に変換します
// 解釈できない値は未確定になります
type Normalizer struct {
	Courts model.CourtCatalog
	Now    func() time.Time
}

// Fields は抽出結果の予約項目を正規化します
func (n Normalizer) Fields(e Extraction) model.BookingFields {
	var f model.BookingFields
	if court, ok := n.Courts.Canonicalize(e.Court); ok {
		f.Court = court
	}
	if e.Date != "" {
		if date, ok := model.ParseDate(e.Date, n.Now()); ok {
			f.Date = date
		}
	}
	if e.Time != "" {
		if clock, ok := model.ParseTimeOfDay(e.Time); ok {
			f.Time = clock
		}
	}
	if name, ok := SanitizeName(e.Name); ok {
		f.Name = name
	}
	if d, ok := ClampDuration(e.Duration); ok {
		f.Duration = d
	}
	return f
}

var (
	nameRe     = regexp.MustCompile(`(?i)\b(?:para|a nombre de|me llamo|soy)\s+`)
	minutesRe  = regexp.MustCompile(`\b(\d{2,3})\s*(?:min|mins|minutos)\b`)
	hoursDurRe = regexp.MustCompile(`\b(\d)(?:[.,](5))?\s*horas?\b`)
	halfHourRe = regexp.MustCompile(`\bhora y media\b`)
)

// nameStopWords は"para"の後の名前の終わりを示す語です
var nameStopWords = map[string]bool{
	"el": true, "la": true, "los": true, "las": true, "a": true, "al": true, "de": true, "del": true,
	"en": true, "y": true, "mi": true, "mañana": true, "manana": true, "hoy": true, "pasado": true,
	"jugar": true, "reservar": true, "cancha": true, "hora": true, "horas": true,
}

// extractName は"para"や"me llamo"などの後の最大3語を名前として取り出します
// Every trigger is tried in order, so "para mañana a nombre de Ana" still finds Ana.
func extractName(text string, courts model.CourtCatalog) string {
	for _, loc := range nameRe.FindAllStringIndex(text, -1) {
		if name := nameAfter(text[loc[1]:], courts); name != "" {
			return name
		}
	}
	return ""
}

func nameAfter(rest string, courts model.CourtCatalog) string {
	var words []string
	for _, w := range strings.Fields(rest) {
		w = strings.Trim(w, ".,;:!?¡¿")
		if nameStopWords[model.FoldText(w)] {
			break
		}
		if _, isCourt := courts.Canonicalize(w); isCourt {
			break
		}
		if !isWordOfLetters(w) {
			break
		}
		words = append(words, w)
		if len(words) == 3 {
			break
		}
	}
	name, _ := SanitizeName(strings.Join(words, " "))
	return name
}

func isWordOfLetters(w string) bool {
	if w == "" {
		return false
	}
	for _, r := range w {
		if !unicode.IsLetter(r) && r != '-' && r != '\'' {
			return false
		}
	}
	return true
}

// extractDuration は"90 minutos"や"hora y media"などから予約時間を読み取ります
func extractDuration(folded string) int {
	if halfHourRe.MatchString(folded) {
		return 90
	}
	if m := minutesRe.FindStringSubmatch(folded); m != nil {
		v, _ := strconv.Atoi(m[1])
		if d, ok := ClampDuration(v); ok {
			return d
		}
	}
	if m := hoursDurRe.FindStringSubmatch(folded); m != nil {
		h, _ := strconv.Atoi(m[1])
		v := h * 60
		if m[2] != "" {
			v += 30
		}
		if d, ok := ClampDuration(v); ok {
			return d
		}
	}
	return 0
}
