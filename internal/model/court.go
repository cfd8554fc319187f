package model

import (
	"strings"
	"unicode"
)

// DefaultCourts は設定がない場合のコート一覧です
var DefaultCourts = []string{"MONEX", "GOCSA", "WOODWARD", "TEDS"}

// CourtCatalog は予約できるコート名の一覧です
type CourtCatalog struct {
	names []string
}

// NewCourtCatalog は設定されたコート名を大文字にそろえて一覧を作成します
func NewCourtCatalog(names []string) CourtCatalog {
	if len(names) == 0 {
		names = DefaultCourts
	}
	c := CourtCatalog{}
	for _, n := range names {
		if k := foldCourt(n); k != "" {
			c.names = append(c.names, k)
		}
	}
	return c
}

// Names は設定順のコート名を返します
func (c CourtCatalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Canonicalize は自由文("cancha gocsa"や"Monex ")を一覧のコート名に変換します
func (c CourtCatalog) Canonicalize(raw string) (string, bool) {
	k := foldCourt(raw)
	if k == "" {
		return "", false
	}
	for _, n := range c.names {
		if n == k {
			return n, true
		}
	}
	for _, n := range c.names {
		if strings.Contains(k, n) {
			return n, true
		}
	}
	return "", false
}

// Find はtextの中で最初に見つかったコート名を返します
func (c CourtCatalog) Find(text string) (string, bool) {
	k := foldCourt(text)
	for _, n := range c.names {
		if strings.Contains(k, n) {
			return n, true
		}
	}
	return "", false
}

func foldCourt(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		r = stripAccent(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func stripAccent(r rune) rune {
	switch r {
	case 'Á', 'À', 'Ä', 'Â':
		return 'A'
	case 'É', 'È', 'Ë', 'Ê':
		return 'E'
	case 'Í', 'Ì', 'Ï', 'Î':
		return 'I'
	case 'Ó', 'Ò', 'Ö', 'Ô':
		return 'O'
	case 'Ú', 'Ù', 'Ü', 'Û':
		return 'U'
	case 'á', 'à', 'ä', 'â':
		return 'a'
	case 'é', 'è', 'ë', 'ê':
		return 'e'
	case 'í', 'ì', 'ï', 'î':
		return 'i'
	case 'ó', 'ò', 'ö', 'ô':
		return 'o'
	case 'ú', 'ù', 'ü', 'û':
		return 'u'
	}
	return r
}

// FoldText lower-cases s and strips Spanish accents, keeping ñ
func FoldText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		b.WriteRune(stripAccent(r))
	}
	return b.String()
}
