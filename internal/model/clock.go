package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// 会話コンテキストに保存する日付と時刻の形式
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	dmyDateRe   = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`)
	dmDateRe    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})\b`)
	clockRe     = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(am|pm|a\.m\.|p\.m\.)?`)
	meridiemRe  = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm|a\.m\.|p\.m\.)`)
	hoursRe     = regexp.MustCompile(`\b(\d{1,2})\s*(h|hs|hrs)\b`)
	aLasRe      = regexp.MustCompile(`\ba las (\d{1,2})\b`)
	compactRe   = regexp.MustCompile(`^(\d{2})(\d{2})$`)
	morningRe   = regexp.MustCompile(`de la (mañana|manana)`)
	afternoonRe = regexp.MustCompile(`de la (tarde|noche)`)
)

// ParseDate は自由文から日付を探し、YYYY-MM-DD形式で返します
// Relative words (hoy, mañana, pasado mañana) are resolved against now.
func ParseDate(text string, now time.Time) (string, bool) {
	t := FoldText(strings.TrimSpace(text))
	// "10 de la mañana" is a time of day, not tomorrow
	t = morningRe.ReplaceAllString(t, "am")

	if m := isoDateRe.FindStringSubmatch(t); m != nil {
		return buildDate(m[1], m[2], m[3], now.Location())
	}
	if m := dmyDateRe.FindStringSubmatch(t); m != nil {
		return buildDate(m[3], m[2], m[1], now.Location())
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch {
	case strings.Contains(t, "pasado mañana") || strings.Contains(t, "pasado manana"):
		return day.AddDate(0, 0, 2).Format(DateLayout), true
	case strings.Contains(t, "mañana") || strings.Contains(t, "manana"):
		return day.AddDate(0, 0, 1).Format(DateLayout), true
	case containsWord(t, "hoy"):
		return day.Format(DateLayout), true
	}

	if m := dmDateRe.FindStringSubmatch(t); m != nil {
		date, ok := buildDate(strconv.Itoa(now.Year()), m[2], m[1], now.Location())
		if !ok {
			return "", false
		}
		// 過ぎた日付は翌年とみなす
		if parsed, _ := time.ParseInLocation(DateLayout, date, now.Location()); parsed.Before(day) {
			return buildDate(strconv.Itoa(now.Year()+1), m[2], m[1], now.Location())
		}
		return date, true
	}

	return "", false
}

// ParseTimeOfDay は自由文から時刻を探し、24時間制のHH:MMで返します
// 数字だけの入力は番号選択として扱うため時刻とはみなしません
func ParseTimeOfDay(text string) (string, bool) {
	t := FoldText(strings.TrimSpace(text))
	pm := afternoonRe.MatchString(t)
	t = morningRe.ReplaceAllString(t, "am")
	t = afternoonRe.ReplaceAllString(t, "pm")

	if m := clockRe.FindStringSubmatch(t); m != nil {
		return buildClock(m[1], m[2], meridiem(m[3], pm))
	}
	if m := meridiemRe.FindStringSubmatch(t); m != nil {
		return buildClock(m[1], "00", meridiem(m[2], pm))
	}
	if m := hoursRe.FindStringSubmatch(t); m != nil {
		return buildClock(m[1], "00", meridiem("", pm))
	}
	if m := aLasRe.FindStringSubmatch(t); m != nil {
		return buildClock(m[1], "00", meridiem("", pm))
	}
	if m := compactRe.FindStringSubmatch(t); m != nil {
		return buildClock(m[1], m[2], "")
	}
	return "", false
}

func meridiem(s string, pm bool) string {
	s = strings.ReplaceAll(s, ".", "")
	if s == "" && pm {
		return "pm"
	}
	return s
}

func buildDate(year, month, day string, loc *time.Location) (string, bool) {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	// time.Dateは31/02のような値を繰り上げるので往復で検証する
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return "", false
	}
	return t.Format(DateLayout), true
}

func buildClock(hour, minute, ampm string) (string, bool) {
	h, _ := strconv.Atoi(hour)
	m, _ := strconv.Atoi(minute)
	switch ampm {
	case "pm":
		if h < 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	}
	if h > 23 || m > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", h, m), true
}

func containsWord(text, word string) bool {
	for _, f := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == 'ñ')
	}) {
		if f == word {
			return true
		}
	}
	return false
}
