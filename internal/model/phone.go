package model

import "strings"

// NormalizePhone は"whatsapp:+54 9 11-1234"のような送信者IDを"+5491112345678"形式に正規化します
// "+"で始まらない番号は先頭の0をひとつ除き、既定の国番号を付けます
func NormalizePhone(raw, defaultCountryCode string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.ToLower(raw), "whatsapp:")

	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	phone := b.String()
	if phone == "" || phone == "+" {
		return ""
	}
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	phone = strings.TrimPrefix(phone, "0")
	return "+" + strings.TrimPrefix(defaultCountryCode, "+") + phone
}
