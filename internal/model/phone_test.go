package model

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"whatsapp:+5491112345678", "+5491112345678"},
		{"WhatsApp:+54 9 11 1234-5678", "+5491112345678"},
		{"01112345678", "+541112345678"},
		{"1112345678", "+541112345678"},
		{"  +1 (555) 010-0000 ", "+15550100000"},
		{"whatsapp:", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := NormalizePhone(tt.raw, "54"); got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCourtCatalogCanonicalize(t *testing.T) {
	c := NewCourtCatalog(nil)

	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"gocsa", "GOCSA", true},
		{" Monex ", "MONEX", true},
		{"cancha woodward", "WOODWARD", true},
		{"Teds!", "TEDS", true},
		{"central", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := c.Canonicalize(tt.raw)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Canonicalize(%q) = %q, %v, want %q, %v", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}

	if got, ok := c.Find("quiero reservar gocsa mañana"); !ok || got != "GOCSA" {
		t.Errorf("Find() = %q, %v", got, ok)
	}
}

func TestFoldText(t *testing.T) {
	if got := FoldText("Mañana SÍ reservá"); got != "mañana si reserva" {
		t.Errorf("FoldText() = %q", got)
	}
}
