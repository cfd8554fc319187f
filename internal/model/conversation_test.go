package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestBookingFieldsMerge(t *testing.T) {
	tests := []struct {
		name string
		base BookingFields
		next BookingFields
		want BookingFields
	}{
		{
			name: "unknown values keep what is known",
			base: BookingFields{Court: "GOCSA", Date: "2024-12-15"},
			next: BookingFields{Time: "10:00"},
			want: BookingFields{Court: "GOCSA", Date: "2024-12-15", Time: "10:00"},
		},
		{
			name: "known values overwrite",
			base: BookingFields{Court: "GOCSA", Duration: 60},
			next: BookingFields{Court: "MONEX", Duration: 90},
			want: BookingFields{Court: "MONEX", Duration: 90},
		},
		{
			name: "empty next",
			base: BookingFields{Name: "Juan"},
			next: BookingFields{},
			want: BookingFields{Name: "Juan"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.base.Merge(tt.next); got != tt.want {
				t.Errorf("Merge() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBookingFieldsMissing(t *testing.T) {
	f := BookingFields{Date: "2024-12-15"}
	if got, want := f.Missing(), []string{"court", "time"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Missing() = %v, want %v", got, want)
	}
	if f.Complete() {
		t.Error("Complete() = true, want false")
	}
	f = f.Merge(BookingFields{Court: "TEDS", Time: "18:00"})
	if !f.Complete() {
		t.Errorf("Complete() = false for %+v", f)
	}
	if f.DurationOrDefault() != DefaultDurationMinutes {
		t.Errorf("DurationOrDefault() = %d", f.DurationOrDefault())
	}
}

func TestConversationContextOption(t *testing.T) {
	c := ConversationContext{Options: []Slot{{Court: "MONEX", Time: "10:00"}, {Court: "TEDS", Time: "10:00"}}}

	for _, n := range []int{0, -1, 3} {
		if _, ok := c.Option(n); ok {
			t.Errorf("Option(%d) should be out of range", n)
		}
	}
	got, ok := c.Option(2)
	if !ok || got.Court != "TEDS" {
		t.Errorf("Option(2) = %+v, %v", got, ok)
	}
}

func TestConversationContextJSON(t *testing.T) {
	c := ConversationContext{
		BookingFields: BookingFields{Court: "GOCSA", Date: "2024-12-15"},
		TimeGroups:    GroupByTime([]Slot{{Court: "GOCSA", Time: "11:00"}, {Court: "MONEX", Time: "10:00"}, {Court: "TEDS", Time: "10:00"}}),
	}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got ConversationContext
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Court != "GOCSA" || got.Date != "2024-12-15" {
		t.Errorf("booking fields lost: %s", b)
	}
	if want := []string{"10:00", "11:00"}; !reflect.DeepEqual(got.SortedTimes(), want) {
		t.Errorf("SortedTimes() = %v, want %v", got.SortedTimes(), want)
	}
	if want := []string{"MONEX", "TEDS"}; !reflect.DeepEqual(got.TimeGroups["10:00"], want) {
		t.Errorf("TimeGroups[10:00] = %v, want %v", got.TimeGroups["10:00"], want)
	}
}

func TestConversationStateReset(t *testing.T) {
	s := NewConversationState("+5491112345678")
	s.State = StateWaitingConfirmation
	s.Context.Court = "GOCSA"
	s.Version = 4

	s.Reset()
	if s.State != StateIdle || !s.Context.IsEmpty() || s.Context.Options != nil {
		t.Errorf("Reset() left %+v", s)
	}
	if s.Version != 4 {
		t.Error("Reset() must not touch the version")
	}
}
