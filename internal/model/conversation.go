package model

import (
	"sort"
	"time"
)

// DialogState は電話番号ごとの会話の位置です
type DialogState string

const (
	StateIdle                  DialogState = "idle"
	StateWaitingIntent         DialogState = "waiting_intent"
	StateWaitingDate           DialogState = "waiting_date"
	StateWaitingTimeSelection  DialogState = "waiting_time_selection"
	StateWaitingCourtSelection DialogState = "waiting_court_selection"
	StateWaitingConfirmation   DialogState = "waiting_confirmation"
	StateWaitingRetry          DialogState = "waiting_retry"
)

// IsFreeForm は自由文をまず意図判定に渡す状態かを返します
func (s DialogState) IsFreeForm() bool {
	return s == StateIdle || s == StateWaitingIntent || s == ""
}

// Slot はある日付で予約できるコートと時刻の組です
type Slot struct {
	Court string `json:"court"`
	Time  string `json:"time"`
}

// BookingFields は会話から集めた予約項目です
// 空文字と0は未確定を表します
type BookingFields struct {
	Name     string `json:"name,omitempty"`
	Court    string `json:"court,omitempty"`
	Date     string `json:"date,omitempty"` // YYYY-MM-DD
	Time     string `json:"time,omitempty"` // HH:MM
	Duration int    `json:"duration,omitempty"`
}

// Merge はnextの確定済みの値でfを上書きします
// nextの未確定の値で既知の値が消えることはありません
func (f BookingFields) Merge(next BookingFields) BookingFields {
	if next.Name != "" {
		f.Name = next.Name
	}
	if next.Court != "" {
		f.Court = next.Court
	}
	if next.Date != "" {
		f.Date = next.Date
	}
	if next.Time != "" {
		f.Time = next.Time
	}
	if next.Duration > 0 {
		f.Duration = next.Duration
	}
	return f
}

// IsEmpty は確定済みの項目がひとつもないかを返します
func (f BookingFields) IsEmpty() bool {
	return f.Name == "" && f.Court == "" && f.Date == "" && f.Time == "" && f.Duration == 0
}

// Missing は予約に足りない項目を質問する順に返します
func (f BookingFields) Missing() []string {
	var missing []string
	if f.Court == "" {
		missing = append(missing, "court")
	}
	if f.Date == "" {
		missing = append(missing, "date")
	}
	if f.Time == "" {
		missing = append(missing, "time")
	}
	return missing
}

// Complete はコート・日付・時刻がそろっているかを返します
func (f BookingFields) Complete() bool {
	return len(f.Missing()) == 0
}

// DurationOrDefault は予約時間(分)を返します。未指定の場合は既定値です
func (f BookingFields) DurationOrDefault() int {
	if f.Duration > 0 {
		return f.Duration
	}
	return DefaultDurationMinutes
}

// ConversationContext はターンをまたいで保持する会話の記憶です
type ConversationContext struct {
	BookingFields
	// Options は最後にユーザーへ見せた番号付きの一覧
	Options []Slot `json:"options,omitempty"`
	// TimeGroups はDateの時刻ごとの空きコート
	TimeGroups map[string][]string `json:"time_groups,omitempty"`
}

// ClearTransient は集めた項目を残して表示済みの一覧を捨てます
func (c *ConversationContext) ClearTransient() {
	c.Options = nil
	c.TimeGroups = nil
}

// SortedTimes はTimeGroupsの時刻を昇順で返します
func (c ConversationContext) SortedTimes() []string {
	times := make([]string, 0, len(c.TimeGroups))
	for t := range c.TimeGroups {
		times = append(times, t)
	}
	sort.Strings(times)
	return times
}

// Option は表示済みの一覧のn番目(1始まり)を返します
func (c ConversationContext) Option(n int) (Slot, bool) {
	if n < 1 || n > len(c.Options) {
		return Slot{}, false
	}
	return c.Options[n-1], true
}

// ConversationState は電話番号ごとに1行だけ持つ会話状態です
type ConversationState struct {
	PhoneNumber string              `json:"phone_number"`
	State       DialogState         `json:"state"`
	Context     ConversationContext `json:"context"`
	Version     int64               `json:"version"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// NewConversationState は初めての電話番号の初期状態を返します
func NewConversationState(phone string) *ConversationState {
	return &ConversationState{PhoneNumber: phone, State: StateIdle}
}

// Reset は会話をidleに戻し、集めた項目をすべて破棄します
func (s *ConversationState) Reset() {
	s.State = StateIdle
	s.Context = ConversationContext{}
}

// GroupByTime は空き枠を時刻ごとにまとめます。コートの順序は入力のままです
func GroupByTime(slots []Slot) map[string][]string {
	groups := make(map[string][]string)
	for _, s := range slots {
		groups[s.Time] = append(groups[s.Time], s.Court)
	}
	return groups
}
