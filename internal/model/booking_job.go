package model

import "time"

// BookingJob は会話ターンから予約ワーカーへ渡す予約依頼です
// Keyは確認ごとに1回だけ生成され、再配送されても予約は1件しか作られません
type BookingJob struct {
	Key         string    `json:"key"`
	PhoneNumber string    `json:"phone_number"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name,omitempty"`
	Court       string    `json:"court"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Duration    int       `json:"duration"`
	CreatedAt   time.Time `json:"created_at"`
}

// StartsAt はDateとTimeをlocの時刻として解釈します
func (j BookingJob) StartsAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation("2006-01-02 15:04", j.Date+" "+j.Time, loc)
}

// Fields はジョブが持つ予約項目を返します
func (j BookingJob) Fields() BookingFields {
	return BookingFields{Name: j.Name, Court: j.Court, Date: j.Date, Time: j.Time, Duration: j.Duration}
}
