package model

import "time"

// User は正規化した電話番号で識別する利用者です
type User struct {
	ID                 int64     `db:"id" json:"id"`
	PhoneNumber        string    `db:"phone_number" json:"phone_number"`
	Name               string    `db:"name" json:"name,omitempty"`
	Strikes            int       `db:"strikes" json:"strikes"`
	RequiresPrepayment bool      `db:"requires_prepayment" json:"requires_prepayment"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// ApplyStrike はストライクを1つ加え、maxStrikesに達したら前払いフラグを立てます
// フラグを下ろすことはありません
func (u *User) ApplyStrike(maxStrikes int) {
	u.Strikes++
	if u.Strikes >= maxStrikes {
		u.RequiresPrepayment = true
	}
}
