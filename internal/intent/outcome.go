// Package intent は自由文のメッセージを予約の意図に変換します
package intent

import "github.com/saulcastac/PIA-2.0/internal/model"

// Outcome は意図判定の結果です
type Outcome interface {
	outcome()
}

// NotBooking は予約と関係のないメッセージです
type NotBooking struct{}

// InfoQuery は予約ではなくクラブについての質問です
type InfoQuery struct {
	Topic string
}

// Booking は予約の依頼です。Fieldsにはこのメッセージで新たに分かった項目だけが入ります
// Missingはコンテキストにマージした後の不足項目です
type Booking struct {
	Fields    model.BookingFields
	Missing   []string
	Confirmed bool
}

func (NotBooking) outcome() {}
func (InfoQuery) outcome()  {}
func (Booking) outcome()    {}

// 問い合わせの話題
const (
	TopicCourts = "courts"
	TopicHours  = "hours"
	TopicPrices = "prices"
	TopicOther  = "other"
)

// Extraction は正規化前の抽出結果です
type Extraction struct {
	Intent    string
	Topic     string
	Name      string
	Court     string
	Date      string
	Time      string
	Duration  int
	Confirmed bool
}

// Extractorが返す意図の名前
const (
	IntentBooking    = "booking"
	IntentInfoQuery  = "info_query"
	IntentNotBooking = "not_booking"
)
