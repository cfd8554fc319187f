// Package conversation は1通ごとのメッセージに対する返信と会話状態の遷移を決定します
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/google/uuid"
	"github.com/saulcastac/PIA-2.0/internal/availability"
	"github.com/saulcastac/PIA-2.0/internal/intent"
	"github.com/saulcastac/PIA-2.0/internal/messaging"
	"github.com/saulcastac/PIA-2.0/internal/model"
	"github.com/saulcastac/PIA-2.0/internal/queue"
	"github.com/saulcastac/PIA-2.0/internal/repository"
)

// IntentResolver はメッセージと既知の項目から意図を判定します
type IntentResolver interface {
	Resolve(ctx context.Context, message string, prior model.BookingFields) intent.Outcome
}

// Deps はEngineの依存です
type Deps struct {
	Ledger       *repository.Ledger
	Resolver     IntentResolver
	Availability availability.Source
	Bookings     queue.Publisher
	Sender       messaging.Sender
	Courts       model.CourtCatalog
	Location     *time.Location
	CountryCode  string
	TurnTimeout  time.Duration
	Now          func() time.Time
}

// Engine は会話の状態機械です
type Engine struct {
	ledger       *repository.Ledger
	resolver     IntentResolver
	availability availability.Source
	bookings     queue.Publisher
	sender       messaging.Sender
	courts       model.CourtCatalog
	loc          *time.Location
	countryCode  string
	turnTimeout  time.Duration
	now          func() time.Time
}

// NewEngine は新しいEngineを作成します
func NewEngine(d Deps) *Engine {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.TurnTimeout <= 0 {
		d.TurnTimeout = 30 * time.Second
	}
	return &Engine{
		ledger:       d.Ledger,
		resolver:     d.Resolver,
		availability: d.Availability,
		bookings:     d.Bookings,
		sender:       d.Sender,
		courts:       d.Courts,
		loc:          d.Location,
		countryCode:  d.CountryCode,
		turnTimeout:  d.TurnTimeout,
		now:          d.Now,
	}
}

// turn は1ターンの結果です。nextがnilの場合は状態を変更しません
type turn struct {
	next  *model.ConversationState
	reply string
	job   *model.BookingJob
}

func unchanged(reply string) turn {
	return turn{reply: reply}
}

// errEnqueue は予約ジョブを投入できなかったことを表します
var errEnqueue = errors.New("failed to enqueue booking job")

// HandleMessage は受信メッセージを1件処理し、返信を送信します
// 予約ジョブの投入と状態の保存が返信より先に行われます
// どちらかに失敗した場合は状態を変えずにエラーを返信します
func (e *Engine) HandleMessage(ctx context.Context, from, body string) error {
	ctx, cancel := context.WithTimeout(ctx, e.turnTimeout)
	defer cancel()

	ctx, seg := xray.BeginSegment(ctx, "ConversationEngine.HandleMessage")
	defer seg.Close(nil)

	phone := model.NormalizePhone(from, e.countryCode)
	if phone == "" {
		return fmt.Errorf("invalid sender %q: %w", from, model.ErrValidation)
	}

	t, err := e.process(ctx, phone, body)
	if err != nil {
		seg.Close(err)
		log.Printf("Turn for %s failed, state unchanged: %v", phone, err)
		if errors.Is(err, errEnqueue) {
			e.send(ctx, phone, replyQueueError)
		} else {
			e.send(ctx, phone, replyGenericError)
		}
		return err
	}

	e.send(ctx, phone, t.reply)
	return nil
}

func (e *Engine) process(ctx context.Context, phone, body string) (turn, error) {
	user, err := e.ledger.Users.FindOrCreateByPhone(ctx, phone)
	if err != nil {
		return turn{}, err
	}
	state, err := e.ledger.Conversations.FindOrCreate(ctx, phone)
	if err != nil {
		return turn{}, err
	}

	t, err := e.step(ctx, user, state, body)
	if err != nil {
		return turn{}, err
	}

	// ジョブのキーは会話のバージョンから決まるため、保存に失敗して再度確認されても予約は1件です
	if t.job != nil {
		if err := e.bookings.Publish(ctx, *t.job); err != nil {
			return turn{}, fmt.Errorf("%w %s: %w", errEnqueue, t.job.Key, err)
		}
		log.Printf("Booking job %s enqueued for %s: court=%s date=%s time=%s", t.job.Key, phone, t.job.Court, t.job.Date, t.job.Time)
	}

	if t.next != nil {
		if err := e.ledger.Conversations.Save(ctx, t.next); err != nil {
			if errors.Is(err, model.ErrStaleState) {
				return turn{}, model.StorageError("save conversation", err)
			}
			return turn{}, err
		}
	}
	return t, nil
}

func (e *Engine) send(ctx context.Context, phone, reply string) {
	if reply == "" {
		return
	}
	if err := e.sender.Send(ctx, phone, reply); err != nil {
		log.Printf("Failed to send reply to %s: %v", phone, err)
	}
}

// step は現在の状態とメッセージから次の状態と返信を決めます
// 返すstateはコピーなので、保存前に呼び出し元の状態が変わることはありません
func (e *Engine) step(ctx context.Context, user *model.User, current *model.ConversationState, body string) (turn, error) {
	state := *current
	text := normalize(body)

	if isListCommand(text) {
		return e.listReservations(ctx, user)
	}

	if state.State.IsFreeForm() {
		if t, ok := e.freeForm(ctx, user, state, body, text); ok {
			return t, nil
		}
	}

	return e.keyword(ctx, user, state, body, text)
}

// freeForm はNLUの判定結果で処理できた場合にtrueを返します
// 処理できない場合はキーワード判定に進みます
func (e *Engine) freeForm(ctx context.Context, user *model.User, state model.ConversationState, body, text string) (turn, bool) {
	switch o := e.resolver.Resolve(ctx, body, state.Context.BookingFields).(type) {
	case intent.InfoQuery:
		return unchanged(infoReply(o.Topic, e.courts)), true

	case intent.Booking:
		merged := state.Context.BookingFields.Merge(o.Fields)
		if merged.Complete() && o.Confirmed {
			return e.confirm(user, state, merged), true
		}
		if o.Fields.IsEmpty() {
			// 新しい項目のないキーワードはキーワード判定に任せる
			if isBookCommand(text) || isGreeting(text) {
				return turn{}, false
			}
			state.State = model.StateWaitingIntent
			if state.Context.BookingFields.IsEmpty() {
				return turn{next: &state, reply: welcomeReply(e.courts)}, true
			}
			return turn{next: &state, reply: progressReply(state.Context.BookingFields, e.loc)}, true
		}

		state.Context.BookingFields = merged
		state.Context.ClearTransient()
		if merged.Complete() {
			state.State = model.StateWaitingConfirmation
			return turn{next: &state, reply: confirmationReply(merged, e.loc)}, true
		}
		state.State = model.StateWaitingIntent
		return turn{next: &state, reply: progressReply(merged, e.loc)}, true
	}

	return turn{}, false
}

func (e *Engine) keyword(ctx context.Context, user *model.User, state model.ConversationState, body, text string) (turn, error) {
	if isBookCommand(text) {
		// 集めた項目は残し、表示済みの一覧だけを捨てる
		state.Context.ClearTransient()
		state.State = model.StateWaitingDate
		return turn{next: &state, reply: replyAskDate}, nil
	}

	// 番号選択中は挨拶でも状態を変えず、選択を促す
	if isGreeting(text) && !awaitsSelection(state.State) {
		state.State = model.StateWaitingIntent
		return turn{next: &state, reply: welcomeReply(e.courts)}, nil
	}

	switch state.State {
	case model.StateWaitingDate:
		return e.selectDate(ctx, state, body), nil
	case model.StateWaitingTimeSelection:
		return e.selectTime(state, body), nil
	case model.StateWaitingCourtSelection:
		return e.selectCourt(state, body), nil
	case model.StateWaitingConfirmation:
		switch {
		case isAffirmative(text):
			return e.confirm(user, state, state.Context.BookingFields), nil
		case isNegative(text):
			state.Reset()
			return turn{next: &state, reply: replyCancelled}, nil
		}
		return unchanged(replyConfirmAgain), nil
	case model.StateWaitingRetry:
		if isAffirmative(text) {
			name := state.Context.Name
			state.Context = model.ConversationContext{}
			state.Context.Name = name
			state.State = model.StateWaitingDate
			return turn{next: &state, reply: replyAskDate}, nil
		}
		state.Reset()
		return turn{next: &state, reply: replyRetryDeclined}, nil
	}

	state.State = model.StateWaitingIntent
	return turn{next: &state, reply: replyRefusal}, nil
}

func (e *Engine) selectDate(ctx context.Context, state model.ConversationState, body string) turn {
	date, ok := model.ParseDate(body, e.now().In(e.loc))
	if !ok {
		return unchanged(replyInvalidDate)
	}

	slots, known, err := e.availability.Lookup(ctx, date)
	if err != nil {
		log.Printf("Availability lookup for %s failed, treating as unknown: %v", date, err)
		known = false
	}
	if !known {
		state.Reset()
		return turn{next: &state, reply: noDataReply(date, e.loc)}
	}

	slots = availability.Clean(slots)
	state.Context.Date = date
	state.Context.ClearTransient()
	if len(slots) == 0 {
		state.State = model.StateWaitingRetry
		return turn{next: &state, reply: noSlotsReply(date, e.loc)}
	}

	state.Context.TimeGroups = model.GroupByTime(slots)
	for _, t := range state.Context.SortedTimes() {
		for _, court := range state.Context.TimeGroups[t] {
			state.Context.Options = append(state.Context.Options, model.Slot{Court: court, Time: t})
		}
	}
	state.State = model.StateWaitingTimeSelection
	return turn{next: &state, reply: timesReply(date, state.Context, e.loc)}
}

func awaitsSelection(s model.DialogState) bool {
	return s == model.StateWaitingTimeSelection || s == model.StateWaitingCourtSelection
}

func (e *Engine) selectTime(state model.ConversationState, body string) turn {
	if n, ok := parseIndex(body); ok {
		// 一覧の範囲外の数字は時刻("10"は10:00)として試す
		if _, listed := state.Context.Option(n); !listed && n < 24 {
			clock := fmt.Sprintf("%02d:00", n)
			if _, ok := state.Context.TimeGroups[clock]; ok {
				return e.chooseTime(state, clock)
			}
		}
		return e.pickOption(state, n)
	}

	clock, ok := model.ParseTimeOfDay(body)
	if !ok {
		return unchanged(unknownTimeReply(state.Context))
	}
	return e.chooseTime(state, clock)
}

// chooseTime は時刻を確定し、その時刻に空いているコートを一覧にします
func (e *Engine) chooseTime(state model.ConversationState, clock string) turn {
	courts, ok := state.Context.TimeGroups[clock]
	if !ok || len(courts) == 0 {
		return unchanged(unknownTimeReply(state.Context))
	}

	options := make([]model.Slot, 0, len(courts))
	for _, c := range courts {
		options = append(options, model.Slot{Court: c, Time: clock})
	}
	state.Context.Time = clock
	state.Context.Options = options
	state.Context.TimeGroups = nil
	state.State = model.StateWaitingCourtSelection
	return turn{next: &state, reply: courtsReply(clock, options)}
}

func (e *Engine) selectCourt(state model.ConversationState, body string) turn {
	n, ok := parseIndex(body)
	if !ok {
		return unchanged(invalidSelectionReply(len(state.Context.Options)))
	}
	return e.pickOption(state, n)
}

// pickOption は直前に表示した番号付きリストから1件を選びます
// 範囲外の番号では状態を変更しません
func (e *Engine) pickOption(state model.ConversationState, n int) turn {
	slot, ok := state.Context.Option(n)
	if !ok {
		return unchanged(invalidSelectionReply(len(state.Context.Options)))
	}
	state.Context.Court = slot.Court
	state.Context.Time = slot.Time
	state.Context.ClearTransient()
	state.State = model.StateWaitingConfirmation
	return turn{next: &state, reply: confirmationReply(state.Context.BookingFields, e.loc)}
}

// confirm は会話をidleに戻し、予約ジョブを作成します
// 前払いが必要なユーザーにはジョブを作らずに案内します
func (e *Engine) confirm(user *model.User, state model.ConversationState, fields model.BookingFields) turn {
	state.Reset()
	if user.RequiresPrepayment {
		return turn{next: &state, reply: replyPrepayment}
	}

	if fields.Name == "" {
		fields.Name = user.Name
	}
	job := &model.BookingJob{
		Key:         bookingKey(user.PhoneNumber, state.Version),
		PhoneNumber: user.PhoneNumber,
		UserID:      user.ID,
		Name:        fields.Name,
		Court:       fields.Court,
		Date:        fields.Date,
		Time:        fields.Time,
		Duration:    fields.DurationOrDefault(),
		CreatedAt:   e.now(),
	}
	return turn{next: &state, reply: replyBookingAck, job: job}
}

// bookingKey は確認を受け付けた会話のバージョンから予約キーを決めます
// 同じバージョンでの再確認は同じキーになり、予約は重複しません
func bookingKey(phone string, version int64) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("padel:booking:%s:%d", phone, version))).String()
}

func (e *Engine) listReservations(ctx context.Context, user *model.User) (turn, error) {
	list, err := e.ledger.Reservations.ListUpcomingByUser(ctx, user.ID, e.now())
	if err != nil {
		return turn{}, err
	}
	return unchanged(reservationsReply(list, e.loc)), nil
}
