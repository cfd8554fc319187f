package model

import (
	"fmt"
	"strings"
	"time"
)

// NotificationType は送信する通知の種類を表します
type NotificationType string

const (
	// NotificationTypeBookingConfirmed は予約確定の通知を表します
	NotificationTypeBookingConfirmed NotificationType = "booking_confirmed"
	// NotificationTypeBookingFailed は予約失敗の通知を表します
	NotificationTypeBookingFailed NotificationType = "booking_failed"
	// NotificationTypeReminder24h は24時間前リマインダーを表します
	NotificationTypeReminder24h NotificationType = "reminder_24h"
	// NotificationTypeReminder3h は3時間前リマインダーを表します
	NotificationTypeReminder3h NotificationType = "reminder_3h"
	// NotificationTypeNoShow は無断キャンセル(ノーショー)の通知を表します
	NotificationTypeNoShow NotificationType = "no_show"
)

// Notification はユーザーへ送るメッセージの定義です
// バッチ・ワーカーの両方から利用され、Step Functionsへの出力にもそのまま使われます
type Notification struct {
	Type        NotificationType `json:"type"`
	PhoneNumber string           `json:"phone_number"`
	Reservation *Reservation     `json:"reservation,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	// Strikes とPrepaymentはノーショー通知でのみ使います
	Strikes    int       `json:"strikes,omitempty"`
	Prepayment bool      `json:"requires_prepayment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewNoShowNotification はストライク加算後のユーザー状態から通知を作成します
func NewNoShowNotification(r Reservation, u User, now time.Time) Notification {
	return Notification{
		Type:        NotificationTypeNoShow,
		PhoneNumber: u.PhoneNumber,
		Reservation: &r,
		Strikes:     u.Strikes,
		Prepayment:  u.RequiresPrepayment,
		CreatedAt:   now,
	}
}

// NewReminderNotification はリマインダー種別から通知を作成します
func NewReminderNotification(kind ReminderKind, r Reservation, now time.Time) Notification {
	t := NotificationTypeReminder24h
	if kind == Reminder3h {
		t = NotificationTypeReminder3h
	}
	return Notification{Type: t, PhoneNumber: r.PhoneNumber, Reservation: &r, CreatedAt: now}
}

// Render は通知をユーザー向けの文面に変換します
// 日時はlocのタイムゾーンで表示します
func (n Notification) Render(loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}

	if n.Type == NotificationTypeBookingFailed {
		msg := "❌ No pudimos completar tu reserva."
		if n.Reason != "" {
			msg += " " + n.Reason
		}
		return msg + "\nEscribí *reservar* para intentar con otro horario.", nil
	}

	// 以降の通知は予約情報が必須
	if n.Reservation == nil {
		return "", fmt.Errorf("notification %s has no reservation", n.Type)
	}
	r := n.Reservation
	when := r.StartsAt.In(loc).Format("02/01/2006 15:04")

	switch n.Type {
	case NotificationTypeBookingConfirmed:
		var b strings.Builder
		b.WriteString("✅ ¡Reserva confirmada!\n")
		fmt.Fprintf(&b, "Cancha: %s\nFecha y hora: %s\nDuración: %d minutos", r.CourtName, when, r.DurationMinutes)
		if r.Name != "" {
			fmt.Fprintf(&b, "\nA nombre de: %s", r.Name)
		}
		if r.CalendarLink != nil && *r.CalendarLink != "" {
			fmt.Fprintf(&b, "\nCalendario: %s", *r.CalendarLink)
		}
		return b.String(), nil
	case NotificationTypeReminder24h:
		return fmt.Sprintf("⏰ Recordatorio: mañana tenés reservada la cancha %s a las %s.\n¡Te esperamos!", r.CourtName, r.StartsAt.In(loc).Format("15:04")), nil
	case NotificationTypeReminder3h:
		return fmt.Sprintf("⏰ En 3 horas tenés tu turno en la cancha %s (%s). ¡No llegues tarde!", r.CourtName, when), nil
	case NotificationTypeNoShow:
		msg := fmt.Sprintf("⚠️ No registramos tu asistencia a la reserva de la cancha %s del %s. Se sumó un strike a tu cuenta (total: %d).", r.CourtName, when, n.Strikes)
		if n.Prepayment {
			return msg + "\nA partir de ahora tus próximas reservas requieren pago por adelantado.", nil
		}
		return msg + "\nSi volvés a faltar sin avisar, tus reservas requerirán pago por adelantado.", nil
	}

	return "", fmt.Errorf("unknown notification type: %s", n.Type)
}
