package model

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage はストアに到達できないことを表します。そのターンは破棄されます
	ErrStorage = errors.New("storage unavailable")
	// ErrStaleState は読み込み後に会話状態が更新されたことを表します
	ErrStaleState = errors.New("conversation state changed concurrently")
	// ErrResolution はNLUの失敗または不正な応答です
	ErrResolution = errors.New("intent resolution failed")
	// ErrBookingFailed は予約が作成されなかったことを表します
	ErrBookingFailed = errors.New("booking failed")
	// ErrSlotTaken はカレンダー上で枠が埋まっている場合です
	ErrSlotTaken = errors.New("slot already taken")
	// ErrPrepaymentRequired はストライクにより前払いが必要な場合です
	ErrPrepaymentRequired = errors.New("prepayment required")
	// ErrValidation は入力を解釈できなかったことを表します
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateBooking は同じbooking_keyの予約が既にあることを表します
	ErrDuplicateBooking = errors.New("duplicate booking key")
	ErrNotFound         = errors.New("not found")
)

// StorageError はバックエンドのエラーをErrStorageとして判定できるようにラップします
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// BookingFailed は予約を作成できなかった理由をラップします
func BookingFailed(reason error) error {
	return fmt.Errorf("%w: %w", ErrBookingFailed, reason)
}
