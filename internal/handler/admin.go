package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/saulcastac/PIA-2.0/internal/model"
)

// ReservationOperator は運用者が行う予約操作です
type ReservationOperator interface {
	Cancel(ctx context.Context, id int64) (*model.Reservation, error)
	ConfirmAttendance(ctx context.Context, id int64) (*model.Reservation, error)
}

// Admin は運用者向けのエンドポイントです。Bearerトークンで保護されます
// 前払いフラグを解除する操作は提供しません
type Admin struct {
	operator ReservationOperator
	token    string
}

// NewAdmin は新しいAdminを作成します。tokenが空の場合はnilを返し、エンドポイントは無効になります
func NewAdmin(operator ReservationOperator, token string) *Admin {
	if token == "" {
		return nil
	}
	return &Admin{operator: operator, token: token}
}

func (a *Admin) authorize(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r, ps)
	}
}

// ConfirmAttendance はPOST /admin/reservations/:id/attendanceのハンドラーです
func (a *Admin) ConfirmAttendance(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	a.operate(w, r, ps, "confirm attendance", a.operator.ConfirmAttendance)
}

// Cancel はPOST /admin/reservations/:id/cancelのハンドラーです
func (a *Admin) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	a.operate(w, r, ps, "cancel", a.operator.Cancel)
}

func (a *Admin) operate(w http.ResponseWriter, r *http.Request, ps httprouter.Params, action string, op func(context.Context, int64) (*model.Reservation, error)) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid reservation id"})
		return
	}

	reservation, err := op(r.Context(), id)
	switch {
	case err == nil:
		log.Printf("Admin %s: reservation %d is now %s", action, id, reservation.Status)
		writeJSON(w, http.StatusOK, reservation)
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "reservation not found"})
	case errors.Is(err, model.ErrValidation):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("Failed to %s reservation %d: %v", action, id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
