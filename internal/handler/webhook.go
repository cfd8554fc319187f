// Package handler はWebhookと運用者向けのHTTPエンドポイントを提供します
package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/saulcastac/PIA-2.0/internal/model"
	"github.com/twilio/twilio-go/client"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// busyTwiML は受け付けられなかったメッセージに対して直接返す応答です
const busyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response><Message>Estamos con mucha demanda en este momento. Por favor, volvé a enviar tu mensaje en unos minutos.</Message></Response>`

// MessageDispatcher は受信メッセージを非同期の処理に渡します
type MessageDispatcher interface {
	Dispatch(key, from, body string) error
}

// WebhookConfig はWebhookの設定です
type WebhookConfig struct {
	// AuthTokenが空の場合は署名を検証しません
	AuthToken string
	// PublicURL はTwilioから見たスキームとホストです (例: https://bot.example.com)。空の場合はリクエストから組み立てます
	PublicURL   string
	CountryCode string
}

// Webhook はTwilioから届くWhatsAppメッセージを受け付けます
// 常に200を返し、返信は別メッセージとして送ります
// 処理キューに積めなかった場合だけ、TwiMLで混雑中の案内を直接返します
type Webhook struct {
	dispatcher  MessageDispatcher
	deduper     Deduper
	limiter     *RateLimiter
	validator   *client.RequestValidator
	publicURL   string
	countryCode string
}

// NewWebhook は新しいWebhookを作成します
func NewWebhook(dispatcher MessageDispatcher, deduper Deduper, limiter *RateLimiter, cfg WebhookConfig) *Webhook {
	h := &Webhook{
		dispatcher:  dispatcher,
		deduper:     deduper,
		limiter:     limiter,
		publicURL:   strings.TrimRight(cfg.PublicURL, "/"),
		countryCode: cfg.CountryCode,
	}
	if cfg.AuthToken != "" {
		v := client.NewRequestValidator(cfg.AuthToken)
		h.validator = &v
	}
	return h
}

// Receive はPOST /webhookのハンドラーです
func (h *Webhook) Receive(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := r.ParseForm(); err != nil {
		log.Printf("Failed to parse webhook form: %v", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !h.verify(r) {
		log.Printf("Rejected webhook with invalid signature from %s", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	from := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")
	sid := r.PostForm.Get("MessageSid")
	response := emptyTwiML
	if from != "" && strings.TrimSpace(body) != "" {
		if err := h.accept(r.Context(), from, body, sid); err != nil {
			response = busyTwiML
		}
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(response))
}

// accept は重複と流量を確認してメッセージを処理キューに積みます
// 重複や流量超過で捨てたメッセージはエラーにしません
func (h *Webhook) accept(ctx context.Context, from, body, sid string) error {
	phone := model.NormalizePhone(from, h.countryCode)

	if sid != "" && h.deduper != nil {
		first, err := h.deduper.FirstSeen(ctx, sid)
		if err != nil {
			// 重複判定ができない場合は処理を優先する
			log.Printf("Failed to check duplicate delivery: %v", err)
		} else if !first {
			log.Printf("Dropped duplicate delivery %s from %s", sid, phone)
			return nil
		}
	}
	if h.limiter != nil && !h.limiter.Allow(phone) {
		log.Printf("Rate limit exceeded for %s", phone)
		return nil
	}

	err := h.dispatcher.Dispatch(phone, from, body)
	if err == nil {
		return nil
	}
	log.Printf("Failed to dispatch message %s from %s: %v", sid, phone, err)
	if sid != "" && h.deduper != nil {
		if ferr := h.deduper.Forget(ctx, sid); ferr != nil {
			log.Printf("Failed to release delivery %s: %v", sid, ferr)
		}
	}
	return err
}

func (h *Webhook) verify(r *http.Request) bool {
	if h.validator == nil {
		return true
	}
	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return h.validator.Validate(h.requestURL(r), params, r.Header.Get("X-Twilio-Signature"))
}

func (h *Webhook) requestURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL + r.URL.RequestURI()
	}
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// Health はGET /healthのハンドラーです
func Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewRouter はすべてのエンドポイントを登録したルーターを作成します
// adminがnilの場合は運用者向けのエンドポイントを登録しません
func NewRouter(webhook *Webhook, admin *Admin) *httprouter.Router {
	router := httprouter.New()
	router.GET("/health", Health)
	router.POST("/webhook", webhook.Receive)
	router.POST("/", webhook.Receive)
	if admin != nil {
		router.POST("/admin/reservations/:id/attendance", admin.authorize(admin.ConfirmAttendance))
		router.POST("/admin/reservations/:id/cancel", admin.authorize(admin.Cancel))
	}
	return router
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
