package intent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/saulcastac/PIA-2.0/internal/model"
)

// Extractor は既知の項目を踏まえてメッセージの意図を抽出します
type Extractor interface {
	Extract(ctx context.Context, message string, prior model.BookingFields, now time.Time) (*Extraction, error)
}

// Resolver はNLUと基本抽出によるフォールバックを組み合わせます
// 呼び出し間で状態は持たず、会話コンテキストは引数で受け取ります
type Resolver struct {
	nlu      Extractor
	fallback Extractor
	norm     Normalizer
}

// NewResolver は新しいResolverを作成します。nluがnilの場合は基本抽出だけを使います
func NewResolver(nlu Extractor, courts model.CourtCatalog, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		nlu:      nlu,
		fallback: BasicExtractor{Courts: courts},
		norm:     Normalizer{Courts: courts, Now: now},
	}
}

// Resolve は失敗しません。NLUのエラーや不正な応答の場合は基本抽出を使います
func (r *Resolver) Resolve(ctx context.Context, message string, prior model.BookingFields) Outcome {
	ctx, seg := xray.BeginSubsegment(ctx, "IntentResolver.Resolve")
	defer seg.Close(nil)

	now := r.norm.Now()

	var e *Extraction
	if r.nlu != nil {
		var err error
		e, err = r.nlu.Extract(ctx, message, prior, now)
		if err == nil {
			err = validate(e)
		}
		if err != nil {
			log.Printf("Intent resolution failed, using basic extraction: %v", fmt.Errorf("%w: %w", model.ErrResolution, err))
			e = nil
		}
	}
	if e == nil {
		// BasicExtractorはエラーを返さない
		e, _ = r.fallback.Extract(ctx, message, prior, now)
	}

	return r.outcome(e, prior)
}

func (r *Resolver) outcome(e *Extraction, prior model.BookingFields) Outcome {
	switch e.Intent {
	case IntentNotBooking:
		return NotBooking{}
	case IntentInfoQuery:
		topic := e.Topic
		if topic == "" {
			topic = TopicOther
		}
		return InfoQuery{Topic: topic}
	}

	fields := r.norm.Fields(*e)
	return Booking{
		Fields:    fields,
		Missing:   prior.Merge(fields).Missing(),
		Confirmed: e.Confirmed,
	}
}

func validate(e *Extraction) error {
	if e == nil {
		return fmt.Errorf("empty extraction")
	}
	switch e.Intent {
	case IntentBooking, IntentInfoQuery, IntentNotBooking:
		return nil
	}
	return fmt.Errorf("unknown intent %q", e.Intent)
}
