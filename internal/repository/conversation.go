package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/saulcastac/PIA-2.0/internal/model"
)

// ConversationRepositoryImpl はConversationRepositoryのPostgreSQL実装です
// contextはJSONBで保存します
type ConversationRepositoryImpl struct {
	db  *DB
	now func() time.Time
}

// NewConversationRepository は新しいConversationRepositoryを作成します
func NewConversationRepository(db *DB) *ConversationRepositoryImpl {
	return &ConversationRepositoryImpl{db: db, now: time.Now}
}

// FindOrCreate は電話番号の会話状態を取得し、存在しなければidleで作成します
func (r *ConversationRepositoryImpl) FindOrCreate(ctx context.Context, phone string) (*model.ConversationState, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ConversationRepository.FindOrCreate")
	defer seg.Close(nil)

	query := `
		INSERT INTO conversation_states (phone_number, state, context, version, updated_at)
		VALUES ($1, 'idle', '{}'::jsonb, 0, $2)
		ON CONFLICT (phone_number) DO UPDATE SET phone_number = EXCLUDED.phone_number
		RETURNING phone_number, state, context, version, updated_at`

	var (
		state   model.ConversationState
		rawCtx  []byte
		rawName string
	)
	err := r.db.QueryRowxContext(ctx, query, phone, r.now()).Scan(
		&state.PhoneNumber,
		&rawName,
		&rawCtx,
		&state.Version,
		&state.UpdatedAt,
	)
	if err != nil {
		seg.Close(err)
		return nil, model.StorageError("find or create conversation", err)
	}
	state.State = model.DialogState(rawName)

	if len(rawCtx) > 0 {
		if err := json.Unmarshal(rawCtx, &state.Context); err != nil {
			// 読めないcontextはストレージ障害として扱い、状態は変更しない
			seg.Close(err)
			return nil, model.StorageError("decode conversation context", err)
		}
	}

	return &state, nil
}

// Save は会話状態を楽観ロックで保存します
func (r *ConversationRepositoryImpl) Save(ctx context.Context, state *model.ConversationState) error {
	ctx, seg := xray.BeginSubsegment(ctx, "ConversationRepository.Save")
	defer seg.Close(nil)

	rawCtx, err := json.Marshal(state.Context)
	if err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to encode conversation context: %w", err)
	}

	query := `
		UPDATE conversation_states
		SET state = $1,
			context = $2,
			version = version + 1,
			updated_at = $3
		WHERE phone_number = $4
		AND version = $5`

	now := r.now()
	result, err := r.db.ExecContext(ctx, query, string(state.State), rawCtx, now, state.PhoneNumber, state.Version)
	if err != nil {
		seg.Close(err)
		return model.StorageError("save conversation", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		seg.Close(err)
		return model.StorageError("save conversation", err)
	}

	if rowsAffected == 0 {
		err := model.StorageError("save conversation", fmt.Errorf("%s at version %d: %w", state.PhoneNumber, state.Version, model.ErrStaleState))
		seg.Close(err)
		return err
	}

	state.Version++
	state.UpdatedAt = now
	return nil
}
