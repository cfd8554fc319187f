package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/saulcastac/PIA-2.0/internal/model"
)

const userColumns = `id, phone_number, name, strikes, requires_prepayment, created_at, updated_at`

// UserRepositoryImpl はUserRepositoryのPostgreSQL実装です
type UserRepositoryImpl struct {
	db  *DB
	now func() time.Time
}

// NewUserRepository は新しいUserRepositoryを作成します
func NewUserRepository(db *DB) *UserRepositoryImpl {
	return &UserRepositoryImpl{db: db, now: time.Now}
}

// FindOrCreateByPhone は電話番号でユーザーを取得し、存在しなければ作成します
// 同時に初回メッセージが届いても1行だけ作られるようにUPSERTで行います
func (r *UserRepositoryImpl) FindOrCreateByPhone(ctx context.Context, phone string) (*model.User, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "UserRepository.FindOrCreateByPhone")
	defer seg.Close(nil)

	query := `
		INSERT INTO users (phone_number, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (phone_number) DO UPDATE SET phone_number = EXCLUDED.phone_number
		RETURNING ` + userColumns

	var u model.User
	if err := r.db.QueryRowxContext(ctx, query, phone, r.now()).StructScan(&u); err != nil {
		seg.Close(err)
		return nil, model.StorageError("find or create user", err)
	}

	return &u, nil
}

// GetByID はIDでユーザーを取得します
func (r *UserRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.User, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "UserRepository.GetByID")
	defer seg.Close(nil)

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var u model.User
	err := r.db.QueryRowxContext(ctx, query, id).StructScan(&u)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		seg.Close(err)
		return nil, model.StorageError("get user", err)
	}

	return &u, nil
}

// UpdateName は予約者名を更新します
func (r *UserRepositoryImpl) UpdateName(ctx context.Context, id int64, name string) error {
	ctx, seg := xray.BeginSubsegment(ctx, "UserRepository.UpdateName")
	defer seg.Close(nil)

	query := `UPDATE users SET name = $1, updated_at = $2 WHERE id = $3`

	if _, err := r.db.ExecContext(ctx, query, name, r.now(), id); err != nil {
		seg.Close(err)
		return model.StorageError("update user name", err)
	}

	return nil
}
