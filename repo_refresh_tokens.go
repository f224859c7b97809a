package podauth

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RefreshTokens stores refresh token digests
type RefreshTokens interface {
	repository.Repository[*RefreshToken]
	RefreshTokenStore

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type refreshTokens struct {
	repository.Repository[*RefreshToken]
	db *bun.DB
}

var _ RefreshTokens = (*refreshTokens)(nil)

// NewRefreshTokensRepository returns a bun backed RefreshTokens
func NewRefreshTokensRepository(db *bun.DB) RefreshTokens {
	repo := repository.NewRepository[*RefreshToken](db, repository.ModelHandlers[*RefreshToken]{
		NewRecord: func() *RefreshToken { return &RefreshToken{} },
		GetID: func(r *RefreshToken) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *RefreshToken, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token_hash"
		},
	})

	return &refreshTokens{
		Repository: repo,
		db:         db,
	}
}

func (r *refreshTokens) Save(ctx context.Context, record *RefreshToken) error {
	_, err := r.Repository.CreateTx(ctx, r.db, record)
	return err
}

func (r *refreshTokens) Rotate(ctx context.Context, oldHash string, next *RefreshToken, now time.Time) (uuid.UUID, error) {
	var (
		userID  uuid.UUID
		expired bool
	)

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := &RefreshToken{}
		err := tx.NewSelect().
			Model(current).
			Where("?TableAlias.token_hash = ?", oldHash).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if repository.IsRecordNotFound(err) || stderrors.Is(err, sql.ErrNoRows) {
				return ErrRefreshTokenInvalid
			}
			return errors.Wrap(err, errors.CategoryInternal, "failed to load refresh token")
		}

		res, err := tx.NewDelete().
			Model((*RefreshToken)(nil)).
			Where("id = ?", current.ID).
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to delete refresh token")
		}

		// a concurrent rotation already used it
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrRefreshTokenInvalid
		}

		if !now.Before(current.ExpiresAt) {
			expired = true
			return nil
		}

		next.UserID = current.UserID
		if _, err := r.Repository.CreateTx(ctx, tx, next); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to store refresh token")
		}

		userID = current.UserID
		return nil
	})

	if err != nil {
		return uuid.Nil, err
	}

	if expired {
		return uuid.Nil, ErrRefreshTokenInvalid
	}

	return userID, nil
}

func (r *refreshTokens) DeleteByHash(ctx context.Context, hash string) error {
	_, err := r.db.NewDelete().
		Model((*RefreshToken)(nil)).
		Where("token_hash = ?", hash).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh token")
	}
	return nil
}

func (r *refreshTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*RefreshToken)(nil)).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to delete expired refresh tokens")
	}
	return res.RowsAffected()
}
