package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"estuary/internal/model"
)

type AssetRepository interface {
	Get(ctx context.Context, ownerID int64) (*model.CachedAsset, error)
	Upsert(ctx context.Context, asset model.CachedAsset) error
	// Delete removes the asset row and returns the file ref that was
	// stored, so the caller can remove the binary too.
	Delete(ctx context.Context, ownerID int64) (*string, error)
	ListFileRefs(ctx context.Context) ([]string, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type assetRepository struct {
	db dbtx
}

func NewAssetRepository(db dbtx) AssetRepository {
	return &assetRepository{db: db}
}

func (r *assetRepository) Get(ctx context.Context, ownerID int64) (*model.CachedAsset, error) {
	row := r.db.QueryRowContext(ctx, `SELECT owner_id, file_ref, mime_type, created_at, updated_at FROM assets WHERE owner_id = ?`, ownerID)
	var asset model.CachedAsset
	var createdAt, updatedAt string
	if err := row.Scan(&asset.OwnerID, &asset.FileRef, &asset.MimeType, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	asset.CreatedAt, _ = parseTime(createdAt)
	asset.UpdatedAt, _ = parseTime(updatedAt)
	return &asset, nil
}

func (r *assetRepository) Upsert(ctx context.Context, asset model.CachedAsset) error {
	now := formatTime(time.Now())
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO assets (owner_id, file_ref, mime_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET file_ref = excluded.file_ref, mime_type = excluded.mime_type, updated_at = excluded.updated_at`,
		asset.OwnerID,
		asset.FileRef,
		asset.MimeType,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	return nil
}

func (r *assetRepository) Delete(ctx context.Context, ownerID int64) (*string, error) {
	var fileRef string
	err := r.db.QueryRowContext(ctx, `SELECT file_ref FROM assets WHERE owner_id = ?`, ownerID).Scan(&fileRef)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find asset: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE owner_id = ?`, ownerID); err != nil {
		return nil, fmt.Errorf("delete asset: %w", err)
	}
	return &fileRef, nil
}

func (r *assetRepository) ListFileRefs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT file_ref FROM assets`)
	if err != nil {
		return nil, fmt.Errorf("list asset refs: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate asset refs: %w", err)
	}
	return refs, nil
}

func (r *assetRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM assets`)
	if err != nil {
		return 0, fmt.Errorf("delete all assets: %w", err)
	}
	return result.RowsAffected()
}
