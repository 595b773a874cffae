// Package assets caches remote icon and thumbnail binaries on disk,
// keyed by owner id, with metadata in the assets table.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"estuary/internal/config"
	"estuary/internal/feederr"
	"estuary/internal/logger"
	"estuary/internal/model"
	"estuary/internal/network"
	"estuary/internal/repository"
)

const (
	fetchTimeout = 15 * time.Second

	// minAssetSize rejects tracking pixels and error pages served with
	// a 200 status.
	minAssetSize = 100

	maxAssetSize = 10 << 20
)

var extByMime = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/x-icon":  ".ico",
}

// Cache stores fetched binaries under dataDir/assets and records them in
// the asset repository.
type Cache struct {
	dir     string
	repo    repository.AssetRepository
	clients *network.ClientFactory
}

func NewCache(dataDir string, repo repository.AssetRepository, clients *network.ClientFactory) (*Cache, error) {
	dir := filepath.Join(dataDir, "assets")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create assets dir: %w", err)
	}
	return &Cache{dir: dir, repo: repo, clients: clients}, nil
}

// Path returns the on-disk location for a file ref.
func (c *Cache) Path(fileRef string) string {
	return filepath.Join(c.dir, filepath.Base(fileRef))
}

// CacheAsset fetches sourceURL and persists it for ownerID. It is
// idempotent: when an asset is already cached for the owner, the cached
// descriptor is returned without a fetch. File names derive from the
// source URL so a re-populate of the same source overwrites in place.
func (c *Cache) CacheAsset(ctx context.Context, ownerID int64, sourceURL string) (*model.CachedAsset, error) {
	existing, err := c.repo.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	sum := sha256.Sum256([]byte(sourceURL))
	return c.store(ctx, ownerID, sourceURL, hex.EncodeToString(sum[:16]))
}

// ForceRefetch clears any cached asset for the owner and fetches a fresh
// copy under a new random file ref. The random ref guarantees a restored
// or manually refreshed owner can never be served a stale binary left by
// a historical source.
func (c *Cache) ForceRefetch(ctx context.Context, ownerID int64, sourceURL string) (*model.CachedAsset, error) {
	if err := c.ClearAsset(ctx, ownerID); err != nil {
		return nil, err
	}
	return c.store(ctx, ownerID, sourceURL, uuid.NewString())
}

func (c *Cache) store(ctx context.Context, ownerID int64, sourceURL, baseName string) (*model.CachedAsset, error) {
	data, mimeType, err := c.fetch(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	fileRef := baseName + extForMime(mimeType)
	if err := os.WriteFile(c.Path(fileRef), data, 0o644); err != nil {
		return nil, fmt.Errorf("write asset: %w", err)
	}

	asset := model.CachedAsset{OwnerID: ownerID, FileRef: fileRef, MimeType: mimeType}
	if err := c.repo.Upsert(ctx, asset); err != nil {
		return nil, err
	}
	logger.Debug("asset cached",
		"module", "assets", "action", "cache", "resource", "asset", "result", "ok",
		"owner_id", ownerID, "file_ref", fileRef, "bytes", len(data))
	return &asset, nil
}

// ClearAsset removes the owner's cached binary and its metadata row.
// Clearing an owner with no asset is a no-op.
func (c *Cache) ClearAsset(ctx context.Context, ownerID int64) error {
	fileRef, err := c.repo.Delete(ctx, ownerID)
	if err != nil {
		return err
	}
	if fileRef == nil {
		return nil
	}
	if err := os.Remove(c.Path(*fileRef)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove asset file: %w", err)
	}
	return nil
}

// ClearAllAssets drops every cached binary and metadata row.
func (c *Cache) ClearAllAssets(ctx context.Context) error {
	refs, err := c.repo.ListFileRefs(ctx)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := os.Remove(c.Path(ref)); err != nil && !os.IsNotExist(err) {
			logger.Warn("asset file removal failed",
				"module", "assets", "action", "clear_all", "resource", "asset", "result", "failed",
				"file_ref", ref, "error", err)
		}
	}
	count, err := c.repo.DeleteAll(ctx)
	if err != nil {
		return err
	}
	logger.Info("asset cache cleared",
		"module", "assets", "action", "clear_all", "resource", "asset", "result", "ok",
		"count", count)
	return nil
}

func (c *Cache) fetch(ctx context.Context, sourceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", feederr.Wrap(feederr.KindValidation, "invalid asset URL", err)
	}
	req.Header.Set("User-Agent", config.UserAgent)

	resp, err := c.clients.NewHTTPClient(fetchTimeout).Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", feederr.Newf(feederr.KindHTTPStatus, "unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize))
	if err != nil {
		return nil, "", err
	}
	if len(data) < minAssetSize {
		return nil, "", feederr.Newf(feederr.KindValidation, "asset too small: %d bytes", len(data))
	}

	mimeType := strings.TrimSpace(strings.SplitN(resp.Header.Get("Content-Type"), ";", 2)[0])
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

func extForMime(mimeType string) string {
	if ext, ok := extByMime[mimeType]; ok {
		return ext
	}
	return ".img"
}
