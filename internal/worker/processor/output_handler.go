package processor

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"certforge/internal/ports"
	"certforge/internal/worker/util"
)

type OutputHandler struct {
	pool *pgxpool.Pool
	sp   ports.StorageProvider
}

func NewOutputHandler(pool *pgxpool.Pool, sp ports.StorageProvider) *OutputHandler {
	return &OutputHandler{pool: pool, sp: sp}
}

// RegisterArchive uploads the finished spool file to storage and records it
// as an asset. Returns the new asset ID.
func (oh *OutputHandler) RegisterArchive(ctx context.Context, batchID, spoolPath string) (string, error) {
	st, err := os.Stat(spoolPath)
	if err != nil {
		return "", fmt.Errorf("archive file not found: %w", err)
	}

	f, err := os.Open(spoolPath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	objectKey := ArchiveKey(batchID)
	uploaded, err := oh.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   objectKey,
		ContentType: "application/zip",
		Reader:      f,
		Size:        st.Size(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}

	assetID := util.NewID("ast")
	_, err = oh.pool.Exec(ctx,
		`INSERT INTO assets (id, kind, provider, object_key, mime, size_bytes)
		 VALUES ($1,'archive',$2,$3,'application/zip',$4)`,
		assetID, oh.sp.Provider(), uploaded.ObjectKey, uploaded.Size,
	)
	if err != nil {
		return "", fmt.Errorf("failed to register archive asset: %w", err)
	}

	return assetID, nil
}
