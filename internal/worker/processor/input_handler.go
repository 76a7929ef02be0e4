package processor

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"

	"certforge/internal/compose"
	"certforge/internal/ports"
	"certforge/internal/tabular"
)

// BatchInputs are the materialized inputs one batch renders from.
type BatchInputs struct {
	Rows       []tabular.Row
	Columns    []string
	Background compose.Background
}

type InputHandler struct {
	pool *pgxpool.Pool
	sp   ports.StorageProvider
}

func NewInputHandler(pool *pgxpool.Pool, sp ports.StorageProvider) *InputHandler {
	return &InputHandler{pool: pool, sp: sp}
}

// Materialize pulls the CSV and the background image out of storage. The
// CSV is parsed streaming; the image is held in memory since it is inlined
// into every composed document anyway.
func (ih *InputHandler) Materialize(ctx context.Context, in *ParsedBatch) (*BatchInputs, error) {
	csvAsset, err := ih.fetchAsset(ctx, in.CSVAssetID)
	if err != nil {
		return nil, fmt.Errorf("csv asset not found asset_id=%s: %w", in.CSVAssetID, err)
	}
	imgAsset, err := ih.fetchAsset(ctx, in.ImageAssetID)
	if err != nil {
		return nil, fmt.Errorf("image asset not found asset_id=%s: %w", in.ImageAssetID, err)
	}

	csvRC, _, _, err := ih.sp.GetObject(ctx, csvAsset.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("download csv failed asset_id=%s: %w", in.CSVAssetID, err)
	}
	defer csvRC.Close()

	rows, columns, err := tabular.ReadRows(csvRC)
	if err != nil {
		return nil, fmt.Errorf("parse csv failed asset_id=%s: %w", in.CSVAssetID, err)
	}

	imgRC, ct, _, err := ih.sp.GetObject(ctx, imgAsset.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("download image failed asset_id=%s: %w", in.ImageAssetID, err)
	}
	defer imgRC.Close()

	imgBytes, err := io.ReadAll(imgRC)
	if err != nil {
		return nil, fmt.Errorf("read image failed asset_id=%s: %w", in.ImageAssetID, err)
	}
	if ct == "" {
		ct = imgAsset.Mime
	}

	return &BatchInputs{
		Rows:    rows,
		Columns: columns,
		Background: compose.Background{
			Data:        imgBytes,
			ContentType: ct,
		},
	}, nil
}

type assetMetadata struct {
	ObjectKey string
	Mime      string
}

func (ih *InputHandler) fetchAsset(ctx context.Context, assetID string) (*assetMetadata, error) {
	var objectKey, mime string
	err := ih.pool.QueryRow(ctx,
		`SELECT object_key, mime FROM assets WHERE id=$1`,
		assetID,
	).Scan(&objectKey, &mime)
	if err != nil {
		return nil, err
	}

	return &assetMetadata{ObjectKey: objectKey, Mime: mime}, nil
}
