package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"certforge/internal/design"
)

// ParsedBatch is one queued batch after its params and referenced design
// have been resolved and validated.
type ParsedBatch struct {
	TemplateID   string
	CSVAssetID   string
	ImageAssetID string
	Concurrency  int
	NameColumn   string
	Design       *design.Config
}

type BatchParser struct {
	pool *pgxpool.Pool
}

func NewBatchParser(pool *pgxpool.Pool) *BatchParser {
	return &BatchParser{pool: pool}
}

type batchParams struct {
	TemplateID   string `json:"template_id"`
	CSVAssetID   string `json:"csv_asset_id"`
	ImageAssetID string `json:"image_asset_id"`
	Concurrency  int    `json:"concurrency"`
	NameColumn   string `json:"name_column"`
}

// Parse decodes the stored params and loads the design config the batch
// renders with. The design is validated here so a template edited into an
// invalid state fails the batch before the engine starts.
func (bp *BatchParser) Parse(ctx context.Context, paramsJSON string) (*ParsedBatch, error) {
	var p batchParams
	if err := json.Unmarshal([]byte(paramsJSON), &p); err != nil {
		return nil, fmt.Errorf("invalid params_json: %w", err)
	}

	p.TemplateID = strings.TrimSpace(p.TemplateID)
	p.CSVAssetID = strings.TrimSpace(p.CSVAssetID)
	p.ImageAssetID = strings.TrimSpace(p.ImageAssetID)

	if p.TemplateID == "" {
		return nil, fmt.Errorf("template_id is required")
	}
	if p.CSVAssetID == "" {
		return nil, fmt.Errorf("csv_asset_id is required")
	}
	if p.ImageAssetID == "" {
		return nil, fmt.Errorf("image_asset_id is required")
	}

	cfg, err := bp.fetchDesign(ctx, p.TemplateID)
	if err != nil {
		return nil, err
	}

	return &ParsedBatch{
		TemplateID:   p.TemplateID,
		CSVAssetID:   p.CSVAssetID,
		ImageAssetID: p.ImageAssetID,
		Concurrency:  p.Concurrency,
		NameColumn:   p.NameColumn,
		Design:       cfg,
	}, nil
}

func (bp *BatchParser) fetchDesign(ctx context.Context, templateID string) (*design.Config, error) {
	var raw []byte
	err := bp.pool.QueryRow(ctx,
		`SELECT design_json FROM templates WHERE id=$1 AND deleted_at IS NULL`,
		templateID,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("template not found: %s", templateID)
	}

	cfg, err := design.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("template %s has invalid design: %w", templateID, err)
	}
	return cfg, nil
}
