package repositories

import (
	"context"
	"errors"

	"certforge/internal/httpkit"
	"certforge/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTemplateNotFound = errors.New("template not found")
var ErrTemplateNameExists = errors.New("template name already exists")

// TemplateRepository persists saved certificate designs.
type TemplateRepository struct {
	db *pgxpool.Pool
}

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, t *models.Template) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO templates (id, name, description, design_json)
		VALUES ($1,$2,$3,$4::jsonb)
		RETURNING created_at
	`, t.ID, t.Name, t.Description, []byte(t.Design)).Scan(&t.CreatedAt)

	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return ErrTemplateNameExists
		}
		return err
	}
	return nil
}

func (r *TemplateRepository) List(ctx context.Context) ([]models.Template, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, COALESCE(description,''), created_at
		FROM templates
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		var t models.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *TemplateRepository) Get(ctx context.Context, id string) (*models.Template, error) {
	var t models.Template
	var design []byte
	err := r.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(description,''), design_json, created_at, deleted_at
		FROM templates
		WHERE id=$1 AND deleted_at IS NULL
	`, id).Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&design,
		&t.CreatedAt,
		&t.DeletedAt,
	)
	if err != nil {
		return nil, ErrTemplateNotFound
	}
	t.Design = design
	return &t, nil
}

// UpdateDesign replaces the design blob of an existing template.
func (r *TemplateRepository) UpdateDesign(ctx context.Context, id string, design []byte) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE templates
		SET design_json=$2::jsonb
		WHERE id=$1 AND deleted_at IS NULL
	`, id, design)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE templates
		SET deleted_at=now()
		WHERE id=$1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}
