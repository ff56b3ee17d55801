package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"archplan/internal/domain"
)

// UpsertTemplate replaces a template and its activity list.
func (r Repo) UpsertTemplate(ctx context.Context, t domain.Template) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `INSERT INTO templates(id,category,name,description,updated_at) VALUES (?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET category=excluded.category, name=excluded.name, description=excluded.description, updated_at=excluded.updated_at`,
		t.ID, t.Category, t.Name, nullable(t.Description), now)
	if err != nil {
		return fmt.Errorf("upsert template %s: %w", t.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM template_activities WHERE template_id=?`, t.ID); err != nil {
		return fmt.Errorf("clear activities of %s: %w", t.ID, err)
	}
	for i, a := range t.Activities {
		deps, err := encodeList(a.Dependencies)
		if err != nil {
			return err
		}
		resources, err := encodeList(a.Resources)
		if err != nil {
			return err
		}
		deliverables, err := encodeList(a.Deliverables)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO template_activities(template_id,activity_id,position,title,description,category,kind,dependencies_json,estimated_minutes,complexity,mandatory,resources_json,deliverables_json) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			t.ID, a.ID, i, a.Title, nullable(a.Description), nullable(a.Category), nullable(a.Kind), deps, a.EstimatedMinutes, nullable(a.Complexity), boolInt(a.Mandatory), resources, deliverables)
		if err != nil {
			return fmt.Errorf("insert activity %s/%s: %w", t.ID, a.ID, err)
		}
	}
	return tx.Commit()
}

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	var (
		t    domain.Template
		desc sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, `SELECT id,category,name,description FROM templates WHERE id=?`, id).
		Scan(&t.ID, &t.Category, &t.Name, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Description = desc.String
	acts, err := r.activities(ctx, t.ID, t.Category)
	if err != nil {
		return t, err
	}
	t.Activities = acts
	return t, nil
}

func (r Repo) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM templates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res := make([]domain.Template, 0, len(ids))
	for _, id := range ids {
		t, err := r.GetTemplate(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

// TemplateActivities serves the composition catalog from SQLite. Unknown
// templates yield an empty list.
func (r Repo) TemplateActivities(ctx context.Context, templateID string) ([]domain.ActivityTemplate, error) {
	var category string
	err := r.DB.QueryRowContext(ctx, `SELECT category FROM templates WHERE id=?`, templateID).Scan(&category)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.ActivityTemplate{}, nil
	}
	if err != nil {
		return nil, err
	}
	return r.activities(ctx, templateID, category)
}

func (r Repo) activities(ctx context.Context, templateID, category string) ([]domain.ActivityTemplate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT activity_id,title,COALESCE(description,''),COALESCE(category,''),COALESCE(kind,''),dependencies_json,estimated_minutes,COALESCE(complexity,''),mandatory,resources_json,deliverables_json
		FROM template_activities WHERE template_id=? ORDER BY position`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ActivityTemplate{}
	for rows.Next() {
		var (
			a                          domain.ActivityTemplate
			deps, resources, delivered string
			mandatory                  int
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.Description, &a.Category, &a.Kind, &deps, &a.EstimatedMinutes, &a.Complexity, &mandatory, &resources, &delivered); err != nil {
			return nil, err
		}
		a.Mandatory = mandatory == 1
		if a.Category == "" {
			a.Category = category
		}
		if a.Dependencies, err = decodeList(deps); err != nil {
			return nil, err
		}
		if a.Resources, err = decodeList(resources); err != nil {
			return nil, err
		}
		if a.Deliverables, err = decodeList(delivered); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
