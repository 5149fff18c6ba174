package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"nexus/internal/model"
	"nexus/pkg/otel"
)

// PostgresProjectStore keeps each project as a JSONB document next to the
// columns used for lookups and the optimistic version.
type PostgresProjectStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresProjectStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresProjectStore {
	return &PostgresProjectStore{
		db:     db,
		logger: logger,
	}
}

const projectColumns = `doc, brief, brief_generated_at, version, created_at, updated_at`

func (r *PostgresProjectStore) Create(ctx context.Context, p *model.Project) error {
	p.Version = 1
	doc, err := encodeDoc(p)
	if err != nil {
		return err
	}
	owner, name := repoColumns(p)

	query := `
        INSERT INTO projects (id, created_by, repo_owner, repo_name, doc, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, 1, $6, $7)
    `
	err = otel.Postgres(ctx, "insert", "projects", func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query, p.ID, p.CreatedBy, owner, name, doc, p.CreatedAt, p.UpdatedAt)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to insert project", zap.String("project_id", p.ID), zap.Error(err))
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (r *PostgresProjectStore) Get(ctx context.Context, id string) (*model.Project, error) {
	var p *model.Project
	err := otel.Postgres(ctx, "select", "projects", func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
		var err error
		p, err = scanProject(row)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (r *PostgresProjectStore) ListForUser(ctx context.Context, userID, email string) ([]*model.Project, error) {
	query := `
        SELECT ` + projectColumns + `
        FROM projects
        WHERE created_by = $1
           OR doc->'teamMembers' ? $1
           OR EXISTS (
                SELECT 1 FROM jsonb_array_elements_text(doc->'teamMembers') m
                WHERE $2 <> '' AND lower(m) = lower($2)
           )
        ORDER BY created_at DESC
    `
	return r.list(ctx, query, userID, email)
}

func (r *PostgresProjectStore) FindByRepo(ctx context.Context, owner, name string) ([]*model.Project, error) {
	query := `
        SELECT ` + projectColumns + `
        FROM projects
        WHERE lower(repo_owner) = lower($1) AND lower(repo_name) = lower($2)
        ORDER BY created_at DESC
    `
	return r.list(ctx, query, owner, name)
}

func (r *PostgresProjectStore) list(ctx context.Context, query string, args ...any) ([]*model.Project, error) {
	var out []*model.Project
	err := otel.Postgres(ctx, "select", "projects", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanProject(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

func (r *PostgresProjectStore) Save(ctx context.Context, p *model.Project) error {
	doc, err := encodeDoc(p)
	if err != nil {
		return err
	}
	owner, name := repoColumns(p)

	query := `
        UPDATE projects
        SET doc = $2, repo_owner = $3, repo_name = $4, version = version + 1, updated_at = $5
        WHERE id = $1 AND version = $6
        RETURNING version
    `
	var next int64
	err = otel.Postgres(ctx, "update", "projects", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, p.ID, doc, owner, name, p.UpdatedAt, p.Version).Scan(&next)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("save project: %w", err)
		}
		if !exists {
			return fmt.Errorf("project %s: %w", p.ID, model.ErrNotFound)
		}
		r.logger.Debug("Stale project write rejected",
			zap.String("project_id", p.ID),
			zap.Int64("version", p.Version),
		)
		return fmt.Errorf("project %s version %d: %w", p.ID, p.Version, model.ErrVersionConflict)
	}
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	p.Version = next
	return nil
}

func (r *PostgresProjectStore) SaveBrief(ctx context.Context, id string, brief model.ExecutiveBrief) error {
	var tag int64
	err := otel.Postgres(ctx, "update", "projects.brief", func(ctx context.Context) error {
		ct, err := r.db.Exec(ctx,
			`UPDATE projects SET brief = $2, brief_generated_at = $3 WHERE id = $1`,
			id, []byte(brief.Content), brief.GeneratedAt,
		)
		tag = ct.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("save brief: %w", err)
	}
	if tag == 0 {
		return fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (r *PostgresProjectStore) Delete(ctx context.Context, id string) error {
	var tag int64
	err := otel.Postgres(ctx, "delete", "projects", func(ctx context.Context) error {
		ct, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
		tag = ct.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag == 0 {
		return fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (r *PostgresProjectStore) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// encodeDoc serialises the aggregate without the brief, which has its own columns.
func encodeDoc(p *model.Project) ([]byte, error) {
	cp := *p
	cp.ExecutiveBrief = nil
	doc, err := json.Marshal(&cp)
	if err != nil {
		return nil, fmt.Errorf("encode project: %w", err)
	}
	return doc, nil
}

func repoColumns(p *model.Project) (string, string) {
	if p.GitHub == nil {
		return "", ""
	}
	return p.GitHub.RepoOwner, p.GitHub.RepoName
}

func scanProject(row pgx.Row) (*model.Project, error) {
	var (
		doc         []byte
		brief       []byte
		briefAt     *time.Time
		p           model.Project
		version     int64
		created, up time.Time
	)
	if err := row.Scan(&doc, &brief, &briefAt, &version, &created, &up); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	p.Version = version
	p.CreatedAt = created
	p.UpdatedAt = up
	if len(brief) > 0 && briefAt != nil {
		p.ExecutiveBrief = &model.ExecutiveBrief{Content: json.RawMessage(brief), GeneratedAt: *briefAt}
	}
	return &p, nil
}
