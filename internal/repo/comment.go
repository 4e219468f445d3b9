package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/model"
)

// CommentRepo is a tenant-scoped, append-only repository for Comments
// (spec §3: "Append-only").
type CommentRepo struct {
	pool *pgxpool.Pool
}

// Create inserts a new comment.
func (r *CommentRepo) Create(ctx context.Context, c *model.Comment) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	_, err = connFor(ctx, r.pool).Exec(ctx,
		`INSERT INTO comments (id, tenant_id, task_id, user_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, tenantID, c.TaskID, c.UserID, c.Content, c.CreatedAt)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// ListByTask returns every comment on a task, oldest first.
func (r *CommentRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*model.Comment, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT id, tenant_id, task_id, user_id, content, created_at
		 FROM comments WHERE tenant_id = $1 AND task_id = $2 ORDER BY created_at ASC`,
		tenantID, taskID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	var out []*model.Comment
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.TenantID, &c.TaskID, &c.UserID, &c.Content, &c.CreatedAt); err != nil {
			return nil, apperr.Internal(err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
