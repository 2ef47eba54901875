package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/courseflow/admission/internal/domain"
	"github.com/georgysavva/scany/v2/pgxscan"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ListCourses backs GET /courses. The hot transactional path (Allocate)
// stays raw SQL; this read path uses squirrel to build the optional
// name/capacity filters and scany to scan rows straight into
// []domain.Course, since the shape is a flat struct.
func (r *Repository) ListCourses(ctx context.Context, filter domain.CourseFilter) ([]domain.Course, error) {
	qb := psql.Select("id", "name", "capacity", "seats_taken", "created_at").
		From("courses").
		OrderBy("id ASC")

	if filter.NameContains != "" {
		qb = qb.Where(sq.ILike{"name": "%" + filter.NameContains + "%"})
	}
	if filter.MinCapacity > 0 {
		qb = qb.Where(sq.GtOrEq{"capacity": filter.MinCapacity})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}

	var out []domain.Course
	if err := pgxscan.Select(ctx, r.pool, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}
