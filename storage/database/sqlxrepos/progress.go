package sqlxrepos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/manabi/core"
	"github.com/trezcool/manabi/core/progress"
)

const progressColumns = "p.id, p.user_id, p.node_id, p.status, p.record_date, p.created_at"

type progressRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	NodeID     string    `db:"node_id"`
	Status     string    `db:"status"`
	RecordDate null.Time `db:"record_date"`
	CreatedAt  null.Time `db:"created_at"`
}

type progressRepository struct {
	exec core.DBExecutor
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(exec core.DBExecutor) *progressRepository {
	return &progressRepository{exec: exec}
}

func (repo progressRepository) boil(p progress.Progress) progressRow {
	return progressRow{
		ID:         p.ID,
		UserID:     p.UserID,
		NodeID:     p.NodeID,
		Status:     p.Status,
		RecordDate: null.NewTime(p.Date.UTC(), !p.Date.IsZero()),
		CreatedAt:  null.NewTime(p.CreatedAt.UTC(), !p.CreatedAt.IsZero()),
	}
}

func (repo progressRepository) unboil(row progressRow) progress.Progress {
	return progress.Progress{
		ID:        row.ID,
		UserID:    row.UserID,
		NodeID:    row.NodeID,
		Status:    row.Status,
		Date:      utc(row.RecordDate),
		CreatedAt: utc(row.CreatedAt),
	}
}

func (repo progressRepository) CreateProgress(ctx context.Context, p progress.Progress, exec ...core.DBExecutor) (progress.Progress, error) {
	ex := getExec(repo.exec, exec)
	p.ID = uuid.New().String()
	row := repo.boil(p)

	q := `INSERT INTO progress (id, user_id, node_id, status, record_date, created_at)
		VALUES (:id, :user_id, :node_id, :status, :record_date, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, ex, q, row); err != nil {
		return progress.Progress{}, errors.Wrap(err, "inserting progress")
	}
	return repo.unboil(row), nil
}

func (repo progressRepository) QueryProgress(ctx context.Context, filter progress.QueryFilter, exec ...core.DBExecutor) ([]progress.Progress, error) {
	ex := getExec(repo.exec, exec)

	var (
		where []string
		args  []interface{}
	)
	q := "SELECT " + progressColumns + " FROM progress p"
	if filter.MaterialID != "" {
		q += " INNER JOIN material_node n ON n.id = p.node_id"
		where = append(where, "n.material_id = ?")
		args = append(args, filter.MaterialID)
	}
	if filter.NodeID != "" {
		where = append(where, "p.node_id = ?")
		args = append(args, filter.NodeID)
	}
	if filter.UserID != "" {
		where = append(where, "p.user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY p.record_date DESC, p.created_at DESC, p.id"

	var rows []progressRow
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}
	records := make([]progress.Progress, 0, len(rows))
	for _, row := range rows {
		records = append(records, repo.unboil(row))
	}
	return records, nil
}

func (repo progressRepository) LatestStatuses(ctx context.Context, userID string, nodeIDs []string, exec ...core.DBExecutor) (map[string]string, error) {
	statuses := make(map[string]string, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return statuses, nil
	}
	ex := getExec(repo.exec, exec)

	q, args, err := sqlx.In(
		"SELECT "+progressColumns+" FROM progress p WHERE p.user_id = ? AND p.node_id IN (?)"+
			" ORDER BY p.record_date DESC, p.created_at DESC, p.id",
		userID, nodeIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying latest statuses")
	}

	var rows []progressRow
	if err = sqlx.SelectContext(ctx, ex, &rows, ex.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying latest statuses")
	}
	for _, row := range rows {
		if _, ok := statuses[row.NodeID]; !ok { // newest first
			statuses[row.NodeID] = row.Status
		}
	}
	return statuses, nil
}
