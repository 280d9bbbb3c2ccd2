package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/manabi/core"
	"github.com/trezcool/manabi/core/material"
)

const (
	materialColumns = "id, title, description, owner_id, is_template, parent_template_id, last_updated_by_id, created_at, updated_at"
	nodeColumns     = "id, material_id, parent_id, title, description, sort_order, owner_id, last_updated_by_id, created_at, updated_at"
)

// materialOrderingFields maps the orderable fields to their columns.
var materialOrderingFields = map[string]string{
	"title":      "title",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

type (
	materialRow struct {
		ID               string      `db:"id"`
		Title            string      `db:"title"`
		Description      string      `db:"description"`
		OwnerID          null.String `db:"owner_id"`
		IsTemplate       bool        `db:"is_template"`
		ParentTemplateID null.String `db:"parent_template_id"`
		LastUpdatedByID  null.String `db:"last_updated_by_id"`
		CreatedAt        null.Time   `db:"created_at"`
		UpdatedAt        null.Time   `db:"updated_at"`
	}

	nodeRow struct {
		ID              string      `db:"id"`
		MaterialID      string      `db:"material_id"`
		ParentID        null.String `db:"parent_id"`
		Title           string      `db:"title"`
		Description     string      `db:"description"`
		SortOrder       int         `db:"sort_order"`
		OwnerID         null.String `db:"owner_id"`
		LastUpdatedByID null.String `db:"last_updated_by_id"`
		CreatedAt       null.Time   `db:"created_at"`
		UpdatedAt       null.Time   `db:"updated_at"`
	}
)

type materialRepository struct {
	exec core.DBExecutor
}

var _ material.Repository = (*materialRepository)(nil) // interface compliance check

func NewMaterialRepository(exec core.DBExecutor) *materialRepository {
	return &materialRepository{exec: exec}
}

func (repo materialRepository) boil(m material.Material) materialRow {
	return materialRow{
		ID:               m.ID,
		Title:            m.Title,
		Description:      m.Description,
		OwnerID:          null.NewString(m.OwnerID, m.OwnerID != ""),
		IsTemplate:       m.IsTemplate,
		ParentTemplateID: null.NewString(m.ParentTemplateID, m.ParentTemplateID != ""),
		LastUpdatedByID:  null.NewString(m.LastUpdatedByID, m.LastUpdatedByID != ""),
		CreatedAt:        null.NewTime(m.CreatedAt.UTC(), !m.CreatedAt.IsZero()),
		UpdatedAt:        null.NewTime(m.UpdatedAt.UTC(), !m.UpdatedAt.IsZero()),
	}
}

func (repo materialRepository) unboil(row materialRow) material.Material {
	return material.Material{
		ID:               row.ID,
		Title:            row.Title,
		Description:      row.Description,
		OwnerID:          row.OwnerID.String,
		IsTemplate:       row.IsTemplate,
		ParentTemplateID: row.ParentTemplateID.String,
		LastUpdatedByID:  row.LastUpdatedByID.String,
		CreatedAt:        utc(row.CreatedAt),
		UpdatedAt:        utc(row.UpdatedAt),
	}
}

func (repo materialRepository) boilNode(n material.Node) nodeRow {
	return nodeRow{
		ID:              n.ID,
		MaterialID:      n.MaterialID,
		ParentID:        null.NewString(n.ParentID, n.ParentID != ""),
		Title:           n.Title,
		Description:     n.Description,
		SortOrder:       n.Order,
		OwnerID:         null.NewString(n.OwnerID, n.OwnerID != ""),
		LastUpdatedByID: null.NewString(n.LastUpdatedByID, n.LastUpdatedByID != ""),
		CreatedAt:       null.NewTime(n.CreatedAt.UTC(), !n.CreatedAt.IsZero()),
		UpdatedAt:       null.NewTime(n.UpdatedAt.UTC(), !n.UpdatedAt.IsZero()),
	}
}

func (repo materialRepository) unboilNode(row nodeRow) material.Node {
	return material.Node{
		ID:              row.ID,
		MaterialID:      row.MaterialID,
		ParentID:        row.ParentID.String,
		Title:           row.Title,
		Description:     row.Description,
		Order:           row.SortOrder,
		OwnerID:         row.OwnerID.String,
		LastUpdatedByID: row.LastUpdatedByID.String,
		CreatedAt:       utc(row.CreatedAt),
		UpdatedAt:       utc(row.UpdatedAt),
	}
}

// trapNoRowsErr maps "no rows" err to notFound
func (repo materialRepository) trapNoRowsErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// trapNodeErr maps the sibling order unique violation to material.ErrDuplicateOrder
func (repo materialRepository) trapNodeErr(err error, msg string) error {
	if isUniqueViolation(err) {
		return material.ErrDuplicateOrder
	}
	return errors.Wrap(err, msg)
}

func (repo materialRepository) CreateMaterial(ctx context.Context, m material.Material, exec ...core.DBExecutor) (material.Material, error) {
	ex := getExec(repo.exec, exec)
	m.ID = uuid.New().String()
	row := repo.boil(m)

	q := `INSERT INTO material (` + materialColumns + `)
		VALUES (:id, :title, :description, :owner_id, :is_template, :parent_template_id, :last_updated_by_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, ex, q, row); err != nil {
		return material.Material{}, errors.Wrap(err, "inserting material")
	}
	return repo.unboil(row), nil
}

func (repo materialRepository) GetMaterial(ctx context.Context, filter material.GetFilter, exec ...core.DBExecutor) (material.Material, error) {
	ex := getExec(repo.exec, exec)
	if !validID(filter.ID) {
		return material.Material{}, material.ErrNotFound
	}

	q := "SELECT " + materialColumns + " FROM material WHERE id = ?"
	args := []interface{}{filter.ID}
	if filter.IsTemplate != nil {
		q += " AND is_template = ?"
		args = append(args, *filter.IsTemplate)
	}
	if filter.VisibleTo != "" {
		q += " AND (is_template = ? OR owner_id = ?)"
		args = append(args, true, filter.VisibleTo)
	}

	var row materialRow
	if err := sqlx.GetContext(ctx, ex, &row, ex.Rebind(q), args...); err != nil {
		return material.Material{}, repo.trapNoRowsErr(err, material.ErrNotFound, "getting material")
	}
	return repo.unboil(row), nil
}

func (repo materialRepository) QueryMaterials(ctx context.Context, filter *material.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]material.Material, error) {
	ex := getExec(repo.exec, exec)

	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		// materials with Title or Description matching the search keyword
		if filter.Search != "" {
			val := "%" + strings.ToLower(filter.Search) + "%"
			where = append(where, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
			args = append(args, val, val)
		}
		if filter.IsTemplate != nil {
			where = append(where, "is_template = ?")
			args = append(args, *filter.IsTemplate)
		}
		if filter.VisibleTo != "" {
			where = append(where, "(is_template = ? OR owner_id = ?)")
			args = append(args, true, filter.VisibleTo)
		}
	}

	q := "SELECT " + materialColumns + " FROM material"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += orderBy(ordering, materialOrderingFields, "title, id")

	var rows []materialRow
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying materials")
	}
	materials := make([]material.Material, 0, len(rows))
	for _, row := range rows {
		materials = append(materials, repo.unboil(row))
	}
	return materials, nil
}

func (repo materialRepository) UpdateMaterial(ctx context.Context, m material.Material, exec ...core.DBExecutor) (material.Material, error) {
	ex := getExec(repo.exec, exec)
	row := repo.boil(m)

	q := `UPDATE material SET
		title = :title, description = :description, last_updated_by_id = :last_updated_by_id, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, ex, q, row)
	if err != nil {
		return material.Material{}, errors.Wrap(err, "updating material")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return material.Material{}, material.ErrNotFound
	}
	return repo.unboil(row), nil
}

// LockMaterial takes a row lock on the material on postgres. sqlite write transactions are
// already serialised (single connection), so the select only checks existence there.
func (repo materialRepository) LockMaterial(ctx context.Context, id string, exec ...core.DBExecutor) error {
	ex := getExec(repo.exec, exec)
	if !validID(id) {
		return material.ErrNotFound
	}

	q := "SELECT id FROM material WHERE id = ?"
	if ex.DriverName() == "postgres" {
		q += " FOR UPDATE"
	}
	var locked string
	if err := sqlx.GetContext(ctx, ex, &locked, ex.Rebind(q), id); err != nil {
		return repo.trapNoRowsErr(err, material.ErrNotFound, "locking material")
	}
	return nil
}

func (repo materialRepository) CreateNode(ctx context.Context, n material.Node, exec ...core.DBExecutor) (material.Node, error) {
	ex := getExec(repo.exec, exec)
	n.ID = uuid.New().String()
	row := repo.boilNode(n)

	q := `INSERT INTO material_node (` + nodeColumns + `)
		VALUES (:id, :material_id, :parent_id, :title, :description, :sort_order, :owner_id, :last_updated_by_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, ex, q, row); err != nil {
		return material.Node{}, repo.trapNodeErr(err, "inserting node")
	}
	return repo.unboilNode(row), nil
}

func (repo materialRepository) GetNode(ctx context.Context, id string, exec ...core.DBExecutor) (material.Node, error) {
	ex := getExec(repo.exec, exec)
	if !validID(id) {
		return material.Node{}, material.ErrNodeNotFound
	}

	var row nodeRow
	q := "SELECT " + nodeColumns + " FROM material_node WHERE id = ?"
	if err := sqlx.GetContext(ctx, ex, &row, ex.Rebind(q), id); err != nil {
		return material.Node{}, repo.trapNoRowsErr(err, material.ErrNodeNotFound, "getting node")
	}
	return repo.unboilNode(row), nil
}

func (repo materialRepository) QueryNodes(ctx context.Context, materialID string, exec ...core.DBExecutor) ([]material.Node, error) {
	ex := getExec(repo.exec, exec)

	var rows []nodeRow
	q := "SELECT " + nodeColumns + " FROM material_node WHERE material_id = ? ORDER BY sort_order, created_at, id"
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind(q), materialID); err != nil {
		return nil, errors.Wrap(err, "querying nodes")
	}
	nodes := make([]material.Node, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, repo.unboilNode(row))
	}
	return nodes, nil
}

func (repo materialRepository) UpdateNode(ctx context.Context, n material.Node, exec ...core.DBExecutor) (material.Node, error) {
	ex := getExec(repo.exec, exec)
	row := repo.boilNode(n)

	q := `UPDATE material_node SET
		parent_id = :parent_id, title = :title, description = :description, sort_order = :sort_order,
		last_updated_by_id = :last_updated_by_id, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, ex, q, row)
	if err != nil {
		return material.Node{}, repo.trapNodeErr(err, "updating node")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return material.Node{}, material.ErrNodeNotFound
	}
	return repo.unboilNode(row), nil
}

// DeleteNodes deletes the nodes with the given IDs. Children left behind are removed by the
// parent_id foreign key cascade.
func (repo materialRepository) DeleteNodes(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ex := getExec(repo.exec, exec)

	q, args, err := sqlx.In("DELETE FROM material_node WHERE id IN (?)", ids)
	if err != nil {
		return 0, errors.Wrap(err, "deleting nodes")
	}
	res, err := ex.ExecContext(ctx, ex.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting nodes")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting nodes")
}
