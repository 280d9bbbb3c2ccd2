package material_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/manabi/core"
	"github.com/trezcool/manabi/core/material"
	"github.com/trezcool/manabi/core/user"
	"github.com/trezcool/manabi/storage/database/sqlxrepos"
	"github.com/trezcool/manabi/tests"
)

type fixture struct {
	db      *sqlx.DB
	svc     *material.Service
	repo    material.Repository
	usrRepo user.Repository
}

func setup(t *testing.T) fixture {
	db := testutil.PrepareDB(t)
	repo := sqlxrepos.NewMaterialRepository(db)
	return fixture{
		db:      db,
		svc:     material.NewService(db, repo, testutil.NewLogger()),
		repo:    repo,
		usrRepo: sqlxrepos.NewUserRepository(db),
	}
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func nodeTitles(nodes []material.Node) []string {
	titles := make([]string, 0, len(nodes))
	for _, n := range nodes {
		titles = append(titles, n.Title)
	}
	return titles
}

func TestService_Duplicate_algebraBasics(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	user42 := testutil.CreateUser(t, f.usrRepo, "user42", "user42@test.cd", "", nil, true)
	tmpl := testutil.CreateMaterial(t, f.repo, "Algebra Basics", nil)
	ch1 := testutil.CreateNode(t, f.repo, tmpl, "", "Chapter 1", 0)
	testutil.CreateNode(t, f.repo, tmpl, ch1.ID, "Section 1.1", 0)

	dup, err := f.svc.Duplicate(ctx, tmpl, user42, material.DuplicateOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, tmpl.ID, dup.ID)
	assert.Equal(t, "Algebra Basics", dup.Title)
	assert.Equal(t, user42.ID, dup.OwnerID)
	assert.False(t, dup.IsTemplate)
	assert.Equal(t, tmpl.ID, dup.ParentTemplateID)

	nodes, err := f.svc.Nodes(ctx, dup)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.ElementsMatch(t, []string{"Chapter 1", "Section 1.1"}, nodeTitles(nodes))
	for _, n := range nodes {
		assert.Empty(t, n.ParentID, "copies are flattened")
		assert.Equal(t, user42.ID, n.OwnerID)
		assert.Equal(t, dup.ID, n.MaterialID)
	}
	assert.NotEqual(t, nodes[0].Order, nodes[1].Order)

	// the template is left untouched
	tmplNodes, err := f.svc.Nodes(ctx, tmpl)
	require.NoError(t, err)
	require.Len(t, tmplNodes, 2)
	for _, n := range tmplNodes {
		if n.Title == "Section 1.1" {
			assert.Equal(t, ch1.ID, n.ParentID)
		}
	}
	got, err := f.svc.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.True(t, got.IsTemplate)
	assert.Empty(t, got.OwnerID)
}

func TestService_Duplicate_preserveHierarchy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	owner := testutil.CreateUser(t, f.usrRepo, "owner", "owner@test.cd", "", nil, true)
	tmpl := testutil.CreateMaterial(t, f.repo, "Go", nil)
	ch1 := testutil.CreateNode(t, f.repo, tmpl, "", "Chapter 1", 0)
	ch2 := testutil.CreateNode(t, f.repo, tmpl, "", "Chapter 2", 1)
	testutil.CreateNode(t, f.repo, tmpl, ch1.ID, "Section 1.1", 0)
	testutil.CreateNode(t, f.repo, tmpl, ch1.ID, "Section 1.2", 1)
	testutil.CreateNode(t, f.repo, tmpl, ch2.ID, "Section 2.1", 0)

	dup, err := f.svc.Duplicate(ctx, tmpl, owner, material.DuplicateOptions{PreserveHierarchy: true})
	require.NoError(t, err)

	detail, err := f.svc.Detail(ctx, dup)
	require.NoError(t, err)
	require.Len(t, detail.Nodes, 2)

	assert.Equal(t, "Chapter 1", detail.Nodes[0].Title)
	assert.Equal(t, "Chapter 2", detail.Nodes[1].Title)
	require.Len(t, detail.Nodes[0].Children, 2)
	assert.Equal(t, "Section 1.1", detail.Nodes[0].Children[0].Title)
	assert.Equal(t, "Section 1.2", detail.Nodes[0].Children[1].Title)
	require.Len(t, detail.Nodes[1].Children, 1)
	assert.Equal(t, "Section 2.1", detail.Nodes[1].Children[0].Title)

	// parents are remapped to the copies
	assert.NotEqual(t, ch1.ID, detail.Nodes[0].Children[0].ParentID)
	assert.Equal(t, detail.Nodes[0].ID, detail.Nodes[0].Children[0].ParentID)
}

func TestService_Duplicate_flattenedOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	owner := testutil.CreateUser(t, f.usrRepo, "owner", "owner@test.cd", "", nil, true)
	tmpl := testutil.CreateMaterial(t, f.repo, "Go", nil)
	ch1 := testutil.CreateNode(t, f.repo, tmpl, "", "Chapter 1", 0)
	testutil.CreateNode(t, f.repo, tmpl, "", "Chapter 2", 1)
	testutil.CreateNode(t, f.repo, tmpl, ch1.ID, "Section 1.1", 0)

	dup, err := f.svc.Duplicate(ctx, tmpl, owner, material.DuplicateOptions{})
	require.NoError(t, err)

	nodes, err := f.svc.Nodes(ctx, dup)
	require.NoError(t, err)
	// template pre-order
	assert.Equal(t, []string{"Chapter 1", "Section 1.1", "Chapter 2"}, nodeTitles(nodes))
	for i, n := range nodes {
		assert.Equal(t, i, n.Order)
	}
}

func TestService_DuplicateTemplate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	owner := testutil.CreateUser(t, f.usrRepo, "owner", "owner@test.cd", "", nil, true)
	tmpl := testutil.CreateMaterial(t, f.repo, "Template", nil)
	owned := testutil.CreateMaterial(t, f.repo, "Owned", &owner)

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "template", id: tmpl.ID},
		{name: "not a template", id: owned.ID, wantErr: material.ErrNotFound},
		{name: "unknown id", id: "0b7e5c4e-8f2a-4a3f-9c55-1f7f6c2b1e00", wantErr: material.ErrNotFound},
		{name: "malformed id", id: "lol", wantErr: material.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dup, err := f.svc.DuplicateTemplate(ctx, tt.id, owner, material.DuplicateOptions{})
			if errors.Cause(err) != tt.wantErr {
				t.Errorf("DuplicateTemplate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				assert.Equal(t, tmpl.ID, dup.ParentTemplateID)
			}
		})
	}
}

func TestService_CreateNode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	owner := testutil.CreateUser(t, f.usrRepo, "owner", "owner@test.cd", "", nil, true)
	m := testutil.CreateMaterial(t, f.repo, "Mine", &owner)
	other := testutil.CreateMaterial(t, f.repo, "Other", &owner)
	parent := testutil.CreateNode(t, f.repo, m, "", "Chapter 1", 0)
	testutil.CreateNode(t, f.repo, m, parent.ID, "Section 1.1", 0)
	foreign := testutil.CreateNode(t, f.repo, other, "", "Elsewhere", 0)

	tests := []struct {
		name      string
		nn        material.NewNode
		wantErr   error
		wantOrder int
	}{
		{name: "top-level, order omitted", nn: material.NewNode{Title: "Chapter 2"}, wantOrder: 1},
		{name: "child, order omitted", nn: material.NewNode{Title: "Section 1.2", ParentID: parent.ID}, wantOrder: 1},
		{name: "child, explicit order", nn: material.NewNode{Title: "Section 1.9", ParentID: parent.ID, Order: intPtr(9)}, wantOrder: 9},
		{
			name:    "duplicate sibling order",
			nn:      material.NewNode{Title: "Section 1.1 bis", ParentID: parent.ID, Order: intPtr(0)},
			wantErr: material.ErrDuplicateOrder,
		},
		{
			name:    "parent from other material",
			nn:      material.NewNode{Title: "Stray", ParentID: foreign.ID},
			wantErr: material.ErrForeignParent,
		},
		{
			name:    "unknown parent",
			nn:      material.NewNode{Title: "Orphan", ParentID: "0b7e5c4e-8f2a-4a3f-9c55-1f7f6c2b1e00"},
			wantErr: material.ErrNodeNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := f.svc.CreateNode(ctx, m, tt.nn, owner)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "CreateNode() error = %v, wantErr %v", err, tt.wantErr)
				var verr *core.ValidationError
				assert.True(t, errors.As(err, &verr), "want a validation error")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOrder, n.Order)
			assert.Equal(t, m.ID, n.MaterialID)
			assert.Equal(t, owner.ID, n.OwnerID)
			assert.Equal(t, tt.nn.ParentID, n.ParentID)
		})
	}
}

func TestService_UpdateNode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	owner := testutil.CreateUser(t, f.usrRepo, "owner", "owner@test.cd", "", nil, true)
	m := testutil.CreateMaterial(t, f.repo, "Mine", &owner)
	a := testutil.CreateNode(t, f.repo, m, "", "A", 0)
	b := testutil.CreateNode(t, f.repo, m, a.ID, "B", 0)
	c := testutil.CreateNode(t, f.repo, m, b.ID, "C", 0)
	x := testutil.CreateNode(t, f.repo, m, "", "X", 1)
	y := testutil.CreateNode(t, f.repo, m, x.ID, "Y", 0)

	tests := []struct {
		name    string
		node    material.Node
		un      material.UpdateNode
		wantErr error
	}{
		{name: "own parent", node: b, un: material.UpdateNode{ParentID: strPtr(b.ID)}, wantErr: material.ErrSelfParent},
		{name: "X under Y (Y under X)", node: x, un: material.UpdateNode{ParentID: strPtr(y.ID)}, wantErr: material.ErrCycle},
		{name: "A under C (A -> B -> C)", node: a, un: material.UpdateNode{ParentID: strPtr(c.ID)}, wantErr: material.ErrCycle},
		{name: "order taken by sibling", node: x, un: material.UpdateNode{Order: intPtr(0)}, wantErr: material.ErrDuplicateOrder},
		{name: "rename", node: c, un: material.UpdateNode{Title: strPtr("C!")}},
		{name: "move to top level", node: y, un: material.UpdateNode{ParentID: strPtr(""), Order: intPtr(2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := f.svc.UpdateNode(ctx, tt.node, tt.un, owner)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "UpdateNode() error = %v, wantErr %v", err, tt.wantErr)
				assert.True(t, material.IsInvalidHierarchy(err) || tt.wantErr == material.ErrDuplicateOrder)

				// nothing was written
				stored, err := f.svc.GetNode(ctx, tt.node.ID)
				require.NoError(t, err)
				assert.Equal(t, tt.node.ParentID, stored.ParentID)
				assert.Equal(t, tt.node.Order, stored.Order)
				return
			}
			require.NoError(t, err)

			stored, err := f.svc.GetNode(ctx, tt.node.ID)
			require.NoError(t, err)
			assert.Equal(t, n.Title, stored.Title)
			assert.Equal(t, n.ParentID, stored.ParentID)
			assert.Equal(t, n.Order, stored.Order)
			assert.Equal(t, owner.ID, stored.LastUpdatedByID)
		})
	}
}

func TestService_ValidateNode_foreignParent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	owner := testutil.CreateUser(t, f.usrRepo, "owner", "owner@test.cd", "", nil, true)
	m1 := testutil.CreateMaterial(t, f.repo, "One", &owner)
	m2 := testutil.CreateMaterial(t, f.repo, "Two", &owner)
	n1 := testutil.CreateNode(t, f.repo, m1, "", "N1", 0)
	n2 := testutil.CreateNode(t, f.repo, m2, "", "N2", 0)

	n1.ParentID = n2.ID
	err := f.svc.ValidateNode(ctx, n1)
	assert.True(t, errors.Is(err, material.ErrForeignParent), "ValidateNode() error = %v", err)
}

func TestRepository_duplicateOrderBackstop(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	owner := testutil.CreateUser(t, f.usrRepo, "owner", "owner@test.cd", "", nil, true)
	m := testutil.CreateMaterial(t, f.repo, "Mine", &owner)
	parent := testutil.CreateNode(t, f.repo, m, "", "Chapter 1", 0)
	testutil.CreateNode(t, f.repo, m, parent.ID, "Section 1.1", 0)

	now := core.Now()
	tests := []struct {
		name     string
		parentID string
		order    int
		wantErr  error
	}{
		{name: "sibling with same order", parentID: parent.ID, order: 0, wantErr: material.ErrDuplicateOrder},
		{name: "top-level with same order", parentID: "", order: 0, wantErr: material.ErrDuplicateOrder},
		{name: "sibling with other order", parentID: parent.ID, order: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.repo.CreateNode(ctx, material.Node{
				MaterialID: m.ID, ParentID: tt.parentID, Title: "dup", Order: tt.order, CreatedAt: now, UpdatedAt: now,
			})
			if errors.Cause(err) != tt.wantErr {
				t.Errorf("CreateNode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_DescendantIDs_DeleteNode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	owner := testutil.CreateUser(t, f.usrRepo, "owner", "owner@test.cd", "", nil, true)
	m := testutil.CreateMaterial(t, f.repo, "Mine", &owner)
	a := testutil.CreateNode(t, f.repo, m, "", "A", 0)
	b := testutil.CreateNode(t, f.repo, m, a.ID, "B", 0)
	c := testutil.CreateNode(t, f.repo, m, b.ID, "C", 0)
	d := testutil.CreateNode(t, f.repo, m, a.ID, "D", 1)
	e := testutil.CreateNode(t, f.repo, m, "", "E", 1)

	ids, err := f.svc.DescendantIDs(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{b.ID: {}, c.ID: {}, d.ID: {}}, ids)

	ids, err = f.svc.DescendantIDs(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, ids)

	count, err := f.svc.DeleteNode(ctx, a, owner)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	nodes, err := f.svc.Nodes(ctx, m)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, e.ID, nodes[0].ID)
}

func TestService_visibility(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, f.usrRepo, "alice", "alice@test.cd", "", nil, true)
	bob := testutil.CreateUser(t, f.usrRepo, "bob", "bob@test.cd", "", nil, true)
	admin := testutil.CreateUser(t, f.usrRepo, "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	tmpl := testutil.CreateMaterial(t, f.repo, "Algebra Basics", nil)
	alices := testutil.CreateMaterial(t, f.repo, "Alice's notes", &alice)

	_, err := f.svc.Get(ctx, alices.ID, bob)
	assert.Equal(t, material.ErrNotFound, errors.Cause(err))
	_, err = f.svc.Get(ctx, alices.ID, alice)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, tmpl.ID, bob)
	assert.NoError(t, err)

	materials, err := f.svc.Query(ctx, bob, nil, nil)
	require.NoError(t, err)
	require.Len(t, materials, 1)
	assert.Equal(t, tmpl.ID, materials[0].ID)

	materials, err = f.svc.Query(ctx, alice, &material.QueryFilter{Search: "NOTES"}, nil)
	require.NoError(t, err)
	require.Len(t, materials, 1)
	assert.Equal(t, alices.ID, materials[0].ID)

	assert.True(t, f.svc.CanEdit(alices, alice))
	assert.False(t, f.svc.CanEdit(alices, bob))
	assert.False(t, f.svc.CanEdit(tmpl, alice))
	assert.True(t, f.svc.CanEdit(tmpl, admin))
}

func TestService_CreateTemplate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, f.usrRepo, "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	tmpl, err := f.svc.CreateTemplate(ctx, material.NewMaterial{Title: "Physics"}, admin)
	require.NoError(t, err)
	assert.True(t, tmpl.IsTemplate)
	assert.Empty(t, tmpl.OwnerID)
	assert.Equal(t, admin.ID, tmpl.LastUpdatedByID)

	m, err := f.svc.Update(ctx, tmpl, material.UpdateMaterial{Title: strPtr("Physics I")}, admin)
	require.NoError(t, err)
	got, err := f.svc.GetTemplate(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Physics I", got.Title)
}

// failingRepository fails the failAt-th call to CreateNode.
type failingRepository struct {
	material.Repository
	failAt int
	calls  int
}

var errStorage = errors.New("storage failure")

func (repo *failingRepository) CreateNode(ctx context.Context, n material.Node, exec ...core.DBExecutor) (material.Node, error) {
	repo.calls++
	if repo.calls == repo.failAt {
		return material.Node{}, errStorage
	}
	return repo.Repository.CreateNode(ctx, n, exec...)
}

func countRows(t *testing.T, db *sqlx.DB, table string) int {
	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM "+table))
	return count
}

func TestService_Duplicate_rollback(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	user42 := testutil.CreateUser(t, f.usrRepo, "user42", "user42@test.cd", "", nil, true)
	tmpl := testutil.CreateMaterial(t, f.repo, "Algebra Basics", nil)
	ch1 := testutil.CreateNode(t, f.repo, tmpl, "", "Chapter 1", 0)
	testutil.CreateNode(t, f.repo, tmpl, ch1.ID, "Section 1.1", 0)

	for _, opts := range []material.DuplicateOptions{{}, {PreserveHierarchy: true}} {
		svc := material.NewService(f.db, &failingRepository{Repository: f.repo, failAt: 2}, testutil.NewLogger())
		_, err := svc.Duplicate(ctx, tmpl, user42, opts)
		require.Error(t, err)
		assert.Equal(t, errStorage, errors.Cause(err))

		// only the template and its nodes remain
		assert.Equal(t, 1, countRows(t, f.db, "material"))
		assert.Equal(t, 2, countRows(t, f.db, "material_node"))
	}
}

// recordingRepository records the tree operations in call order.
type recordingRepository struct {
	material.Repository
	calls []string
}

func (repo *recordingRepository) LockMaterial(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.calls = append(repo.calls, "LockMaterial")
	return repo.Repository.LockMaterial(ctx, id, exec...)
}

func (repo *recordingRepository) QueryNodes(ctx context.Context, materialID string, exec ...core.DBExecutor) ([]material.Node, error) {
	repo.calls = append(repo.calls, "QueryNodes")
	return repo.Repository.QueryNodes(ctx, materialID, exec...)
}

func TestService_treeChangesLockMaterial(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	owner := testutil.CreateUser(t, f.usrRepo, "owner", "owner@test.cd", "", nil, true)
	m := testutil.CreateMaterial(t, f.repo, "Physics", &owner)
	ch1 := testutil.CreateNode(t, f.repo, m, "", "Chapter 1", 0)
	ch2 := testutil.CreateNode(t, f.repo, m, "", "Chapter 2", 1)

	tests := []struct {
		name string
		op   func(svc *material.Service) error
	}{
		{
			name: "create node",
			op: func(svc *material.Service) error {
				_, err := svc.CreateNode(ctx, m, material.NewNode{Title: "Chapter 3"}, owner)
				return err
			},
		},
		{
			name: "move node",
			op: func(svc *material.Service) error {
				_, err := svc.UpdateNode(ctx, ch2, material.UpdateNode{ParentID: strPtr(ch1.ID), Order: intPtr(0)}, owner)
				return err
			},
		},
		{
			name: "delete node",
			op: func(svc *material.Service) error {
				_, err := svc.DeleteNode(ctx, ch1, owner)
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &recordingRepository{Repository: f.repo}
			svc := material.NewService(f.db, repo, testutil.NewLogger())
			require.NoError(t, tt.op(svc))
			require.NotEmpty(t, repo.calls)
			assert.Equal(t, "LockMaterial", repo.calls[0])
			assert.Contains(t, repo.calls, "QueryNodes")
		})
	}

	t.Run("unknown material", func(t *testing.T) {
		ghost := material.Material{ID: uuid.New().String(), OwnerID: owner.ID}
		_, err := f.svc.CreateNode(ctx, ghost, material.NewNode{Title: "Chapter 1"}, owner)
		assert.Equal(t, material.ErrNotFound, errors.Cause(err))
	})
}
