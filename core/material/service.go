package material

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/manabi/core"
	"github.com/trezcool/manabi/core/user"
)

type (
	Repository interface {
		CreateMaterial(ctx context.Context, m Material, exec ...core.DBExecutor) (Material, error)
		GetMaterial(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Material, error)
		// QueryMaterials applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Material.Title or Material.Description.
		QueryMaterials(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Material, error)
		UpdateMaterial(ctx context.Context, m Material, exec ...core.DBExecutor) (Material, error)
		// LockMaterial serialises the changes to the node tree of a material until the end of
		// the transaction held by exec. ErrNotFound is returned for an unknown material.
		LockMaterial(ctx context.Context, id string, exec ...core.DBExecutor) error

		// CreateNode and UpdateNode return ErrDuplicateOrder when the storage uniqueness
		// constraint on sibling orders is violated.
		CreateNode(ctx context.Context, n Node, exec ...core.DBExecutor) (Node, error)
		GetNode(ctx context.Context, id string, exec ...core.DBExecutor) (Node, error)
		QueryNodes(ctx context.Context, materialID string, exec ...core.DBExecutor) ([]Node, error)
		UpdateNode(ctx context.Context, n Node, exec ...core.DBExecutor) (Node, error)
		DeleteNodes(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	// Service is the material tree manager: it keeps material hierarchies consistent
	// and duplicates templates into user-owned copies.
	Service struct {
		db     core.DB
		repo   Repository
		logger core.Logger
	}
)

func NewService(db core.DB, repo Repository, logger core.Logger) *Service {
	return &Service{db: db, repo: repo, logger: logger}
}

// CanEdit reports whether usr may modify m and its nodes: owners edit their materials,
// admins edit templates.
func (svc *Service) CanEdit(m Material, usr user.User) bool {
	if m.IsTemplate {
		return usr.IsAdmin()
	}
	return m.OwnerID != "" && m.OwnerID == usr.ID
}

// Create creates a Material owned by owner.
func (svc *Service) Create(ctx context.Context, nm NewMaterial, owner user.User) (Material, error) {
	now := core.Now()
	return svc.create(ctx, Material{
		Title:           nm.Title,
		Description:     nm.Description,
		OwnerID:         owner.ID,
		LastUpdatedByID: owner.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// CreateTemplate creates a shared template Material (without owner).
// exec, when given, is the transaction the template is written in.
func (svc *Service) CreateTemplate(ctx context.Context, nm NewMaterial, by user.User, exec ...core.DBExecutor) (Material, error) {
	now := core.Now()
	return svc.create(ctx, Material{
		Title:           nm.Title,
		Description:     nm.Description,
		IsTemplate:      true,
		LastUpdatedByID: by.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, exec...)
}

func (svc *Service) create(ctx context.Context, m Material, exec ...core.DBExecutor) (Material, error) {
	if err := m.Check(); err != nil {
		return Material{}, err
	}
	m, err := svc.repo.CreateMaterial(ctx, m, exec...)
	return m, errors.Wrap(err, "creating material")
}

// Get returns the Material if it is a template or owned by viewer.
func (svc *Service) Get(ctx context.Context, id string, viewer user.User) (Material, error) {
	return svc.repo.GetMaterial(ctx, GetFilter{ID: id, VisibleTo: viewer.ID})
}

// GetTemplate returns the template Material with the given ID.
func (svc *Service) GetTemplate(ctx context.Context, id string) (Material, error) {
	isTemplate := true
	return svc.repo.GetMaterial(ctx, GetFilter{ID: id, IsTemplate: &isTemplate})
}

// Query returns the templates and the materials owned by viewer.
func (svc *Service) Query(ctx context.Context, viewer user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Material, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.VisibleTo = viewer.ID
	return svc.repo.QueryMaterials(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, m Material, um UpdateMaterial, by user.User) (Material, error) {
	if um.Title != nil {
		m.Title = *um.Title
	}
	if um.Description != nil {
		m.Description = *um.Description
	}
	m.LastUpdatedByID = by.ID
	m.UpdatedAt = core.Now()

	m, err := svc.repo.UpdateMaterial(ctx, m)
	return m, errors.Wrap(err, "updating material")
}

// Nodes returns all the nodes of m, ordered by Node.Order.
func (svc *Service) Nodes(ctx context.Context, m Material) ([]Node, error) {
	nodes, err := svc.repo.QueryNodes(ctx, m.ID)
	return nodes, errors.Wrap(err, "querying nodes")
}

// Detail returns m with its nested node forest.
func (svc *Service) Detail(ctx context.Context, m Material) (Detail, error) {
	nodes, err := svc.Nodes(ctx, m)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Material: m, Nodes: NewTree(nodes).Nest()}, nil
}

func (svc *Service) GetNode(ctx context.Context, id string) (Node, error) {
	return svc.repo.GetNode(ctx, id)
}

// ValidateNode checks n against the current persisted tree of its material.
// hierarchy and order violations are returned as core.ValidationError.
func (svc *Service) ValidateNode(ctx context.Context, n Node) error {
	return svc.validateNode(ctx, n, nil)
}

func (svc *Service) validateNode(ctx context.Context, n Node, tree *Tree, exec ...core.DBExecutor) error {
	var parent *Node
	if n.ParentID != "" && n.ParentID != n.ID {
		p, err := svc.repo.GetNode(ctx, n.ParentID, exec...)
		if err != nil {
			if errors.Cause(err) == ErrNodeNotFound {
				return core.NewFieldValidationError("parent_id", ErrNodeNotFound)
			}
			return errors.Wrap(err, "finding parent node")
		}
		parent = &p
	}

	if tree == nil {
		nodes, err := svc.repo.QueryNodes(ctx, n.MaterialID, exec...)
		if err != nil {
			return errors.Wrap(err, "querying nodes")
		}
		tree = NewTree(nodes)
	}
	return asValidationError(tree.ValidateNode(n, parent))
}

// inTx runs fn in the transaction held by exec if any, in a new one otherwise.
func (svc *Service) inTx(ctx context.Context, exec []core.DBExecutor, fn func(exec core.DBExecutor) error) error {
	if len(exec) > 0 && exec[0] != nil {
		return fn(exec[0])
	}
	return core.RunInTx(ctx, svc.db, fn)
}

// lockTree must run first in every transaction validating then writing the nodes of a
// material: concurrent moves would otherwise each pass validation and commit a cycle.
func (svc *Service) lockTree(ctx context.Context, materialID string, exec core.DBExecutor) error {
	return errors.Wrap(svc.repo.LockMaterial(ctx, materialID, exec), "locking material")
}

// CreateNode adds a node to m. The node belongs to the owner of m.
// exec, when given, is the transaction the node is written in.
func (svc *Service) CreateNode(ctx context.Context, m Material, nn NewNode, by user.User, exec ...core.DBExecutor) (Node, error) {
	now := core.Now()
	n := Node{
		MaterialID:      m.ID,
		ParentID:        nn.ParentID,
		Title:           nn.Title,
		Description:     nn.Description,
		OwnerID:         m.OwnerID,
		LastUpdatedByID: by.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := svc.inTx(ctx, exec, func(exec core.DBExecutor) error {
		if err := svc.lockTree(ctx, m.ID, exec); err != nil {
			return err
		}
		nodes, err := svc.repo.QueryNodes(ctx, m.ID, exec)
		if err != nil {
			return errors.Wrap(err, "querying nodes")
		}
		tree := NewTree(nodes)
		if nn.Order != nil {
			n.Order = *nn.Order
		} else {
			n.Order = tree.NextOrder(n.ParentID)
		}

		if err = svc.validateNode(ctx, n, tree, exec); err != nil {
			return err
		}
		n, err = svc.repo.CreateNode(ctx, n, exec)
		return asValidationError(err)
	})
	if err != nil {
		return Node{}, errors.Wrap(err, "creating node")
	}
	return n, nil
}

// UpdateNode modifies n; moving or reordering is validated before any write.
func (svc *Service) UpdateNode(ctx context.Context, n Node, un UpdateNode, by user.User) (Node, error) {
	if un.Title != nil {
		n.Title = *un.Title
	}
	if un.Description != nil {
		n.Description = *un.Description
	}
	if un.ParentID != nil {
		n.ParentID = *un.ParentID
	}
	if un.Order != nil {
		n.Order = *un.Order
	}
	n.LastUpdatedByID = by.ID
	n.UpdatedAt = core.Now()

	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		if err := svc.lockTree(ctx, n.MaterialID, exec); err != nil {
			return err
		}
		if err := svc.validateNode(ctx, n, nil, exec); err != nil {
			return err
		}
		var err error
		n, err = svc.repo.UpdateNode(ctx, n, exec)
		return asValidationError(err)
	})
	if err != nil {
		return Node{}, errors.Wrap(err, "updating node")
	}
	return n, nil
}

// DescendantIDs returns the IDs of every node below n.
func (svc *Service) DescendantIDs(ctx context.Context, n Node) (map[string]struct{}, error) {
	nodes, err := svc.repo.QueryNodes(ctx, n.MaterialID)
	if err != nil {
		return nil, errors.Wrap(err, "querying nodes")
	}
	return NewTree(nodes).DescendantIDs(n.ID), nil
}

// DeleteNode deletes n along with its descendants and returns the number of deleted nodes.
func (svc *Service) DeleteNode(ctx context.Context, n Node, by user.User) (int, error) {
	var count int
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		if err := svc.lockTree(ctx, n.MaterialID, exec); err != nil {
			return err
		}
		nodes, err := svc.repo.QueryNodes(ctx, n.MaterialID, exec)
		if err != nil {
			return errors.Wrap(err, "querying nodes")
		}
		descendants := NewTree(nodes).DescendantIDs(n.ID)
		ids := make([]string, 0, len(descendants)+1)
		ids = append(ids, n.ID)
		for id := range descendants {
			ids = append(ids, id)
		}
		if _, err = svc.repo.DeleteNodes(ctx, ids, exec); err != nil {
			return errors.Wrap(err, "deleting nodes")
		}
		count = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}

	svc.logger.Info(fmt.Sprintf("node %s deleted with %d descendant(s) by user %s", n.ID, count-1, by.ID))
	return count, nil
}

// DuplicateTemplate duplicates the template with the given ID for owner.
// ErrNotFound is returned if templateID does not resolve to a template.
func (svc *Service) DuplicateTemplate(ctx context.Context, templateID string, owner user.User, opts DuplicateOptions) (Material, error) {
	tmpl, err := svc.GetTemplate(ctx, templateID)
	if err != nil {
		return Material{}, err
	}
	return svc.Duplicate(ctx, tmpl, owner, opts)
}

// Duplicate copies the template tmpl, with all its nodes, into a new Material owned by owner.
// By default the copied nodes are flattened: every copy is a top-level node, numbered in
// the template's pre-order. opts.PreserveHierarchy keeps parents and orders instead.
// Everything is written in a single transaction; tmpl is never modified.
func (svc *Service) Duplicate(ctx context.Context, tmpl Material, owner user.User, opts DuplicateOptions) (Material, error) {
	now := core.Now()
	dup := Material{
		Title:            tmpl.Title,
		Description:      tmpl.Description,
		OwnerID:          owner.ID,
		IsTemplate:       false,
		ParentTemplateID: tmpl.ID,
		LastUpdatedByID:  owner.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var nodeCount int
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		nodes, err := svc.repo.QueryNodes(ctx, tmpl.ID, exec)
		if err != nil {
			return errors.Wrap(err, "querying template nodes")
		}
		if dup, err = svc.create(ctx, dup, exec); err != nil {
			return err
		}

		tree := NewTree(nodes)
		newIDs := make(map[string]string, tree.Len()) // {templateNodeID: copyID}
		nextTop := tree.NextOrder("")
		for i, n := range tree.PreOrder() {
			cp := Node{
				MaterialID:      dup.ID,
				Title:           n.Title,
				Description:     n.Description,
				Order:           i,
				OwnerID:         owner.ID,
				LastUpdatedByID: owner.ID,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if opts.PreserveHierarchy {
				cp.Order = n.Order
				if n.ParentID != "" {
					if parentID, ok := newIDs[n.ParentID]; ok {
						cp.ParentID = parentID
					} else {
						// broken chain in the template: keep the copy at the top level
						cp.Order = nextTop
						nextTop++
					}
				}
			}

			created, err := svc.repo.CreateNode(ctx, cp, exec)
			if err != nil {
				return errors.Wrapf(err, "copying node %s", n.ID)
			}
			newIDs[n.ID] = created.ID
		}
		nodeCount = len(newIDs)
		return nil
	})
	if err != nil {
		return Material{}, errors.Wrap(err, "duplicating material")
	}

	svc.logger.Info(fmt.Sprintf(
		"material %s duplicated from template %s for user %s (%d nodes)", dup.ID, tmpl.ID, owner.ID, nodeCount))
	return dup, nil
}

// asValidationError turns tree violations into field errors; other errors pass through.
func asValidationError(err error) error {
	switch {
	case err == nil:
		return nil
	case IsInvalidHierarchy(err):
		return core.NewFieldValidationError("parent_id", errors.Cause(err))
	case errors.Cause(err) == ErrDuplicateOrder:
		return core.NewFieldValidationError("order", ErrDuplicateOrder)
	case errors.Cause(err) == ErrNodeNotFound:
		return core.NewFieldValidationError("parent_id", ErrNodeNotFound)
	}
	return err
}
