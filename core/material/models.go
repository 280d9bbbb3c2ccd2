package material

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/manabi/core"
)

// Material is a top-level learning unit (book, course, tutorial...).
// A Material without owner is a shared template.
type Material struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	OwnerID          string    `json:"owner_id,omitempty"`
	IsTemplate       bool      `json:"is_template"`
	ParentTemplateID string    `json:"parent_template_id,omitempty"`
	LastUpdatedByID  string    `json:"last_updated_by_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"` // UTC
	UpdatedAt        time.Time `json:"updated_at"` // UTC
}

// Check enforces the template/owner invariant.
func (m Material) Check() error {
	if m.IsTemplate && m.OwnerID != "" {
		return ErrOwnedTemplate
	}
	if !m.IsTemplate && m.OwnerID == "" {
		return ErrMissingOwner
	}
	return nil
}

// Node is a chapter, section... of a Material. Nodes of a Material form a forest.
type Node struct {
	ID              string    `json:"id"`
	MaterialID      string    `json:"material_id"`
	ParentID        string    `json:"parent_id,omitempty"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Order           int       `json:"order"`
	OwnerID         string    `json:"owner_id,omitempty"`
	LastUpdatedByID string    `json:"last_updated_by_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

// NodeTree is a Node along with its nested children, ordered by Node.Order.
type NodeTree struct {
	Node
	Children []*NodeTree `json:"children"`
}

// Detail is a Material along with its node forest.
type Detail struct {
	Material
	Nodes []*NodeTree `json:"nodes"`
}

// NewMaterial contains information needed to create a new Material.
type NewMaterial struct {
	Title       string `json:"title" validate:"required,notblank,max=255"`
	Description string `json:"description"`
}

func (nm *NewMaterial) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	nm.Description = core.CleanString(nm.Description)
	return validate.Struct(nm)
}

// UpdateMaterial defines what information may be provided to modify an existing Material.
type UpdateMaterial struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=255"`
	Description *string `json:"description"`
}

func (um *UpdateMaterial) Validate(validate *validator.Validate) error {
	if um.Title != nil {
		title := core.CleanString(*um.Title)
		um.Title = &title
	}
	if um.Description != nil {
		desc := core.CleanString(*um.Description)
		um.Description = &desc
	}
	return validate.Struct(um)
}

// NewNode contains information needed to create a new Node.
// when Order is omitted, the node is appended after its last sibling.
type NewNode struct {
	Title       string `json:"title" validate:"required,notblank,max=255"`
	Description string `json:"description"`
	ParentID    string `json:"parent_id"`
	Order       *int   `json:"order" validate:"omitempty,min=0"`
}

func (nn *NewNode) Validate(validate *validator.Validate) error {
	nn.Title = core.CleanString(nn.Title)
	nn.Description = core.CleanString(nn.Description)
	nn.ParentID = core.CleanString(nn.ParentID)
	return validate.Struct(nn)
}

// UpdateNode defines what information may be provided to modify an existing Node.
// ParentID set to "" moves the node to the top level.
type UpdateNode struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=255"`
	Description *string `json:"description"`
	ParentID    *string `json:"parent_id"`
	Order       *int    `json:"order" validate:"omitempty,min=0"`
}

func (un *UpdateNode) Validate(validate *validator.Validate) error {
	if un.Title != nil {
		title := core.CleanString(*un.Title)
		un.Title = &title
	}
	if un.Description != nil {
		desc := core.CleanString(*un.Description)
		un.Description = &desc
	}
	if un.ParentID != nil {
		pid := core.CleanString(*un.ParentID)
		un.ParentID = &pid
	}
	return validate.Struct(un)
}

// DuplicateOptions tunes Service.Duplicate.
type DuplicateOptions struct {
	// PreserveHierarchy keeps parents and orders of the template nodes.
	// by default the copies are flattened: every copy is a top-level node.
	PreserveHierarchy bool `query:"preserve_hierarchy"`
}

type QueryFilter struct {
	Search     string `query:"search"`
	IsTemplate *bool  `query:"-"`

	// VisibleTo restricts the results to templates and materials owned by this user ID.
	VisibleTo string `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single Material by ID; other fields narrow the match.
type GetFilter struct {
	ID         string
	IsTemplate *bool
	VisibleTo  string
}
