package material

import "github.com/pkg/errors"

// HierarchyError is returned when a node's parent would break the material tree.
type HierarchyError struct {
	reason string
}

func (err *HierarchyError) Error() string { return err.reason }

var (
	ErrNotFound       = errors.New("material not found")
	ErrNodeNotFound   = errors.New("material node not found")
	ErrDuplicateOrder = errors.New("a sibling node with this order already exists")
	ErrOwnedTemplate  = errors.New("a template material cannot have an owner")
	ErrMissingOwner   = errors.New("a material must have an owner")

	ErrSelfParent    = &HierarchyError{"a node cannot be its own parent"}
	ErrForeignParent = &HierarchyError{"parent must belong to the same material"}
	ErrCycle         = &HierarchyError{"cycle detected"}
)

// IsInvalidHierarchy reports whether err (or any error it wraps) is a HierarchyError.
func IsInvalidHierarchy(err error) bool {
	var herr *HierarchyError
	return errors.As(err, &herr)
}
