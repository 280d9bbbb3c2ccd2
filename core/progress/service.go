package progress

import (
	"context"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/manabi/core"
	"github.com/trezcool/manabi/core/material"
	"github.com/trezcool/manabi/core/user"
)

var ErrInvalidStatus = errors.New("invalid progress status")

type (
	Repository interface {
		CreateProgress(ctx context.Context, p Progress, exec ...core.DBExecutor) (Progress, error)
		// QueryProgress returns the matching records, newest first.
		QueryProgress(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Progress, error)
		// LatestStatuses returns the status of the latest record of userID for each of nodeIDs that has one.
		LatestStatuses(ctx context.Context, userID string, nodeIDs []string, exec ...core.DBExecutor) (map[string]string, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (np *NewProgress) Validate(validate *validator.Validate) error {
	np.Status = core.CleanString(np.Status, true /* lower */)
	return validate.Struct(np)
}

// Record appends a progress record of usr on node, dated today.
func (svc *Service) Record(ctx context.Context, usr user.User, node material.Node, status string) (Progress, error) {
	if !IsValidStatus(status) {
		return Progress{}, core.NewFieldValidationError("status", ErrInvalidStatus)
	}
	now := core.Now()
	p := Progress{
		UserID:    usr.ID,
		NodeID:    node.ID,
		Status:    status,
		Date:      now.Truncate(24 * time.Hour),
		CreatedAt: now,
	}
	p, err := svc.repo.CreateProgress(ctx, p)
	return p, errors.Wrap(err, "creating progress")
}

func (svc *Service) QueryForUser(ctx context.Context, usr user.User, filter QueryFilter) ([]Progress, error) {
	filter.UserID = usr.ID
	return svc.repo.QueryProgress(ctx, filter)
}

// Summary computes the current status of usr on every node of materialID.
// nodes without any record count as not started.
func (svc *Service) Summary(ctx context.Context, usr user.User, materialID string, nodes []material.Node) (Summary, error) {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}

	latest, err := svc.repo.LatestStatuses(ctx, usr.ID, ids)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying latest statuses")
	}

	sum := Summary{
		MaterialID: materialID,
		Total:      len(ids),
		Counts:     make(map[string]int, len(AllStatuses)),
		Statuses:   make(map[string]string, len(ids)),
	}
	for _, s := range AllStatuses {
		sum.Counts[s] = 0
	}
	for _, id := range ids {
		status, ok := latest[id]
		if !ok {
			status = StatusNotStarted
		}
		sum.Statuses[id] = status
		sum.Counts[status]++
	}
	if sum.Total > 0 {
		pct := float64(sum.Counts[StatusDone]) * 100 / float64(sum.Total)
		sum.PercentDone = math.Round(pct*100) / 100
	}
	return sum, nil
}
