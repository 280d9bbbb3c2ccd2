package progress_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/manabi/core"
	"github.com/trezcool/manabi/core/material"
	"github.com/trezcool/manabi/core/progress"
	"github.com/trezcool/manabi/storage/database/sqlxrepos"
	"github.com/trezcool/manabi/tests"
)

func TestService_Record(t *testing.T) {
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	matRepo := sqlxrepos.NewMaterialRepository(db)
	svc := progress.NewService(sqlxrepos.NewProgressRepository(db))
	ctx := context.Background()

	usr := testutil.CreateUser(t, usrRepo, "awe", "awe@test.cd", "", nil, true)
	m := testutil.CreateMaterial(t, matRepo, "Mine", &usr)
	n := testutil.CreateNode(t, matRepo, m, "", "Chapter 1", 0)

	tests := []struct {
		name    string
		status  string
		wantErr error
	}{
		{name: "in progress", status: progress.StatusInProgress},
		{name: "done", status: progress.StatusDone},
		{name: "invalid status", status: "lol", wantErr: progress.ErrInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := svc.Record(ctx, usr, n, tt.status)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "Record() error = %v, wantErr %v", err, tt.wantErr)
				var verr *core.ValidationError
				assert.True(t, errors.As(err, &verr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, usr.ID, p.UserID)
			assert.Equal(t, n.ID, p.NodeID)
			assert.Equal(t, p.Date, p.Date.Truncate(24*time.Hour))
		})
	}

	records, err := svc.QueryForUser(ctx, usr, progress.QueryFilter{MaterialID: m.ID})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, progress.StatusDone, records[0].Status, "newest first")
}

func TestService_Summary(t *testing.T) {
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	matRepo := sqlxrepos.NewMaterialRepository(db)
	svc := progress.NewService(sqlxrepos.NewProgressRepository(db))
	ctx := context.Background()

	usr := testutil.CreateUser(t, usrRepo, "awe", "awe@test.cd", "", nil, true)
	other := testutil.CreateUser(t, usrRepo, "other", "other@test.cd", "", nil, true)
	m := testutil.CreateMaterial(t, matRepo, "Mine", &usr)
	n1 := testutil.CreateNode(t, matRepo, m, "", "Chapter 1", 0)
	n2 := testutil.CreateNode(t, matRepo, m, "", "Chapter 2", 1)
	n3 := testutil.CreateNode(t, matRepo, m, "", "Chapter 3", 2)

	for _, rec := range []struct {
		node   material.Node
		status string
	}{
		{n1, progress.StatusInProgress},
		{n1, progress.StatusDone},
		{n2, progress.StatusInProgress},
	} {
		_, err := svc.Record(ctx, usr, rec.node, rec.status)
		require.NoError(t, err)
	}
	_, err := svc.Record(ctx, other, n3, progress.StatusDone)
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, usr, m.ID, []material.Node{n1, n2, n3})
	require.NoError(t, err)

	assert.Equal(t, m.ID, sum.MaterialID)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, map[string]int{
		progress.StatusNotStarted: 1,
		progress.StatusInProgress: 1,
		progress.StatusDone:       1,
	}, sum.Counts)
	assert.Equal(t, map[string]string{
		n1.ID: progress.StatusDone,
		n2.ID: progress.StatusInProgress,
		n3.ID: progress.StatusNotStarted,
	}, sum.Statuses)
	assert.Equal(t, 33.33, sum.PercentDone)

	empty, err := svc.Summary(ctx, usr, m.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.PercentDone)
}
