package rbac

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_EvaluateBulk(t *testing.T) {
	svc := setupTestService(t)
	f := seedProject(t, svc)
	other := uuid.New()
	ctx := context.Background()

	checks := []BulkCheck{
		{ProjectID: f.projectID, Method: "GET", Resource: ResourceTask},
		{ProjectID: f.projectID, Method: "DELETE", Resource: ResourceTask},
		{ProjectID: f.projectID, Method: "HEAD", Resource: ResourceTask},
		{ProjectID: other, Method: "GET", Resource: ResourceTask},
		{ProjectID: uuid.Nil, Method: "GET", Resource: ResourceTask},
	}

	results, err := svc.Evaluator.EvaluateBulk(ctx, f.user, checks)
	require.NoError(t, err)
	require.Len(t, results, len(checks))

	for i, r := range results {
		assert.Equal(t, checks[i], r.BulkCheck, "results keep request order")
	}
	assert.True(t, results[0].Allowed)
	assert.False(t, results[1].Allowed)
	assert.Empty(t, results[1].Reason)
	assert.False(t, results[2].Allowed)
	assert.False(t, results[3].Allowed)
	assert.ErrorIs(t, results[3].Err, ErrNotAMember)
	assert.Equal(t, "User is not part of project.", results[3].Reason)
	assert.False(t, results[4].Allowed)
	assert.NoError(t, results[4].Err)
}

func TestEvaluator_EvaluateBulkManyChecks(t *testing.T) {
	userID := uuid.New()
	roles := staticRoles{userID: RoleGuest}
	finder := &countingFinder{}
	evaluator := NewEvaluator(roles, finder, NewPermissionCache(nil, nil), MustBuiltinDefaults(), nil)

	projectID := uuid.New()
	checks := make([]BulkCheck, 0, 100)
	for i := 0; i < 100; i++ {
		method := "GET"
		if i%2 == 1 {
			method = "POST"
		}
		checks = append(checks, BulkCheck{ProjectID: projectID, Method: method, Resource: ResourceTask})
	}

	results, err := evaluator.EvaluateBulk(context.Background(), userID, checks)
	require.NoError(t, err)
	for i, r := range results {
		assert.Equal(t, i%2 == 0, r.Allowed, fmt.Sprintf("check %d", i))
	}
	assert.LessOrEqual(t, finder.calls.Load(), int32(bulkWorkers))
}

func TestEvaluator_EvaluateBulkCancelled(t *testing.T) {
	svc := setupTestService(t)
	f := seedProject(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Evaluator.EvaluateBulk(ctx, f.owner, []BulkCheck{
		{ProjectID: f.projectID, Method: "GET", Resource: ResourceTask},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluator_EvaluateBulkEmpty(t *testing.T) {
	svc := setupTestService(t)

	results, err := svc.Evaluator.EvaluateBulk(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
