package rbac

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// bulkWorkers bounds concurrent evaluations of one bulk request.
const bulkWorkers = 10

// BulkCheck is one (project, method, resource) question of a bulk request.
type BulkCheck struct {
	ProjectID uuid.UUID `json:"projectId"`
	Method    string    `json:"method"`
	Resource  Resource  `json:"resource"`
}

// BulkResult answers one BulkCheck. Reason is set when the check failed with
// an error rather than a plain denial.
type BulkResult struct {
	BulkCheck
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Err     error  `json:"-"`
}

// EvaluateBulk evaluates checks for userID concurrently. Per-check failures
// are reported in the results; the returned error is only set when ctx ends
// before all checks ran. Results keep the order of checks.
func (e *Evaluator) EvaluateBulk(ctx context.Context, userID uuid.UUID, checks []BulkCheck) ([]BulkResult, error) {
	results := make([]BulkResult, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkWorkers)
	for i, check := range checks {
		i, check := i, check
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			allowed, err := e.Evaluate(gctx, userID, check.ProjectID, check.Method, check.Resource)
			results[i] = BulkResult{BulkCheck: check, Allowed: allowed, Err: err}
			if err != nil {
				results[i].Reason = PublicMessage(err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
