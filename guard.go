package rbac

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PrincipalLocalsKey is the fiber Locals key holding the Principal.
const PrincipalLocalsKey = "principal"

// Guard runs the per-request authorization pipeline before a route or
// resolver executes. It keeps no state between requests.
type Guard struct {
	evaluator *Evaluator
	routes    *RouteTable
	log       *zap.SugaredLogger
}

func NewGuard(evaluator *Evaluator, routes *RouteTable, log *zap.SugaredLogger) *Guard {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Guard{evaluator: evaluator, routes: routes, log: log}
}

// Routes exposes the table the guard consults.
func (g *Guard) Routes() *RouteTable {
	return g.routes
}

// Check evaluates rc. It returns nil when the call may proceed,
// ErrUnauthenticated or ErrNotAMember for 401 outcomes, ErrPermissionDenied
// for 403 outcomes and any other error for infrastructure failures.
//
// Routes missing from the table, or declaring no resource, are denied.
func (g *Guard) Check(ctx context.Context, rc RequestContext) error {
	ann, ok := g.routes.Lookup(rc.RouteID)
	if !ok {
		g.log.Warnw("route has no annotations, denying", "route", rc.RouteID, "transport", rc.Transport)
	}
	if ann.Public || ann.SkipGuard {
		return nil
	}
	if rc.UserID == uuid.Nil {
		return ErrUnauthenticated
	}
	return g.evaluator.Authorize(ctx, rc.UserID, rc.ProjectID, rc.Method, ann.Resource)
}

// Protect returns fiber middleware guarding the route registered as routeID.
func (g *Guard) Protect(routeID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc := HTTPRequestContext(c, routeID)
		if err := g.Check(c.UserContext(), rc); err != nil {
			g.logRejection(rc, err)
			return fiber.NewError(StatusCode(err), PublicMessage(err))
		}
		return c.Next()
	}
}

// HTTPRequestContext builds the RequestContext of a fiber request. The
// project id comes from the :projectId route param.
func HTTPRequestContext(c *fiber.Ctx, routeID string) RequestContext {
	rc := RequestContext{
		Transport: TransportHTTP,
		RouteID:   routeID,
		Method:    c.Method(),
		Path:      c.Path(),
		ProjectID: parseProjectID(c.Params("projectId")),
	}
	if p, ok := FiberPrincipal(c); ok {
		rc.UserID = p.Sub
	}
	return rc
}

// SetFiberPrincipal attaches p to both the fiber locals and the user context
// so downstream code reading either sees the same caller.
func SetFiberPrincipal(c *fiber.Ctx, p Principal) {
	c.Locals(PrincipalLocalsKey, p)
	c.SetUserContext(WithPrincipal(c.UserContext(), p))
}

// FiberPrincipal retrieves the principal of a fiber request.
func FiberPrincipal(c *fiber.Ctx) (Principal, bool) {
	if p, ok := c.Locals(PrincipalLocalsKey).(Principal); ok && p.Sub != uuid.Nil {
		return p, true
	}
	return PrincipalFromContext(c.UserContext())
}

func (g *Guard) logRejection(rc RequestContext, err error) {
	if StatusCode(err) >= 500 {
		g.log.Errorw("authorization check failed",
			"route", rc.RouteID, "transport", rc.Transport, "project_id", rc.ProjectID, "user_id", rc.UserID, "error", err)
		return
	}
	g.log.Infow("request rejected",
		"route", rc.RouteID, "transport", rc.Transport, "project_id", rc.ProjectID, "user_id", rc.UserID, "reason", err)
}
