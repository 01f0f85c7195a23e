package routes

import (
	rbac "github.com/bohemiyan/projectrbac"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Route ids registered in the guard's route table.
const (
	RouteHealth            = "health"
	RouteGetPermissions    = "permissions.get"
	RouteUpsertPermissions = "permissions.upsert"
	RouteUpdatePermission  = "permissions.update"
	RouteResetPermissions  = "permissions.reset"
	RoutePermissionAudit   = "permissions.audit"
	RouteMyPermissions     = "me.permissions"
	RouteBulkCheck         = "me.permissions.check"
	RouteListMembers       = "members.list"
	RouteAddMember         = "members.add"
	RouteUpdateMember      = "members.update"
	RouteRemoveMember      = "members.remove"
)

// Setup registers the management API on app and declares every route's
// annotations in the service guard. Call it once per service.
func Setup(app *fiber.App, svc *rbac.Service, log *zap.SugaredLogger) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	h := &Handler{svc: svc, log: log}

	table := svc.Guard.Routes()
	table.Group("permissions", rbac.Annotations{Resource: rbac.ResourceProjectPermission})
	table.Group("members", rbac.Annotations{Resource: rbac.ResourceProjectUser})
	table.Group("me", rbac.Annotations{SkipGuard: true})

	protect := func(routeID, group string, ann rbac.Annotations) fiber.Handler {
		table.Handle(routeID, group, ann)
		return svc.Guard.Protect(routeID)
	}

	app.Get("/health", protect(RouteHealth, "", rbac.Annotations{Public: true}), h.Health)

	api := app.Group("/api/v1", DevAuth())

	api.Post("/me/permissions/check", protect(RouteBulkCheck, "me", rbac.Annotations{}), h.BulkCheck)

	project := api.Group("/projects/:projectId")
	project.Get("/permissions", protect(RouteGetPermissions, "permissions", rbac.Annotations{}), h.GetPermissions)
	project.Put("/permissions", protect(RouteUpsertPermissions, "permissions", rbac.Annotations{}), h.UpsertPermissions)
	project.Delete("/permissions", protect(RouteResetPermissions, "permissions", rbac.Annotations{}), h.ResetPermissions)
	project.Get("/permissions/audit", protect(RoutePermissionAudit, "permissions", rbac.Annotations{}), h.PermissionAudit)
	project.Patch("/permissions/:role", protect(RouteUpdatePermission, "permissions", rbac.Annotations{}), h.UpdatePermission)

	project.Get("/me/permissions", protect(RouteMyPermissions, "me", rbac.Annotations{}), h.MyPermissions)

	project.Get("/members", protect(RouteListMembers, "members", rbac.Annotations{}), h.ListMembers)
	project.Post("/members", protect(RouteAddMember, "members", rbac.Annotations{}), h.AddMember)
	project.Patch("/members/:userId", protect(RouteUpdateMember, "members", rbac.Annotations{}), h.UpdateMember)
	project.Delete("/members/:userId", protect(RouteRemoveMember, "members", rbac.Annotations{}), h.RemoveMember)
}
