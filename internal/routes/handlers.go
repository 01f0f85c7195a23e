package routes

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	rbac "github.com/bohemiyan/projectrbac"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler serves the permission and membership management API.
type Handler struct {
	svc *rbac.Service
	log *zap.SugaredLogger
}

type upsertPermissionsRequest struct {
	Permissions []rbac.RolePermissions `json:"permissions"`
}

type updatePermissionRequest struct {
	Permissions rbac.ResourcePermissions `json:"permissions"`
}

type bulkCheckRequest struct {
	Checks []rbac.BulkCheck `json:"checks"`
}

type memberRequest struct {
	UserID uuid.UUID `json:"userId"`
	Role   rbac.Role `json:"role"`
}

type effectivePermissionsResponse struct {
	ProjectID   uuid.UUID          `json:"projectId"`
	Permissions rbac.PermissionMap `json:"permissions"`
}

type myPermissionsResponse struct {
	ProjectID   uuid.UUID                `json:"projectId"`
	Role        rbac.Role                `json:"role"`
	Permissions rbac.ResourcePermissions `json:"permissions"`
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"cache":  h.svc.Cache.Stats(),
	})
}

func (h *Handler) GetPermissions(c *fiber.Ctx) error {
	projectID, err := uuidParam(c, "projectId")
	if err != nil {
		return err
	}
	m, err := h.svc.Evaluator.EffectivePermissions(c.UserContext(), projectID)
	if err != nil {
		return err
	}
	return c.JSON(effectivePermissionsResponse{ProjectID: projectID, Permissions: m})
}

func (h *Handler) UpsertPermissions(c *fiber.Ctx) error {
	projectID, err := uuidParam(c, "projectId")
	if err != nil {
		return err
	}
	var req upsertPermissionsRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %v", rbac.ErrInvalidInput, err)
	}

	rows, err := h.svc.Overrides.Upsert(c.UserContext(), projectID, req.Permissions)
	if err != nil {
		return err
	}
	return c.JSON(rows)
}

func (h *Handler) UpdatePermission(c *fiber.Ctx) error {
	projectID, err := uuidParam(c, "projectId")
	if err != nil {
		return err
	}
	var req updatePermissionRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %v", rbac.ErrInvalidInput, err)
	}

	role := rbac.Role(strings.ToUpper(c.Params("role")))
	row, err := h.svc.Overrides.UpdateOne(c.UserContext(), projectID, role, req.Permissions)
	if err != nil {
		return err
	}
	return c.JSON(row)
}

func (h *Handler) ResetPermissions(c *fiber.Ctx) error {
	projectID, err := uuidParam(c, "projectId")
	if err != nil {
		return err
	}
	if err := h.svc.Overrides.DeleteAllForProject(c.UserContext(), projectID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) PermissionAudit(c *fiber.Ctx) error {
	projectID, err := uuidParam(c, "projectId")
	if err != nil {
		return err
	}
	audits, err := h.svc.Audit.List(c.UserContext(), projectID, c.QueryInt("limit", 100))
	if err != nil {
		return err
	}
	return c.JSON(audits)
}

// MyPermissions returns the caller's role and effective row. It skips the
// resource guard but still requires membership.
func (h *Handler) MyPermissions(c *fiber.Ctx) error {
	projectID, err := uuidParam(c, "projectId")
	if err != nil {
		return err
	}
	p, ok := rbac.FiberPrincipal(c)
	if !ok {
		return rbac.ErrUnauthenticated
	}

	role, row, err := h.svc.Evaluator.RolePermissions(c.UserContext(), p.Sub, projectID)
	if err != nil {
		return err
	}
	return c.JSON(myPermissionsResponse{ProjectID: projectID, Role: role, Permissions: row})
}

func (h *Handler) BulkCheck(c *fiber.Ctx) error {
	p, ok := rbac.FiberPrincipal(c)
	if !ok {
		return rbac.ErrUnauthenticated
	}
	var req bulkCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %v", rbac.ErrInvalidInput, err)
	}

	h.log.Debugw("bulk permission check", "user_id", p.Sub, "checks", len(req.Checks))
	results, err := h.svc.Evaluator.EvaluateBulk(c.UserContext(), p.Sub, req.Checks)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"results": results})
}

func (h *Handler) ListMembers(c *fiber.Ctx) error {
	projectID, err := uuidParam(c, "projectId")
	if err != nil {
		return err
	}
	members, err := h.svc.Members.ListMembers(c.UserContext(), projectID)
	if err != nil {
		return err
	}
	return c.JSON(members)
}

func (h *Handler) AddMember(c *fiber.Ctx) error {
	projectID, err := uuidParam(c, "projectId")
	if err != nil {
		return err
	}
	var req memberRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %v", rbac.ErrInvalidInput, err)
	}
	if err := h.guardOwnerChange(c, projectID, req.Role); err != nil {
		return err
	}

	m, err := h.svc.Members.AddMember(c.UserContext(), req.UserID, projectID, req.Role)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

func (h *Handler) UpdateMember(c *fiber.Ctx) error {
	projectID, err := uuidParam(c, "projectId")
	if err != nil {
		return err
	}
	userID, err := uuidParam(c, "userId")
	if err != nil {
		return err
	}
	var req memberRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %v", rbac.ErrInvalidInput, err)
	}
	current, err := h.svc.Members.GetMember(c.UserContext(), userID, projectID)
	if err != nil {
		return memberNotFound(err)
	}
	if err := h.guardOwnerChange(c, projectID, current.Role, req.Role); err != nil {
		return err
	}

	m, err := h.svc.Members.UpdateMemberRole(c.UserContext(), userID, projectID, req.Role)
	if err != nil {
		return memberNotFound(err)
	}
	return c.JSON(m)
}

func (h *Handler) RemoveMember(c *fiber.Ctx) error {
	projectID, err := uuidParam(c, "projectId")
	if err != nil {
		return err
	}
	userID, err := uuidParam(c, "userId")
	if err != nil {
		return err
	}
	current, err := h.svc.Members.GetMember(c.UserContext(), userID, projectID)
	if err != nil {
		return memberNotFound(err)
	}
	if err := h.guardOwnerChange(c, projectID, current.Role); err != nil {
		return err
	}
	if err := h.svc.Members.RemoveMember(c.UserContext(), userID, projectID); err != nil {
		return memberNotFound(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// guardOwnerChange requires the PROJECT_PERMISSION update right for
// membership changes that grant, revoke or remove OWNER.
func (h *Handler) guardOwnerChange(c *fiber.Ctx, projectID uuid.UUID, roles ...rbac.Role) error {
	if !slices.Contains(roles, rbac.RoleOwner) {
		return nil
	}
	p, ok := rbac.FiberPrincipal(c)
	if !ok {
		return rbac.ErrUnauthenticated
	}
	err := h.svc.Evaluator.Authorize(c.UserContext(), p.Sub, projectID, fiber.MethodPatch, rbac.ResourceProjectPermission)
	if err != nil {
		h.log.Warnw("owner membership change rejected", "project_id", projectID, "user_id", p.Sub)
	}
	return err
}

func uuidParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// memberNotFound reports a missing target member as 404. ErrNotAMember is
// reserved for the caller's own membership, which maps to 401.
func memberNotFound(err error) error {
	if errors.Is(err, rbac.ErrNotAMember) {
		return fiber.NewError(fiber.StatusNotFound, "project member not found")
	}
	return err
}
