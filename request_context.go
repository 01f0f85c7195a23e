package rbac

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Principal is the authenticated caller attached by the upstream
// authentication step. Sub is trusted as-is.
type Principal struct {
	Sub uuid.UUID `json:"sub"`
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext retrieves the principal attached by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.Sub == uuid.Nil {
		return Principal{}, false
	}
	return p, true
}

// Transport names the kind of inbound call a RequestContext came from.
type Transport string

const (
	TransportHTTP    Transport = "http"
	TransportGraphQL Transport = "graphql"
)

// RequestContext is the transport-neutral view of an inbound call that the
// guard evaluates. Method is an HTTP verb or an upper-cased GraphQL
// operation kind. A nil ProjectID means the call carries no project scope.
type RequestContext struct {
	Transport Transport
	RouteID   string
	Method    string
	ProjectID uuid.UUID
	UserID    uuid.UUID
	Path      string
}

// parseProjectID accepts the shapes a project id arrives in from route
// params and GraphQL arguments. Anything unparsable counts as absent.
func parseProjectID(v any) uuid.UUID {
	switch id := v.(type) {
	case nil:
		return uuid.Nil
	case uuid.UUID:
		return id
	case *uuid.UUID:
		if id == nil {
			return uuid.Nil
		}
		return *id
	case string:
		return parseUUIDString(id)
	case *string:
		if id == nil {
			return uuid.Nil
		}
		return parseUUIDString(*id)
	case fmt.Stringer:
		return parseUUIDString(id.String())
	}
	return uuid.Nil
}

func parseUUIDString(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}
