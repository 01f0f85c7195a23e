package rbac

import (
	"context"
	"strings"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// rootObjects are the GraphQL root types whose fields are guarded. Nested
// fields run under a root field that has already been checked.
var rootObjects = map[string]bool{
	"Query":        true,
	"Mutation":     true,
	"Subscription": true,
}

// GraphQLRequestContext builds the RequestContext of the field being
// resolved. The route id is "<Object>.<field>", the method is the operation
// kind upper-cased, and the project id is the projectId argument or
// input.projectId. ok is false outside a gqlgen field resolution.
func GraphQLRequestContext(ctx context.Context) (rc RequestContext, ok bool) {
	fc := graphql.GetFieldContext(ctx)
	if fc == nil || fc.Field.Field == nil || !graphql.HasOperationContext(ctx) {
		return RequestContext{}, false
	}

	oc := graphql.GetOperationContext(ctx)
	projectArg := graphQLProjectArg(rawArguments(fc, oc.Variables))
	if projectArg == nil {
		projectArg = graphQLProjectArg(fc.Args)
	}

	rc = RequestContext{
		Transport: TransportGraphQL,
		RouteID:   fc.Object + "." + fc.Field.Name,
		Path:      fc.Path().String(),
		ProjectID: parseProjectID(projectArg),
	}
	if op := oc.Operation; op != nil {
		rc.Method = strings.ToUpper(string(op.Operation))
	}
	if p, found := PrincipalFromContext(ctx); found {
		rc.UserID = p.Sub
	}
	return rc, true
}

// rawArguments returns the field arguments as written in the document with
// variables substituted. Input objects stay maps, unlike fc.Args which holds
// the generated input structs.
func rawArguments(fc *graphql.FieldContext, vars map[string]interface{}) (args map[string]interface{}) {
	if fc.Field.Definition == nil {
		return nil
	}
	defer func() {
		if recover() != nil {
			args = nil
		}
	}()
	return fc.Field.ArgumentMap(vars)
}

func graphQLProjectArg(args map[string]interface{}) any {
	if v, ok := args["projectId"]; ok && v != nil {
		return v
	}
	if input, ok := args["input"].(map[string]interface{}); ok {
		return input["projectId"]
	}
	return nil
}

// FieldMiddleware returns a gqlgen field middleware running the guard on
// every root field. Install it with handler.Server.AroundFields.
func (g *Guard) FieldMiddleware() graphql.FieldMiddleware {
	return func(ctx context.Context, next graphql.Resolver) (interface{}, error) {
		fc := graphql.GetFieldContext(ctx)
		if fc == nil || !rootObjects[fc.Object] {
			return next(ctx)
		}
		rc, ok := GraphQLRequestContext(ctx)
		if !ok {
			return next(ctx)
		}
		if err := g.Check(ctx, rc); err != nil {
			g.logRejection(rc, err)
			return nil, graphQLError(fc, err)
		}
		return next(ctx)
	}
}

func graphQLError(fc *graphql.FieldContext, err error) *gqlerror.Error {
	code := StatusCode(err)
	path := fc.Path()
	return &gqlerror.Error{
		Message: PublicMessage(err),
		Path:    path,
		Extensions: map[string]interface{}{
			"statusCode": code,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"path":       path.String(),
		},
	}
}
