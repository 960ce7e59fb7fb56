package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/nestbill/internal/audit/domain"
	"github.com/smallbiznis/nestbill/internal/auditcontext"
	"github.com/smallbiznis/nestbill/internal/authorization"
	obscontext "github.com/smallbiznis/nestbill/internal/observability/context"
)

const (
	HeaderActorRole = "X-Actor-Role"
	HeaderActorID   = "X-Actor-ID"

	contextActorKey = "actor"
)

// ActorRequired resolves the caller from the identity headers set by the
// edge proxy. When an API token is configured the proxy must also present it.
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := s.cfg.Auth.APIToken; token != "" {
			presented, ok := bearerToken(c.GetHeader("Authorization"))
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				AbortWithError(c, ErrUnauthorized)
				return
			}
		}

		actor, err := actorFromHeaders(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextActorKey, actor)

		ctx := c.Request.Context()
		ctx = auditcontext.WithActor(ctx, string(actor.auditType()), actor.ID)
		ctx = obscontext.WithActor(ctx, actor.Role, actor.ID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func actorFromHeaders(c *gin.Context) (Actor, error) {
	role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole)))
	id := strings.TrimSpace(c.GetHeader(HeaderActorID))

	switch role {
	case authorization.RoleCustomer, authorization.RoleCompliance, authorization.RoleAdmin:
	default:
		return Actor{}, ErrUnauthorized
	}
	if id == "" {
		return Actor{}, ErrUnauthorized
	}
	return Actor{Role: role, ID: id}, nil
}

func (a Actor) auditType() auditdomain.ActorType {
	switch a.Role {
	case authorization.RoleCustomer:
		return auditdomain.ActorTypeCustomer
	case authorization.RoleCompliance:
		return auditdomain.ActorTypeCompliance
	default:
		return auditdomain.ActorTypeOperator
	}
}
