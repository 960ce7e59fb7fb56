package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/nestbill/internal/authorization"
)

type Actor struct {
	Role string
	ID   string
}

func (a Actor) IsCustomer() bool {
	return a.Role == authorization.RoleCustomer
}

// Owns reports whether the actor may act on a resource owned by customerRef.
// Only customers are scoped to their own resources.
func (a Actor) Owns(customerRef string) bool {
	if !a.IsCustomer() {
		return true
	}
	return a.ID == customerRef
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor.Role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (Actor, bool) {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return Actor{}, false
	}
	actor, ok := value.(Actor)
	return actor, ok
}
