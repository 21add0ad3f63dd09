package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/access"
)

const (
	// ActorIDHeader and ActorRoleHeader are set by the authenticating proxy
	ActorIDHeader   = "X-Actor-ID"
	ActorRoleHeader = "X-Actor-Role"

	actorKey = "actor"
)

// Actor resolves the authenticated caller from the proxy headers. Requests
// without a valid actor are rejected before reaching a handler.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader(ActorIDHeader))
		if err != nil || id == uuid.Nil {
			abortUnauthorized(c, "missing or invalid "+ActorIDHeader+" header")
			return
		}

		role, err := access.ParseRole(c.GetHeader(ActorRoleHeader))
		if err != nil {
			abortUnauthorized(c, "missing or invalid "+ActorRoleHeader+" header")
			return
		}

		c.Set(actorKey, access.Actor{ID: id, Role: role})
		c.Next()
	}
}

// GetActor returns the caller stored by Actor; the zero actor never passes authorization
func GetActor(c *gin.Context) access.Actor {
	if v, exists := c.Get(actorKey); exists {
		if actor, ok := v.(access.Actor); ok {
			return actor
		}
	}
	return access.Actor{}
}

func abortUnauthorized(c *gin.Context, message string) {
	abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}
