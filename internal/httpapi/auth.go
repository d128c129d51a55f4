package httpapi

import (
	"strings"

	"github.com/a2e-systems/a2e-exec/internal/apierrors"
	"github.com/a2e-systems/a2e-exec/internal/authz"
	"github.com/a2e-systems/a2e-exec/internal/respond"
	"github.com/gin-gonic/gin"
)

// agentIDKey is the gin-context key every downstream handler and the
// structured-logger middleware read the authenticated agent id from.
const agentIDKey = "agent_id"

// AgentAuth accepts either an X-API-Key header or an Authorization: Bearer
// token, resolves it to an agent id via the authorization store, and
// rejects the request with a 401 Authentication error otherwise. An
// expired or malformed token fails the same way a wrong API key does —
// the error surface never distinguishes the reason.
func AgentAuth(store *authz.Store, shaper *respond.Shaper) gin.HandlerFunc {
	return func(c *gin.Context) {
		agentID, ok := authenticate(store, c)
		if !ok {
			writeError(c, shaper, apierrors.New(apierrors.CategoryAuthentication, "missing or invalid credentials"))
			c.Abort()
			return
		}
		c.Set(agentIDKey, agentID)
		c.Next()
	}
}

func authenticate(store *authz.Store, c *gin.Context) (string, bool) {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return store.Authenticate(key)
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token := strings.TrimPrefix(h, "Bearer ")
		agentID, err := store.VerifyToken(token)
		if err != nil {
			return "", false
		}
		return agentID, true
	}
	return "", false
}

func agentID(c *gin.Context) string {
	v, _ := c.Get(agentIDKey)
	id, _ := v.(string)
	return id
}
