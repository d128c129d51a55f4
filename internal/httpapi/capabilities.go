package httpapi

import "github.com/gin-gonic/gin"

// handleCapabilities returns the projection of APIs, credentials (metadata
// only — never plaintext) and operation kinds the caller is permitted to
// use. This is the only capability view an agent ever sees.
func handleCapabilities(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		agent := agentID(c)

		apis := make([]any, 0)
		for _, api := range deps.Registry.ListAPIs() {
			if deps.Authz.IsAPIAllowed(agent, api.ID) {
				apis = append(apis, api)
			}
		}

		creds := make([]any, 0)
		for _, cred := range deps.Vault.List() {
			if deps.Authz.IsCredentialAllowed(agent, cred.ID) {
				creds = append(creds, cred)
			}
		}

		ops := make([]any, 0)
		for _, op := range deps.Registry.ListOperations() {
			if deps.Authz.IsOperationAllowed(agent, op.Kind) {
				ops = append(ops, op)
			}
		}

		c.JSON(200, gin.H{
			"apis":        apis,
			"credentials": creds,
			"operations":  ops,
		})
	}
}
