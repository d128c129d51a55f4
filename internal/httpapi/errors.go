package httpapi

import (
	"net/http"

	"github.com/a2e-systems/a2e-exec/internal/apierrors"
	"github.com/a2e-systems/a2e-exec/internal/respond"
	"github.com/gin-gonic/gin"
)

// writeError normalizes err into the shaper's error payload and writes it
// with the HTTP status the error's category maps to.
func writeError(c *gin.Context, shaper *respond.Shaper, err error) {
	status := http.StatusInternalServerError
	if se, ok := err.(*apierrors.StructuredError); ok {
		status = se.StatusCode
	}
	c.JSON(status, shaper.FormatError("", err, "", nil))
}
