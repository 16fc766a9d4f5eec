package middleware

import (
	"github.com/gin-gonic/gin"
)

// ErrorHandler runs after the route handler and turns the last error
// attached via ctx.AbortWithError into the JSON body, since AbortWithError
// itself only sets the status code.
func ErrorHandler(ctx *gin.Context) {
	ctx.Next()

	if len(ctx.Errors) == 0 {
		return
	}
	err := ctx.Errors.Last().Err
	ctx.JSON(ctx.Writer.Status(), gin.H{"error": err.Error()})
}
