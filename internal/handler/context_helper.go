package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/journal-api/internal/middleware"
	"github.com/noah-isme/journal-api/internal/models"
)

// claimsFromContext returns the caller set by middleware.JWT, or nil on public routes.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, _ := middleware.CurrentUser(c)
	return claims
}
