package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/service-order-api/internal/middleware"
	"github.com/noah-isme/service-order-api/internal/models"
	appErrors "github.com/noah-isme/service-order-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext resolves the acting user from the verified token.
func actorFromContext(c *gin.Context) (models.Actor, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return models.Actor{}, appErrors.ErrUnauthorized
	}
	return models.ActorFromClaims(claims), nil
}

// bindOptionalJSON decodes the body into dest, accepting an empty body.
func bindOptionalJSON(c *gin.Context, dest interface{}, message string) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	return nil
}

func bindJSON(c *gin.Context, dest interface{}, message string) error {
	if err := c.ShouldBindJSON(dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	return nil
}
