package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pong-user-directory/internal/domain"
	"github.com/oksasatya/pong-user-directory/pkg/response"
)

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, logger logrus.FieldLogger, err error) {
	var (
		verr *domain.ValidationError
		cerr *domain.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		response.Error[any](c, http.StatusBadRequest, "validation failed", verr.Fields)
	case errors.As(err, &cerr):
		response.Error[any](c, http.StatusBadRequest, cerr.Error(), map[string]string{cerr.Field: "already exists"})
	case errors.Is(err, domain.ErrNotFound):
		response.Error[any](c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, domain.ErrStorageUnavailable):
		logger.WithError(err).WithField("request_id", c.GetString("request_id")).Error("storage unavailable")
		response.Error[any](c, http.StatusServiceUnavailable, "storage unavailable", nil)
	default:
		logger.WithError(err).WithField("request_id", c.GetString("request_id")).Error("unhandled error")
		_ = c.Error(err)
		response.Error[any](c, http.StatusInternalServerError, "internal server error", nil)
	}
}
