package httpadapter

import (
	"net/http"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	// Matches the error kind recorded on the item.
	case domain.IsKind(err, domain.ErrSave):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrClassificationFailed):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrPromotionConflict),
		domain.IsKind(err, domain.ErrInvalidTransition),
		domain.IsKind(err, domain.ErrDuplicate):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrUnsupportedFileKind):
		return http.StatusUnsupportedMediaType
	case domain.IsKind(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary),
		domain.IsKind(err, domain.ErrOCRJobTimeout):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrUploadIntegrity),
		domain.IsKind(err, domain.ErrOCRJobFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
