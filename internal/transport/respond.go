package transport

import (
	"errors"
	"net/http"

	"misha-catalog/internal/middleware"
	"misha-catalog/internal/service"

	"go.uber.org/zap"
)

// kindStatus maps service error kinds to HTTP status codes. Kinds missing
// from the map fall through to 500.
var kindStatus = map[service.Kind]int{
	service.KindMalformedInput:         http.StatusBadRequest,
	service.KindNoVariants:             http.StatusBadRequest,
	service.KindInvalidVariantPrice:    http.StatusBadRequest,
	service.KindInvalidVariantDiscount: http.StatusBadRequest,
	service.KindInvalidDiscount:        http.StatusBadRequest,
	service.KindInvalidVariantRating:   http.StatusBadRequest,
	service.KindInvalidVariantSizes:    http.StatusBadRequest,
	service.KindInvalidVideoURL:        http.StatusBadRequest,
	service.KindInvalidCategory:        http.StatusBadRequest,
	service.KindInvalidColor:           http.StatusBadRequest,
	service.KindImagesNotAssigned:      http.StatusBadRequest,
	service.KindNoVariantImages:        http.StatusBadRequest,
	service.KindProductNotFound:        http.StatusNotFound,
	service.KindCategoryNotFound:       http.StatusNotFound,
	service.KindColorNotFound:          http.StatusNotFound,
	service.KindSlugConflict:           http.StatusConflict,
	service.KindCategoryConflict:       http.StatusConflict,
	service.KindColorConflict:          http.StatusConflict,
	service.KindRevisionConflict:       http.StatusConflict,
	service.KindCategoryInUse:          http.StatusConflict,
	service.KindColorInUse:             http.StatusConflict,
}

// respondServiceError writes the HTTP rendering of a service error. Client
// errors log at debug, server errors at error level.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	kind := service.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := "internal server error"
	var se *service.Error
	if errors.As(err, &se) && status < http.StatusInternalServerError {
		message = se.Message
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("kind", string(kind)), zap.Error(err))
	} else {
		logger.Debug("Request rejected", zap.String("kind", string(kind)), zap.Error(err))
	}

	middleware.RespondWithErrorDetails(w, status, message, map[string]interface{}{
		"kind": string(kind),
	})
}
