package service

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-checkable error discriminator. Transport maps
// kinds to HTTP status codes; services never see status codes.
type Kind string

const (
	KindMalformedInput         Kind = "MALFORMED_INPUT"
	KindNoVariants             Kind = "NO_VARIANTS"
	KindInvalidVariantPrice    Kind = "INVALID_VARIANT_PRICE"
	KindInvalidVariantDiscount Kind = "INVALID_VARIANT_DISCOUNT"
	KindInvalidDiscount        Kind = "INVALID_DISCOUNT"
	KindInvalidVariantRating   Kind = "INVALID_VARIANT_RATING"
	KindInvalidVariantSizes    Kind = "INVALID_VARIANT_SIZES"
	KindInvalidVideoURL        Kind = "INVALID_VIDEO_URL"
	KindInvalidCategory        Kind = "INVALID_CATEGORY"
	KindInvalidColor           Kind = "INVALID_COLOR"
	KindProductNotFound        Kind = "PRODUCT_NOT_FOUND"
	KindCategoryNotFound       Kind = "CATEGORY_NOT_FOUND"
	KindColorNotFound          Kind = "COLOR_NOT_FOUND"
	KindSlugConflict           Kind = "PRODUCT_EXISTS"
	KindCategoryConflict       Kind = "CATEGORY_EXISTS"
	KindColorConflict          Kind = "COLOR_EXISTS"
	KindRevisionConflict       Kind = "REVISION_CONFLICT"
	KindCategoryInUse          Kind = "CATEGORY_IN_USE"
	KindColorInUse             Kind = "COLOR_IN_USE"
	KindImagesNotAssigned      Kind = "IMAGES_NOT_ASSIGNED"
	KindNoVariantImages        Kind = "NO_VARIANT_IMAGES"
	KindUploadFailed           Kind = "IMAGE_UPLOAD_FAILED"
	KindCreateFailed           Kind = "PRODUCT_CREATION_FAILED"
	KindUpdateFailed           Kind = "PRODUCT_UPDATE_FAILED"
	KindDeleteFailed           Kind = "PRODUCT_DELETION_FAILED"
)

// Error is the service-level error type. Every error leaving a service
// carries a kind and a human message; Unwrap exposes the cause for logging.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a service error without a cause.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Ef builds a service error with a formatted message.
func Ef(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from err, or empty string for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
