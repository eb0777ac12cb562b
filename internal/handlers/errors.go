package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Brownie44l1/skincheck-api/internal/model"
	"github.com/Brownie44l1/skincheck-api/internal/preprocess"
	"github.com/Brownie44l1/skincheck-api/internal/weather"
)

var (
	errMissingUpload = errors.New("no image file provided, use 'file' as the form field name")
	errTooLarge      = errors.New("uploaded file is too large")
)

// errorKind labels a request failure for status mapping and metrics.
type errorKind string

const (
	kindDecode    errorKind = "decode"
	kindMissing   errorKind = "missing_file"
	kindTooLarge  errorKind = "too_large"
	kindInference errorKind = "inference"
	kindTimeout   errorKind = "timeout"
	kindUpstream  errorKind = "upstream"
	kindInvalid   errorKind = "invalid_query"
	kindInternal  errorKind = "internal"
)

var kindStatus = map[errorKind]int{
	kindDecode:    http.StatusBadRequest,
	kindMissing:   http.StatusUnprocessableEntity,
	kindTooLarge:  http.StatusRequestEntityTooLarge,
	kindInference: http.StatusInternalServerError,
	kindTimeout:   http.StatusGatewayTimeout,
	kindUpstream:  http.StatusBadGateway,
	kindInvalid:   http.StatusUnprocessableEntity,
	kindInternal:  http.StatusInternalServerError,
}

func classify(err error) errorKind {
	var (
		decodeErr    *preprocess.DecodeError
		inferenceErr *model.InferenceError
		upstreamErr  *weather.UpstreamError
		maxBytesErr  *http.MaxBytesError
	)
	switch {
	case errors.Is(err, errMissingUpload):
		return kindMissing
	case errors.Is(err, errTooLarge), errors.As(err, &maxBytesErr):
		return kindTooLarge
	case errors.As(err, &decodeErr):
		return kindDecode
	case errors.Is(err, context.DeadlineExceeded):
		return kindTimeout
	case errors.As(err, &inferenceErr):
		return kindInference
	case errors.As(err, &upstreamErr):
		return kindUpstream
	}
	return kindInternal
}

// status maps a failure to its response code. In coarse mode every failure
// is a 500.
func (h *Handler) status(kind errorKind) int {
	if h.coarseErrors {
		return http.StatusInternalServerError
	}
	if s, ok := kindStatus[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}
