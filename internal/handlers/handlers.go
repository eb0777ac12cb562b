package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skincheck-api/internal/metrics"
	"github.com/Brownie44l1/skincheck-api/internal/model"
	"github.com/Brownie44l1/skincheck-api/internal/preprocess"
	"github.com/Brownie44l1/skincheck-api/internal/tensor"
	"github.com/Brownie44l1/skincheck-api/internal/weather"
)

// uploadFields are tried in order; "image" is what older clients send.
var uploadFields = []string{"file", "image"}

type Predictor interface {
	Predict(ctx context.Context, batch *tensor.Batch) ([][]float32, error)
}

type WeatherLookup interface {
	Lookup(ctx context.Context, lat, lon float64) (*weather.Report, error)
}

type WeatherResponse struct {
	UVIndex        float64      `json:"uv_index"`
	SkinCancerRisk weather.Risk `json:"skin_cancer_risk"`
	Temperature    float64      `json:"temperature"`
	Forecast       string       `json:"forecast"`
}

type DetailResponse struct {
	Detail string `json:"detail"`
}

type Options struct {
	RequestTimeout time.Duration
	MaxUploadBytes int64
	CoarseErrors   bool
	Metrics        *metrics.Metrics
}

type Handler struct {
	predictor      Predictor
	weather        WeatherLookup
	log            *zap.Logger
	metrics        *metrics.Metrics
	requestTimeout time.Duration
	maxUploadBytes int64
	coarseErrors   bool
}

func NewHandler(predictor Predictor, lookup WeatherLookup, opts Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		predictor:      predictor,
		weather:        lookup,
		log:            log.Named("handlers"),
		metrics:        opts.Metrics,
		requestTimeout: opts.RequestTimeout,
		maxUploadBytes: opts.MaxUploadBytes,
		coarseErrors:   opts.CoarseErrors,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Predict classifies one uploaded image and answers {"prediction": [[p]]}.
func (h *Handler) Predict(c *gin.Context) {
	ctx, cancel := h.withTimeout(c.Request.Context())
	defer cancel()

	prediction, took, err := h.predict(ctx, c)
	if err != nil {
		kind := classify(err)
		h.observe(string(kind), took)
		h.log.Error("prediction failed", zap.String("kind", string(kind)), zap.Error(err), requestID(c))
		c.JSON(h.status(kind), model.ErrorResponse{Error: err.Error()})
		return
	}
	h.observe("ok", took)
	c.JSON(http.StatusOK, model.PredictionResponse{Prediction: prediction})
}

// predict reads the upload and runs the classifier. took covers only the
// classifier call.
func (h *Handler) predict(ctx context.Context, c *gin.Context) (prediction [][]float32, took time.Duration, err error) {
	if h.maxUploadBytes > 0 {
		if c.Request.ContentLength > h.maxUploadBytes {
			return nil, 0, errTooLarge
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	header, err := uploadedFile(c)
	if err != nil {
		return nil, 0, err
	}
	data, err := readFile(header)
	if err != nil {
		return nil, 0, err
	}
	h.log.Debug("received file", zap.String("filename", header.Filename), zap.Int("bytes", len(data)), requestID(c))

	type result struct {
		prediction [][]float32
		took       time.Duration
		err        error
	}
	// buffered so the worker can finish after the request has given up
	done := make(chan result, 1)
	go func() {
		batch, err := preprocess.Preprocess(data)
		if err != nil {
			done <- result{err: err}
			return
		}
		start := time.Now()
		p, err := h.predictor.Predict(ctx, batch)
		done <- result{prediction: p, took: time.Since(start), err: err}
	}()

	select {
	case r := <-done:
		return r.prediction, r.took, r.err
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("prediction did not finish in time: %w", ctx.Err())
	}
}

func uploadedFile(c *gin.Context) (*multipart.FileHeader, error) {
	for _, field := range uploadFields {
		header, err := c.FormFile(field)
		switch {
		case err == nil:
			return header, nil
		case errors.Is(err, http.ErrMissingFile):
			continue
		case errors.Is(err, http.ErrNotMultipart):
			return nil, errMissingUpload
		default:
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				return nil, errTooLarge
			}
			return nil, fmt.Errorf("failed to parse form: %w", err)
		}
	}
	return nil, errMissingUpload
}

func readFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}

type weatherQuery struct {
	Lat *float64 `form:"lat" binding:"required,min=-90,max=90"`
	Lon *float64 `form:"lon" binding:"required,min=-180,max=180"`
}

// Weather reports the UV index and skin cancer risk for a coordinate.
func (h *Handler) Weather(c *gin.Context) {
	var q weatherQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.weatherError(c, kindInvalid, fmt.Sprintf("invalid query: %v", err))
		return
	}

	ctx, cancel := h.withTimeout(c.Request.Context())
	defer cancel()

	report, err := h.weather.Lookup(ctx, *q.Lat, *q.Lon)
	if err != nil {
		h.log.Error("weather lookup failed", zap.Error(err), requestID(c))
		h.weatherError(c, classify(err), fmt.Sprintf("Error fetching weather data: %v", err))
		return
	}

	risk, err := weather.ClassifyRisk(report.UVIndex)
	if err != nil {
		h.log.Error("risk mapping failed", zap.Float64("uv_index", report.UVIndex), zap.Error(err), requestID(c))
		h.weatherError(c, kindInternal, fmt.Sprintf("Internal server error: %v", err))
		return
	}

	c.JSON(http.StatusOK, WeatherResponse{
		UVIndex:        report.UVIndex,
		SkinCancerRisk: risk,
		Temperature:    report.Temperature,
		Forecast:       report.Forecast,
	})
}

func (h *Handler) weatherError(c *gin.Context, kind errorKind, detail string) {
	c.JSON(h.status(kind), DetailResponse{Detail: detail})
}

func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.requestTimeout)
}

func (h *Handler) observe(outcome string, took time.Duration) {
	if h.metrics != nil {
		h.metrics.ObservePrediction(outcome, took)
	}
}
