package middleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	"groupchat/api"
	"groupchat/internal/domain"
	"groupchat/internal/observability"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	Enabled bool
	// Spec is the OpenAPI document; defaults to the embedded api/openapi.yaml
	Spec []byte
	// PathPrefix limits validation to requests under it
	PathPrefix        string
	ValidateRequests  bool
	ValidateResponses bool
}

// DefaultOpenAPIValidatorConfig validates requests to /api/v1 against the
// embedded document. Response validation stays off.
func DefaultOpenAPIValidatorConfig(enabled bool) *OpenAPIValidatorConfig {
	return &OpenAPIValidatorConfig{
		Enabled:           enabled,
		Spec:              api.OpenAPISpec,
		PathPrefix:        "/api/v1/",
		ValidateRequests:  true,
		ValidateResponses: false,
	}
}

// LoadOpenAPIDocument parses and validates an OpenAPI document.
func LoadOpenAPIDocument(spec []byte) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
}

// OpenAPIValidator validates requests, and optionally responses, against an
// OpenAPI 3 document. Requests for paths the document does not describe pass
// through so the router can answer 404 or 405.
func OpenAPIValidator(config *OpenAPIValidatorConfig) (func(next http.Handler) http.Handler, error) {
	if config == nil || !config.Enabled {
		slog.Info("OpenAPI validation disabled")
		return func(next http.Handler) http.Handler { return next }, nil
	}

	spec := config.Spec
	if len(spec) == 0 {
		spec = api.OpenAPISpec
	}
	doc, err := LoadOpenAPIDocument(spec)
	if err != nil {
		return nil, err
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create openapi router: %w", err)
	}

	slog.Info("OpenAPI validation enabled",
		slog.Bool("validate_requests", config.ValidateRequests),
		slog.Bool("validate_responses", config.ValidateResponses),
		slog.String("path_prefix", config.PathPrefix))

	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, config.PathPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				observability.FromContext(r.Context()).Debug("request not described by openapi document",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}

			if config.ValidateRequests {
				if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
					observability.FromContext(r.Context()).Warn("request validation failed",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()))
					writeError(w, http.StatusBadRequest, string(domain.KindValidation), validationMessage(err))
					return
				}
			}

			if !config.ValidateResponses {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)
			validateResponse(r, input, recorder, options)
		})
	}, nil
}

// validateResponse only logs; the response has already been sent.
func validateResponse(r *http.Request, input *openapi3filter.RequestValidationInput, rec *responseRecorder, options *openapi3filter.Options) {
	err := openapi3filter.ValidateResponse(r.Context(), &openapi3filter.ResponseValidationInput{
		RequestValidationInput: input,
		Status:                 rec.statusCode,
		Header:                 rec.Header(),
		Body:                   io.NopCloser(bytes.NewReader(rec.body)),
		Options:                options,
	})
	if err != nil {
		observability.FromContext(r.Context()).Warn("response validation failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.statusCode),
			slog.String("error", err.Error()))
	}
}

// validationMessage keeps the first line of the filter error, which
// otherwise embeds the offending schema.
func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}
