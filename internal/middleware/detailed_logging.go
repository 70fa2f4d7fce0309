package middleware

import (
	"net/http"
	"strings"

	"chatbridge/internal/service"
	"chatbridge/internal/tracing"

	"github.com/sirupsen/logrus"
)

// DetailedLoggingConfig controls what gets logged
type DetailedLoggingConfig struct {
	LogRequestHeaders  bool     `json:"log_request_headers"`
	LogResponseHeaders bool     `json:"log_response_headers"`
	SensitiveHeaders   []string `json:"sensitive_headers"` // Headers to mask
	SkipEndpoints      []string `json:"skip_endpoints"`    // Endpoints to skip detailed logging
}

// DefaultDetailedLoggingConfig returns sensible defaults
func DefaultDetailedLoggingConfig() DetailedLoggingConfig {
	return DetailedLoggingConfig{
		LogRequestHeaders:  true,
		LogResponseHeaders: false,
		SensitiveHeaders: []string{
			"authorization", "x-api-key",
			"cookie", "set-cookie", "x-auth-token",
		},
		SkipEndpoints: []string{
			"/health", "/events",
		},
	}
}

// DetailedLoggingMiddleware provides request/response header logging for debugging
func DetailedLoggingMiddleware(logger *logrus.Logger, config DetailedLoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip detailed logging for certain endpoints
			for _, skip := range config.SkipEndpoints {
				if strings.Contains(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			requestInfo := tracing.GetRequestInfo(r.Context())

			logRequestDetails(logger, r, requestInfo, config)

			var capture *headerCaptureWrapper
			var wrappedWriter = w

			if config.LogResponseHeaders {
				capture = &headerCaptureWrapper{
					ResponseWriter: w,
					headers:        make(http.Header),
					statusCode:     http.StatusOK,
				}
				wrappedWriter = capture
			}

			next.ServeHTTP(wrappedWriter, r)

			if capture != nil {
				logResponseDetails(logger, capture, requestInfo, config)
			}
		})
	}
}

// logRequestDetails logs detailed request information
func logRequestDetails(logger *logrus.Logger, r *http.Request, requestInfo *tracing.RequestInfo, config DetailedLoggingConfig) {
	fields := logrus.Fields{
		service.LogFieldRequestID: requestInfo.RequestID,
		service.LogFieldTraceID:   requestInfo.TraceID,
		service.LogFieldMethod:    r.Method,
		service.LogFieldURL:       r.URL.String(),
		service.LogFieldRemoteIP:  GetClientIP(r),
		"protocol":                r.Proto,
	}

	if config.LogRequestHeaders {
		headers := make(map[string]string)
		for name, values := range r.Header {
			if isSensitiveHeader(name, config.SensitiveHeaders) {
				headers[name] = "***MASKED***"
			} else {
				headers[name] = strings.Join(values, ", ")
			}
		}
		fields["request_headers"] = headers
	}

	logger.WithFields(fields).Debug("Detailed request logging")
}

// logResponseDetails logs detailed response information
func logResponseDetails(logger *logrus.Logger, capture *headerCaptureWrapper, requestInfo *tracing.RequestInfo, config DetailedLoggingConfig) {
	fields := logrus.Fields{
		service.LogFieldRequestID:  requestInfo.RequestID,
		service.LogFieldTraceID:    requestInfo.TraceID,
		service.LogFieldStatusCode: capture.statusCode,
	}

	if config.LogResponseHeaders {
		headers := make(map[string]string)
		for name, values := range capture.headers {
			if isSensitiveHeader(name, config.SensitiveHeaders) {
				headers[name] = "***MASKED***"
			} else {
				headers[name] = strings.Join(values, ", ")
			}
		}
		fields["response_headers"] = headers
	}

	logger.WithFields(fields).Debug("Detailed response logging")
}

// headerCaptureWrapper captures response headers and status for logging
type headerCaptureWrapper struct {
	http.ResponseWriter
	headers    http.Header
	statusCode int
}

func (hc *headerCaptureWrapper) WriteHeader(statusCode int) {
	hc.statusCode = statusCode
	// Copy headers before they're sent
	for name, values := range hc.ResponseWriter.Header() {
		hc.headers[name] = values
	}
	hc.ResponseWriter.WriteHeader(statusCode)
}

// isSensitiveHeader checks if a header should be masked
func isSensitiveHeader(headerName string, sensitiveHeaders []string) bool {
	headerLower := strings.ToLower(headerName)
	for _, sensitive := range sensitiveHeaders {
		if strings.ToLower(sensitive) == headerLower {
			return true
		}
	}
	return false
}
