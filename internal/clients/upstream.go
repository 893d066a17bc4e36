package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
)

const maxResponseBytes = 1 << 20

// errNotFound means every configured endpoint answered 404.
var errNotFound = errors.New("clients: resource not found on any endpoint")

// StatusError is a non-2xx, non-404 response from an upstream service.
type StatusError struct {
	Service    string
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned status %d", e.Service, e.Path, e.StatusCode)
}

// upstream issues GETs against an ordered list of endpoint templates,
// moving to the next template only when the current one answers 404.
type upstream struct {
	name       string
	baseURL    string
	endpoints  []string
	httpClient *http.Client
	logger     *logging.LoggerV2
}

func newUpstream(name string, cfg config.ServiceConfig, logger *logging.LoggerV2) *upstream {
	return &upstream{
		name:       name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		endpoints:  cfg.Endpoints,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (u *upstream) getJSON(ctx context.Context, id, token string) (map[string]interface{}, error) {
	ctx, span := otel.Tracer("clients").Start(ctx, u.name+".get")
	defer span.End()

	for _, tmpl := range u.endpoints {
		path := strings.ReplaceAll(tmpl, "{id}", url.PathEscape(id))
		span.SetAttributes(attribute.String("http.path", path))

		body, status, err := u.do(ctx, path, token)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			u.logger.Warn("Upstream request failed", logging.Fields{
				"service": u.name,
				"path":    path,
				"error":   err.Error(),
			})
			return nil, err
		}

		switch {
		case status == http.StatusNotFound:
			u.logger.Debug("Upstream endpoint returned 404, trying next", logging.Fields{
				"service": u.name,
				"path":    path,
			})
			continue
		case status >= 200 && status < 300:
			return decodeObject(body)
		default:
			span.SetStatus(codes.Error, http.StatusText(status))
			u.logger.Warn("Upstream returned error status", logging.Fields{
				"service":     u.name,
				"path":        path,
				"status_code": status,
			})
			return nil, &StatusError{Service: u.name, Path: path, StatusCode: status}
		}
	}
	return nil, errNotFound
}

func (u *upstream) do(ctx context.Context, path, token string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	setHeaders(ctx, req, token)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func setHeaders(ctx context.Context, req *http.Request, token string) {
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if requestID := middleware.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set(middleware.RequestIDHeader, requestID)
	}
}

func decodeObject(body []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()

	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upstream body: %w", err)
	}
	return out, nil
}
