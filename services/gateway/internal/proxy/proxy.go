package proxy

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	apperrors "github.com/intelliguard/intelliguard/pkg/errors"
	pkghttputil "github.com/intelliguard/intelliguard/pkg/httputil"
	"github.com/intelliguard/intelliguard/pkg/middleware"
)

// Timeouts bound each upstream hop.
type Timeouts struct {
	Dial     time.Duration
	Response time.Duration
	Idle     time.Duration
}

// DefaultTimeouts returns 5s dial, 30s response header and 90s idle timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{Dial: 5 * time.Second, Response: 30 * time.Second, Idle: 90 * time.Second}
}

// ServiceProxy manages reverse proxies to backend services.
type ServiceProxy struct {
	routes map[string]*httputil.ReverseProxy
	logger *slog.Logger
}

// NewServiceProxy creates a reverse proxy per named backend URL.
func NewServiceProxy(services map[string]string, timeouts Timeouts, logger *slog.Logger) (*ServiceProxy, error) {
	sp := &ServiceProxy{
		routes: make(map[string]*httputil.ReverseProxy, len(services)),
		logger: logger,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeouts.Dial}).DialContext,
		ResponseHeaderTimeout: timeouts.Response,
		IdleConnTimeout:       timeouts.Idle,
		MaxIdleConnsPerHost:   32,
	}

	for name, rawURL := range services {
		target, err := url.Parse(rawURL)
		if err != nil || target.Host == "" {
			return nil, fmt.Errorf("invalid URL %q for service %s", rawURL, name)
		}

		p := httputil.NewSingleHostReverseProxy(target)
		p.Transport = transport
		p.ErrorHandler = sp.errorHandler(name)
		sp.routes[name] = p

		logger.Info("registered service proxy",
			slog.String("service", name),
			slog.String("target", rawURL),
		)
	}
	return sp, nil
}

// Handler returns an http.Handler that proxies requests to the named backend
// service. The correlation id assigned by the gateway is forwarded.
func (sp *ServiceProxy) Handler(serviceName string) http.Handler {
	p, ok := sp.routes[serviceName]
	if !ok {
		sp.logger.Error("no proxy registered for service", slog.String("service", serviceName))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pkghttputil.WriteError(w, r,
				apperrors.New("SERVICE_UNAVAILABLE", "service not configured", http.StatusBadGateway, apperrors.ErrServiceUnavail),
				sp.logger)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := w.Header().Get(middleware.CorrelationIDHeader); id != "" {
			r.Header.Set(middleware.CorrelationIDHeader, id)
		}
		p.ServeHTTP(w, r)
	})
}

func (sp *ServiceProxy) errorHandler(serviceName string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		sp.logger.ErrorContext(r.Context(), "proxy error",
			slog.String("service", serviceName),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		pkghttputil.WriteJSON(w, http.StatusBadGateway, pkghttputil.Response{Error: &pkghttputil.ErrorResponse{
			Code:    "BAD_GATEWAY",
			Message: "upstream service unavailable",
		}})
	}
}
