package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// unmatchedRoute метка пути для запросов мимо маршрутов, чтобы не плодить серии
const unmatchedRoute = "unmatched"

// PrometheusMiddleware HTTP-метрики gin с пространством имен сервиса:
//
//	<service>_http_request_duration_seconds{method,path,status}
//	<service>_http_requests_inflight
//	<service>_http_request_errors_total{method,path,status} (4xx/5xx)
//
// path это шаблон маршрута (/api/zones/:id), а не фактический URL.
type PrometheusMiddleware struct {
	reqDuration *prometheus.HistogramVec
	reqInflight prometheus.Gauge
	reqErrors   *prometheus.CounterVec
}

// NewPrometheusMiddleware регистрирует метрики в reg
func NewPrometheusMiddleware(service string, reg prometheus.Registerer) *PrometheusMiddleware {
	factory := promauto.With(reg)
	labels := []string{"method", "path", "status"}
	return &PrometheusMiddleware{
		reqDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_request_duration_seconds",
			Help:      "Длительность HTTP-запросов.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		}, labels),
		reqInflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: service,
			Name:      "http_requests_inflight",
			Help:      "Текущее количество обрабатываемых HTTP-запросов.",
		}),
		reqErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "http_request_errors_total",
			Help:      "Общее число запросов, завершившихся ошибкой (4xx/5xx).",
		}, labels),
	}
}

// Handler подключается через router.Use()
func (pm *PrometheusMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		pm.reqInflight.Inc()
		defer pm.reqInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		code := c.Writer.Status()
		lv := prometheus.Labels{"method": c.Request.Method, "path": path, "status": strconv.Itoa(code)}

		pm.reqDuration.With(lv).Observe(time.Since(start).Seconds())
		if code >= 400 {
			pm.reqErrors.With(lv).Inc()
		}
	}
}

// RegisterMetricsEndpoint добавляет GET /metrics для g
func (pm *PrometheusMiddleware) RegisterMetricsEndpoint(r *gin.Engine, g prometheus.Gatherer) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}
