package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector methods are safe on a nil receiver so callers can pass it on
// unconditionally when metrics are disabled.
type Collector struct {
	reg *prometheus.Registry

	ActiveTrains    *prometheus.GaugeVec // status label: dwelling|moving
	ScheduledTrips  prometheus.Gauge
	RejectedTrips   prometheus.Gauge
	ScheduleReloads *prometheus.CounterVec // reason label: update|ping_failure

	TickDuration      prometheus.Histogram
	ReconcileDuration prometheus.Histogram
	ReconcileCycles   prometheus.Counter
	OffsetsUpdated    prometheus.Counter
	TripsUnmatched    prometheus.Counter
	TripsWithoutCode  prometheus.Counter
	StationFetches    *prometheus.CounterVec // result label: ok|error

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	HTTPRequests *prometheus.CounterVec // route, code

	TickInterval      prometheus.Gauge // seconds
	ReconcileInterval prometheus.Gauge // seconds
}

func NewCollector(tickInterval, reconcileInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveTrains: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trains_active",
			Help: "Trains in the latest tick by motion status.",
		}, []string{"status"}),
		ScheduledTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trains_schedule_trips",
			Help: "Valid trips in the loaded schedule.",
		}),
		RejectedTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trains_schedule_rejected_trips",
			Help: "Trips rejected at load for inconsistent stop times.",
		}),
		ScheduleReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trains_schedule_reloads_total",
			Help: "Schedule database switches by reason.",
		}, []string{"reason"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trains_tick_duration_seconds",
			Help:    "Duration of position tick computations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		ReconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trains_reconcile_duration_seconds",
			Help:    "Duration of a reconciliation cycle including live fetches.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ReconcileCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trains_reconcile_cycles_total",
			Help: "Total reconciliation cycles run.",
		}),
		OffsetsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trains_offsets_updated_total",
			Help: "Trip offsets overwritten from live data.",
		}),
		TripsUnmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trains_reconcile_unmatched_total",
			Help: "Trips with no acceptable live entry in a cycle.",
		}),
		TripsWithoutCode: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trains_reconcile_no_station_code_total",
			Help: "Trips whose next stop has no live station code.",
		}),
		StationFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trains_live_station_fetches_total",
			Help: "Live feed station fetches by result.",
		}, []string{"result"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trains_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trains_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trains_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trains_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trains_http_requests_total",
			Help: "HTTP API requests by route and status code.",
		}, []string{"route", "code"}),
		TickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trains_tick_interval_seconds",
			Help: "Position tick interval in seconds.",
		}),
		ReconcileInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trains_reconcile_interval_seconds",
			Help: "Reconciliation interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.ActiveTrains, c.ScheduledTrips, c.RejectedTrips, c.ScheduleReloads,
		c.TickDuration, c.ReconcileDuration, c.ReconcileCycles,
		c.OffsetsUpdated, c.TripsUnmatched, c.TripsWithoutCode, c.StationFetches,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.HTTPRequests, c.TickInterval, c.ReconcileInterval,
	)

	c.TickInterval.Set(tickInterval.Seconds())
	c.ReconcileInterval.Set(reconcileInterval.Seconds())

	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	logger.Info("metrics listening", slog.String("addr", addr))
	return srv
}

func (c *Collector) SetSchedule(trips, rejected int) {
	if c == nil {
		return
	}
	c.ScheduledTrips.Set(float64(trips))
	c.RejectedTrips.Set(float64(rejected))
}

func (c *Collector) ScheduleReloadInc(reason string) {
	if c != nil {
		c.ScheduleReloads.WithLabelValues(reason).Inc()
	}
}

func (c *Collector) ObserveTick(d time.Duration, byStatus map[string]int) {
	if c == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
	for status, n := range byStatus {
		c.ActiveTrains.WithLabelValues(status).Set(float64(n))
	}
}

func (c *Collector) ObserveReconcile(d time.Duration, updated, unmatched, noCode int) {
	if c == nil {
		return
	}
	c.ReconcileCycles.Inc()
	c.ReconcileDuration.Observe(d.Seconds())
	c.OffsetsUpdated.Add(float64(updated))
	c.TripsUnmatched.Add(float64(unmatched))
	c.TripsWithoutCode.Add(float64(noCode))
}

// StationFetchInc implements livefeed.Metrics.
func (c *Collector) StationFetchInc(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.StationFetches.WithLabelValues("ok").Inc()
	} else {
		c.StationFetches.WithLabelValues("error").Inc()
	}
}

func (c *Collector) NATSPublishedInc() {
	if c != nil {
		c.NATSPublished.Inc()
	}
}

func (c *Collector) NATSPublishErrInc() {
	if c != nil {
		c.NATSPublishErrs.Inc()
	}
}

func (c *Collector) PublishObserve(d time.Duration) {
	if c != nil {
		c.PublishDuration.Observe(d.Seconds())
	}
}

func (c *Collector) NATSSetConnected(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) HTTPRequestInc(route string, code int) {
	if c != nil {
		c.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	}
}
