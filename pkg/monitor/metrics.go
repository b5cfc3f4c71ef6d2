// Package monitor holds the Prometheus metrics of Pokit acquisitions and an optional
// /metrics endpoint.
package monitor

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Acquisition results.
const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
	ResultRejected  = "rejected"
)

var (
	SamplesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokit_samples_decoded_total",
			Help: "Samples decoded from DSO and data logger reading notifications",
		},
		[]string{"service", "mode"},
	)

	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokit_frames_dropped_total",
			Help: "Notifications that could not be decoded and were discarded",
		},
		[]string{"service"},
	)

	Acquisitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokit_acquisitions_total",
			Help: "DSO and data logger acquisitions by result",
		},
		[]string{"service", "result"},
	)

	MultimeterReadings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokit_multimeter_readings_total",
			Help: "Multimeter readings received",
		},
		[]string{"mode"},
	)

	ConnectedDevices = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pokit_connected_devices",
		Help: "Devices with an open connection",
	})
)

var collectors = []prometheus.Collector{
	SamplesDecoded,
	FramesDropped,
	Acquisitions,
	MultimeterReadings,
	ConnectedDevices,
}

// Register adds every metric to reg. Metrics that are already registered are left alone, so
// Register may be called more than once.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Serve exposes the default registry on addr at /metrics. The returned server is already
// listening in the background; shut it down with Close or Shutdown.
func Serve(addr string, log logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	log.Infof("metrics server listening on %s", addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server error: %v", err)
		}
	}()
	return srv
}
