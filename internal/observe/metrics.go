package observe

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	onlinePeers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_relay_online_peers",
			Help: "Number of peers currently registered",
		},
		[]string{"transport"}, // tcp|websocket
	)

	framesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_frames_received_total",
			Help: "Total inbound frames by origin",
		},
		[]string{"origin"}, // local|remote
	)

	frameBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_relay_frame_bytes_total",
		Help: "Total bytes of inbound frames",
	})

	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_sends_total",
			Help: "Total per-peer sends attempted during fan-out by result",
		},
		[]string{"result"}, // ok|error
	)

	evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_relay_evictions_total",
		Help: "Total peers evicted after a failed send",
	})

	acceptErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_accept_errors_total",
			Help: "Total accept errors by kind",
		},
		[]string{"kind"}, // transient|fatal|closed
	)

	federationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_federation_total",
			Help: "Total federation bus operations by result",
		},
		[]string{"op", "result"},
	)

	fanoutSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_relay_fanout_seconds",
		Help:    "Duration of one fan-out sweep",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
)

func init() {
	prometheus.MustRegister(
		onlinePeers,
		framesReceivedTotal,
		frameBytesTotal,
		sendsTotal,
		evictionsTotal,
		acceptErrorsTotal,
		federationTotal,
		fanoutSeconds,
	)
}

func AddOnline(transport string, delta float64) { onlinePeers.WithLabelValues(transport).Add(delta) }

func IncFrame(origin string, size int) {
	framesReceivedTotal.WithLabelValues(origin).Inc()
	frameBytesTotal.Add(float64(size))
}

func IncSend(ok bool) {
	if ok {
		sendsTotal.WithLabelValues("ok").Inc()
		return
	}
	sendsTotal.WithLabelValues("error").Inc()
}

func IncEviction()                    { evictionsTotal.Inc() }
func IncAcceptError(kind string)      { acceptErrorsTotal.WithLabelValues(kind).Inc() }
func IncFederation(op, result string) { federationTotal.WithLabelValues(op, result).Inc() }
func ObserveFanout(seconds float64)   { fanoutSeconds.Observe(seconds) }
