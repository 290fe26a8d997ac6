// Package metrics exposes the receiver and transmitter loops' activity as
// Prometheus collectors, registered through promauto the way the rest of
// the fleet does it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector both loops update.
type Metrics struct {
	DecodesTotal        *prometheus.CounterVec // labels: band, mode, type
	CandidatesAdmitted  *prometheus.CounterVec // labels: band, mode
	CandidatesRejected  *prometheus.CounterVec // labels: band, mode, reason
	CandidatesExpired   *prometheus.CounterVec // labels: band, mode
	TransmissionsSent   *prometheus.CounterVec // labels: band, mode, type
	QSOsCompleted       *prometheus.CounterVec // labels: band, mode
	CandidatesLive      *prometheus.GaugeVec   // labels: band, mode
	LastDecodeTimestamp *prometheus.GaugeVec   // labels: band, mode
	HeartbeatsReceived  prometheus.Counter
}

// New builds and registers every collector. Call once per process.
func New() *Metrics {
	return &Metrics{
		DecodesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ft8op_decodes_total",
				Help: "Total decoded messages received from the WSJT-X host, by classification.",
			},
			[]string{"band", "mode", "type"},
		),
		CandidatesAdmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ft8op_candidates_admitted_total",
				Help: "Decoded messages admitted as transmit candidates.",
			},
			[]string{"band", "mode"},
		),
		CandidatesRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ft8op_candidates_rejected_total",
				Help: "Decoded messages rejected by the admission filters, by reason.",
			},
			[]string{"band", "mode", "reason"},
		),
		CandidatesExpired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ft8op_candidates_expired_total",
				Help: "Candidates that aged out before being worked.",
			},
			[]string{"band", "mode"},
		),
		TransmissionsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ft8op_transmissions_sent_total",
				Help: "Outbound replies sent to the WSJT-X host, by message type.",
			},
			[]string{"band", "mode", "type"},
		),
		QSOsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ft8op_qsos_completed_total",
				Help: "Exchanges that reached a final 73.",
			},
			[]string{"band", "mode"},
		),
		CandidatesLive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ft8op_candidates_live",
				Help: "Candidates currently eligible for transmission.",
			},
			[]string{"band", "mode"},
		),
		LastDecodeTimestamp: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ft8op_last_decode_timestamp_seconds",
				Help: "Unix timestamp of the most recent decode, by band/mode.",
			},
			[]string{"band", "mode"},
		),
		HeartbeatsReceived: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ft8op_heartbeats_received_total",
				Help: "Heartbeat packets received from the WSJT-X host.",
			},
		),
	}
}
