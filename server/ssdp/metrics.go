package ssdp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	datagramsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upnp_ssdp_datagrams_sent_total",
		Help: "SSDP datagrams written to the multicast socket",
	})
	datagramsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upnp_ssdp_datagrams_received_total",
		Help: "SSDP datagrams read from the multicast socket",
	})
	parseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upnp_ssdp_parse_errors_total",
		Help: "SSDP datagrams dropped because they could not be parsed",
	})
	searchesAnswered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upnp_ssdp_searches_answered_total",
		Help: "M-SEARCH requests answered with a 200 response",
	})
)
