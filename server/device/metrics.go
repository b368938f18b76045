package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upnp_soap_actions_total",
		Help: "SOAP actions dispatched successfully",
	})
	actionFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upnp_soap_faults_total",
		Help: "SOAP requests answered with a UPnP fault",
	})
)
