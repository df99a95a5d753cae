package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments shared across services. Injected
// with WithMetrics options; nil-safe increment helpers keep services free of
// nil checks.
type Metrics struct {
	UsersCreated     prometheus.Counter
	RolesGranted     prometheus.Counter
	LicensesMinted   prometheus.Counter
	SRsCreated       prometheus.Counter
	BidsPlaced       prometheus.Counter
	DisputesResolved prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		UsersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geekship_users_created_total",
			Help: "Total number of users registered",
		}),
		RolesGranted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geekship_roles_granted_total",
			Help: "Total number of approved role requests",
		}),
		LicensesMinted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geekship_licenses_minted_total",
			Help: "Total number of driving licenses minted",
		}),
		SRsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geekship_service_requests_created_total",
			Help: "Total number of service requests created",
		}),
		BidsPlaced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geekship_auction_bids_placed_total",
			Help: "Total number of accepted auction bids",
		}),
		DisputesResolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geekship_disputes_resolved_total",
			Help: "Total number of disputes resolved by quorum",
		}),
	}
}

func (m *Metrics) IncUsersCreated() {
	if m != nil {
		m.UsersCreated.Inc()
	}
}

func (m *Metrics) IncRolesGranted() {
	if m != nil {
		m.RolesGranted.Inc()
	}
}

func (m *Metrics) IncLicensesMinted() {
	if m != nil {
		m.LicensesMinted.Inc()
	}
}

func (m *Metrics) IncSRsCreated() {
	if m != nil {
		m.SRsCreated.Inc()
	}
}

func (m *Metrics) IncBidsPlaced() {
	if m != nil {
		m.BidsPlaced.Inc()
	}
}

func (m *Metrics) IncDisputesResolved() {
	if m != nil {
		m.DisputesResolved.Inc()
	}
}
