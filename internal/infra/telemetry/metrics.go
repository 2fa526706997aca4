package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/usecase"
)

const namespace = "registry"

// register adds c to reg, reusing an identical collector that is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// ApprovalCollectors records change request submissions and decisions.
type ApprovalCollectors struct {
	Submitted *prometheus.CounterVec
	Decided   *prometheus.CounterVec
}

// NewApprovalCollectors registers the approval workflow counters with reg.
func NewApprovalCollectors(reg prometheus.Registerer) (*ApprovalCollectors, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	submitted, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "approval",
		Name:      "change_requests_submitted_total",
		Help:      "Change requests submitted partitioned by target type and operation.",
	}, []string{"target_type", "operation"}))
	if err != nil {
		return nil, err
	}

	decided, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "approval",
		Name:      "change_requests_decided_total",
		Help:      "Change request decisions partitioned by target type and outcome.",
	}, []string{"target_type", "outcome"}))
	if err != nil {
		return nil, err
	}

	return &ApprovalCollectors{Submitted: submitted, Decided: decided}, nil
}

// IncSubmitted implements usecase.ApprovalMetrics.
func (m *ApprovalCollectors) IncSubmitted(targetType domain.TargetType, op domain.Operation) {
	m.Submitted.WithLabelValues(string(targetType), string(op)).Inc()
}

// IncDecided implements usecase.ApprovalMetrics.
func (m *ApprovalCollectors) IncDecided(targetType domain.TargetType, outcome string) {
	m.Decided.WithLabelValues(string(targetType), outcome).Inc()
}

// GuardCollectors records authentication outcomes, lockouts and credential changes.
type GuardCollectors struct {
	Logins          *prometheus.CounterVec
	Lockouts        prometheus.Counter
	PasswordChanges *prometheus.CounterVec
}

// NewGuardCollectors registers the account security counters with reg.
func NewGuardCollectors(reg prometheus.Registerer) (*GuardCollectors, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	logins, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts partitioned by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	lockouts, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "lockouts_total",
		Help:      "Accounts locked after repeated failed logins.",
	}))
	if err != nil {
		return nil, err
	}

	changes, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "password_changes_total",
		Help:      "Password change attempts partitioned by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	return &GuardCollectors{Logins: logins, Lockouts: lockouts, PasswordChanges: changes}, nil
}

// IncLoginOutcome implements usecase.GuardMetrics.
func (m *GuardCollectors) IncLoginOutcome(outcome domain.LoginOutcome) {
	m.Logins.WithLabelValues(string(outcome)).Inc()
}

// IncLockout implements usecase.GuardMetrics.
func (m *GuardCollectors) IncLockout() {
	m.Lockouts.Inc()
}

// IncPasswordChange implements usecase.GuardMetrics.
func (m *GuardCollectors) IncPasswordChange(outcome string) {
	m.PasswordChanges.WithLabelValues(outcome).Inc()
}

var (
	_ usecase.ApprovalMetrics = (*ApprovalCollectors)(nil)
	_ usecase.GuardMetrics    = (*GuardCollectors)(nil)
)
