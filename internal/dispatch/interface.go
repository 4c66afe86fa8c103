package dispatch

import (
	"context"

	"github.com/bankrecon/recon-host/internal/protocol"
	"github.com/bankrecon/recon-host/internal/runner"
)

//go:generate mockgen -destination=mocks/mock_reconciler.go -package=mocks github.com/bankrecon/recon-host/internal/dispatch Reconciler

// Reconciler runs one reconciliation. *runner.Runner implements it.
type Reconciler interface {
	Run(ctx context.Context, bank string, opts protocol.Options) (*runner.Outcome, error)
}

// HealthReporter produces the ping response. *doctor.Doctor implements it.
type HealthReporter interface {
	Snapshot(ctx context.Context) protocol.Response
}
