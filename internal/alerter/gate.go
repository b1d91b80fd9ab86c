package alerter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/metrics"
	"github.com/sentryhome/sentryhome/internal/types"
)

// DefaultDeliveryTimeout bounds a single hand-off to the deliverer.
const DefaultDeliveryTimeout = 10 * time.Second

// Deliverer sends a notification for a newly created alert.
type Deliverer interface {
	Deliver(ctx context.Context, alert *types.Alert, trigger types.Alarm) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, alert *types.Alert, trigger types.Alarm) error

// Deliver calls f.
func (f DelivererFunc) Deliver(ctx context.Context, alert *types.Alert, trigger types.Alarm) error {
	return f(ctx, alert, trigger)
}

// ShouldNotify decides whether an accepted alarm is notified: only alarms
// that created a new alert are.
func ShouldNotify(isNew bool) bool {
	return isNew
}

// Gate hands new alerts to the deliverer without blocking the caller.
// Delivery failures are logged and never reach the alert queue.
type Gate struct {
	deliverer Deliverer
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

// NewGate creates a gate around deliverer. A non-positive timeout uses
// DefaultDeliveryTimeout.
func NewGate(deliverer Deliverer, timeout time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Gate {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	return &Gate{
		deliverer: deliverer,
		timeout:   timeout,
		metrics:   m,
		logger:    logger.With().Str("component", "notification-gate").Logger(),
	}
}

// Dispatch starts delivery of alert in the background.
func (g *Gate) Dispatch(alert *types.Alert, trigger types.Alarm) {
	if g == nil || g.deliverer == nil || alert == nil {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.deliver(alert, trigger); err != nil {
			g.metrics.IncNotification("failed")
			g.logger.Warn().
				Err(err).
				Str("signature", alert.Signature).
				Msg("Failed to deliver alert notification")
			return
		}
		g.metrics.IncNotification("delivered")
		g.logger.Debug().Str("signature", alert.Signature).Msg("Alert notification delivered")
	}()
}

func (g *Gate) deliver(alert *types.Alert, trigger types.Alarm) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deliverer panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	return g.deliverer.Deliver(ctx, alert, trigger)
}

// Wait blocks until every started delivery has finished.
func (g *Gate) Wait() {
	if g == nil {
		return
	}
	g.wg.Wait()
}
