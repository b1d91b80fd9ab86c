package notifier

import (
	"context"
	"errors"

	"github.com/sentryhome/sentryhome/internal/alerter"
	"github.com/sentryhome/sentryhome/internal/types"
)

// Multi fans a delivery out to several deliverers in order.
type Multi struct {
	deliverers []alerter.Deliverer
}

// NewMulti skips nil deliverers.
func NewMulti(deliverers ...alerter.Deliverer) *Multi {
	m := &Multi{}
	for _, d := range deliverers {
		if d != nil {
			m.deliverers = append(m.deliverers, d)
		}
	}
	return m
}

// Deliver calls every deliverer and joins their errors.
func (m *Multi) Deliver(ctx context.Context, alert *types.Alert, trigger types.Alarm) error {
	var errs []error
	for _, d := range m.deliverers {
		if err := d.Deliver(ctx, alert, trigger); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
