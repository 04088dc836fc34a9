package server

import (
	"errors"

	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/freekieb7/helios/server"

type instruments struct {
	accepted          metric.Int64Counter
	rejected          metric.Int64Counter
	active            metric.Int64UpDownCounter
	handshakeFailures metric.Int64Counter
	requests          metric.Int64Counter
	duration          metric.Float64Histogram
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	var (
		inst instruments
		err  error
		errs []error
	)

	inst.accepted, err = meter.Int64Counter("helios.connections.accepted",
		metric.WithDescription("Connections admitted by the connection gate"),
		metric.WithUnit("{connection}"))
	errs = append(errs, err)

	inst.rejected, err = meter.Int64Counter("helios.connections.rejected",
		metric.WithDescription("Connections turned away because the gate was full"),
		metric.WithUnit("{connection}"))
	errs = append(errs, err)

	inst.active, err = meter.Int64UpDownCounter("helios.connections.active",
		metric.WithDescription("Connections currently being served"),
		metric.WithUnit("{connection}"))
	errs = append(errs, err)

	inst.handshakeFailures, err = meter.Int64Counter("helios.handshake.failures",
		metric.WithDescription("TLS handshakes that failed or timed out"),
		metric.WithUnit("{handshake}"))
	errs = append(errs, err)

	inst.requests, err = meter.Int64Counter("helios.requests",
		metric.WithDescription("Responses written, by status code"),
		metric.WithUnit("{request}"))
	errs = append(errs, err)

	inst.duration, err = meter.Float64Histogram("helios.request.duration",
		metric.WithDescription("Time from the end of the request header to the flushed response"),
		metric.WithUnit("s"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &inst, nil
}
