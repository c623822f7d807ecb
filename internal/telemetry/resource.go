package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// AttrDeviceName is the resource attribute carrying the configured device name
const AttrDeviceName = attribute.Key("fieldsync.device.name")

// NewResource describes this engine instance. The device name doubles as the service
// instance id so a collector can tell field devices apart.
func NewResource(ctx context.Context, serviceName, serviceVersion, deviceName string) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	}
	if deviceName != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(deviceName), AttrDeviceName.String(deviceName))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
