package mapview

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/geomark/mapview/internal/mapview"

type meters struct {
	moves metric.Int64Counter
}

func newMeters() (*meters, error) {
	moves, err := otel.Meter(instrumentationName).Int64Counter(
		"mapview.camera.moves",
		metric.WithDescription("Camera moves issued by the view, by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating camera move counter: %w", err)
	}
	return &meters{moves: moves}, nil
}

func (m *meters) move(kind string) {
	m.moves.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}
