package fetcher

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/hamnet/maptile/internal/fetcher"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
