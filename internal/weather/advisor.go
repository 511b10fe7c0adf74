// Package weather flags rain risk for outdoor events. It is advisory:
// provider failures never block the caller.
package weather

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/pkg/logger"
	"github.com/capitalize-ai/event-assistant/pkg/metrics"
)

// DefaultRainRiskThreshold is the precipitation probability, in percent,
// at or above which a warning is raised.
const DefaultRainRiskThreshold = 50

// Advisor turns forecasts into warnings.
type Advisor struct {
	forecaster Forecaster
	threshold  int
	timeout    time.Duration
	log        *logger.Logger
}

// NewAdvisor creates an advisor. A nil forecaster never warns.
func NewAdvisor(forecaster Forecaster, threshold int, timeout time.Duration, log *logger.Logger) *Advisor {
	if threshold <= 0 {
		threshold = DefaultRainRiskThreshold
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Advisor{forecaster: forecaster, threshold: threshold, timeout: timeout, log: logger.OrNop(log).Named("weather")}
}

// Assess returns a warning when rain is likely at the venue when the event
// starts. Any provider error yields no warning.
func (a *Advisor) Assess(ctx context.Context, start time.Time, venue Location, category string) (string, bool) {
	if a.forecaster == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	fc, err := a.forecast(ctx, start, venue)
	if err != nil {
		metrics.RecordUpstreamFailure("forecast")
		a.log.Warn("forecast unavailable, no warning issued",
			zap.String("venue", venue.Label),
			zap.Time("start", start),
			zap.Error(err),
		)
		return "", false
	}
	if fc == nil || fc.PrecipitationProbability < a.threshold {
		return "", false
	}
	return warningText(fc.PrecipitationProbability, venue.Label, start, category), true
}

// forecast turns a provider panic into an error.
func (a *Advisor) forecast(ctx context.Context, start time.Time, venue Location) (fc *Forecast, err error) {
	defer func() {
		if r := recover(); r != nil {
			fc, err = nil, fmt.Errorf("forecaster panicked: %v", r)
		}
	}()
	return a.forecaster.Forecast(ctx, start, venue)
}

func warningText(probability int, venue string, start time.Time, category string) string {
	what := "ngoài trời"
	if category != "" {
		what = category + " ngoài trời"
	}
	return fmt.Sprintf("Dự báo có %d%% khả năng mưa tại %s vào %s. Sự kiện %s có thể bị ảnh hưởng.",
		probability, venue, start.Format("15:04 02/01/2006"), what)
}
