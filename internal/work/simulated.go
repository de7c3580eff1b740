// Package work holds the thumbnail work unit. No image is actually fetched or
// resized: latency and failures are simulated according to a Policy.
package work

import (
	"context"
	"fmt"
	"math/rand/v2"
	"thumbq/internal/config"
	"thumbq/internal/domain"
	"thumbq/internal/ports"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Policy scales service time and failure probability inversely with priority.
type Policy struct {
	LatencyMin      time.Duration
	LatencyMax      time.Duration
	LatencyFloor    time.Duration
	BaseFailureRate float64
	MinFailureRate  float64
}

func PolicyFromConfig(c config.Work) Policy {
	return Policy{
		LatencyMin:      c.LatencyMin,
		LatencyMax:      c.LatencyMax,
		LatencyFloor:    c.LatencyFloor,
		BaseFailureRate: c.BaseFailureRate,
		MinFailureRate:  c.MinFailureRate,
	}
}

// Latency maps a base sample in [0,1) to the service time for priority p.
func (pol Policy) Latency(p domain.Priority, sample float64) time.Duration {
	base := pol.LatencyMin + time.Duration(sample*float64(pol.LatencyMax-pol.LatencyMin))
	d := time.Duration(float64(base) / float64(clamp(p)))
	return max(d, pol.LatencyFloor)
}

func (pol Policy) FailureRate(p domain.Priority) float64 {
	return max(pol.BaseFailureRate/float64(clamp(p)), pol.MinFailureRate)
}

func clamp(p domain.Priority) domain.Priority {
	if p < 1 {
		return 1
	}
	return p
}

var _ ports.WorkUnit = (*Simulated)(nil)

type Simulated struct {
	Policy         Policy
	ArtifactPrefix string
	// Float returns a uniform sample in [0,1). Defaults to math/rand/v2.
	Float func() float64
}

func NewSimulated(c config.Work) *Simulated {
	return &Simulated{Policy: PolicyFromConfig(c), ArtifactPrefix: c.ArtifactPrefix, Float: rand.Float64}
}

func (s *Simulated) Do(ctx context.Context, t domain.Task) domain.Result {
	float := s.Float
	if float == nil {
		float = rand.Float64
	}

	d := s.Policy.Latency(t.Priority, float())
	log.Ctx(ctx).Debug().
		Int("priority", int(t.Priority)).
		Dur("latency", d).
		Msg("processing thumbnail")

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return domain.Failure(fmt.Sprintf("processing interrupted: %v", ctx.Err()))
	case <-timer.C:
	}

	if float() < s.Policy.FailureRate(t.Priority) {
		return domain.Failure(fmt.Sprintf("simulated thumbnail service error (priority: %d)", t.Priority))
	}
	return domain.Success(s.ArtifactPrefix + uuid.NewString() + ".jpg")
}
