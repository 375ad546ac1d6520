// Package app assembles the fetchers, oracles and exporters of a run from
// configuration and drives the pipeline stages exposed by the CLI.
package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/conference-icp-scout/internal/metrics"
	"github.com/shpitdev/conference-icp-scout/internal/oracle"
	s3io "github.com/shpitdev/conference-icp-scout/pkg/pipeline/io/s3"
)

// Config carries everything a run needs. Zero values pick the package
// defaults of the component they configure.
type Config struct {
	Gemini oracle.Config

	// PlanFile replaces the LLM planner with a YAML/JSON plan.
	PlanFile string

	FetchTimeout   time.Duration
	RenderTimeout  time.Duration
	RenderDisabled bool
	// ChromePath points at a Chrome/Chromium binary; empty searches PATH.
	ChromePath string

	MaxRetries     int
	RequestTimeout time.Duration
	RateLimitRPS   float64

	S3 s3io.Config

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}
