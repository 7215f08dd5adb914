package bootstrap

import (
	"golang.org/x/time/rate"

	"github.com/kirillkom/filemeta-worker/internal/config"
	"github.com/kirillkom/filemeta-worker/internal/core/usecase"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/resilience"
)

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.RetryMaxAttempts
	out.RetryInitialBackoff = cfg.RetryInitialBackoff
	out.RetryMaxBackoff = cfg.RetryMaxBackoff
	out.BreakerEnabled = cfg.BreakerEnabled
	if cfg.BreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.BreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.BreakerFailureRatio
	out.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	return out
}

// newLimiter returns an unlimited limiter when rps is not positive.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func pollerConfig(cfg config.Config) usecase.PollerConfig {
	return usecase.PollerConfig{
		BatchSize:      cfg.PollBatchSize,
		Interval:       cfg.PollInterval,
		Concurrency:    cfg.WorkerConcurrency,
		AnalyzeTimeout: cfg.AnalyzeTimeout,
	}
}
