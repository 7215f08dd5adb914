package usecase

import (
	"time"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
)

// AnalysisRecorder observes orchestrator outcomes.
type AnalysisRecorder interface {
	StartAnalysis()
	FinishAnalysis(strategy domain.Strategy, status domain.OutcomeStatus, duration time.Duration)
}

// PollRecorder observes queue interaction.
type PollRecorder interface {
	ObserveReceive(count int, err error)
	ObserveQueueLag(lag time.Duration)
	ObserveAck(err error)
}

// ModelRecorder observes generative model invocations.
type ModelRecorder interface {
	ObserveModelCall(purpose string, duration time.Duration, err error)
}

type noopRecorder struct{}

func (noopRecorder) StartAnalysis()                                                      {}
func (noopRecorder) FinishAnalysis(domain.Strategy, domain.OutcomeStatus, time.Duration) {}
func (noopRecorder) ObserveReceive(int, error)                                           {}
func (noopRecorder) ObserveQueueLag(time.Duration)                                       {}
func (noopRecorder) ObserveAck(error)                                                    {}
func (noopRecorder) ObserveModelCall(string, time.Duration, error)                       {}
