package orch

import (
	"context"

	"github.com/dkeye/copilot/internal/app/copilot"
	"github.com/dkeye/copilot/internal/core"
	"github.com/dkeye/copilot/internal/domain"
)

// PublishTranscript relays the transcript and feeds the copilot pipeline.
func (o *Orchestrator) PublishTranscript(ev domain.TranscriptEvent) core.PublishResult {
	res := o.Publish(domain.EventTranscript, ev.InterviewID, ev)
	if o.Copilot != nil {
		o.Copilot.OnTranscript(ev)
	}
	return res
}

func (o *Orchestrator) PublishSuggestions(ev domain.SuggestionEvent) core.PublishResult {
	return o.Publish(domain.EventSuggestions, ev.InterviewID, ev)
}

// AnalyzeLandmarks derives visual metrics for one frame and relays them.
func (o *Orchestrator) AnalyzeLandmarks(id domain.InterviewID, landmarks []copilot.Point) {
	if o.Copilot == nil {
		return
	}
	o.Copilot.OnLandmarks(id, landmarks)
}

// StopCopilot flushes the interview's pending transcript.
func (o *Orchestrator) StopCopilot(ctx context.Context, id domain.InterviewID) {
	if o.Copilot == nil {
		return
	}
	o.Copilot.Stop(ctx, id)
}
