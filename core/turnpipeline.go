package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/ema-phone/core/audio"
	"github.com/koscakluka/ema-phone/core/llms"
	"github.com/koscakluka/ema-phone/core/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const contextInstructions = "Use the following knowledge to answer the caller when it is relevant."

// errNotDelivered stops a turn whose frames can no longer reach the caller.
var errNotDelivered = errors.New("frame not delivered")

// runTurn processes one utterance. A failed step is reported to the caller
// as a single error frame; the session stays open.
func (s *Session) runTurn(utterance []byte) {
	streamID := s.StreamID()
	// The connection span lasts as long as the call, so each turn is its own
	// trace linked back to it.
	ctx, span := tracer.Start(s.ctx, "run turn",
		trace.WithNewRoot(),
		trace.WithLinks(trace.LinkFromContext(s.ctx)),
		trace.WithAttributes(
			attribute.String("session.id", s.id.String()),
			attribute.String("stream.id", streamID),
			attribute.Int("utterance.bytes", len(utterance)),
		))
	defer span.End()

	if bytesPerSecond := audio.GetTelephonyEncodingInfo().BytesPerSecond(); bytesPerSecond > 0 {
		span.SetAttributes(attribute.Float64("utterance.seconds", float64(len(utterance))/float64(bytesPerSecond)))
	}

	start := time.Now()
	err := s.runTurnSteps(ctx, streamID, utterance)
	outcome := "completed"

	var stepErr *PipelineStepError
	switch {
	case err == nil:
		completedTurns.Add(ctx, 1)
	case !s.isActive() || errors.Is(err, errNotDelivered):
		outcome = "abandoned"
		logger.DebugContext(ctx, "turn abandoned", "session_id", s.id, "error", err)
	case errors.As(err, &stepErr):
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		failedTurns.Add(ctx, 1, metric.WithAttributes(attribute.String("step", string(stepErr.Step))))
		logger.ErrorContext(ctx, "turn failed",
			"session_id", s.id,
			"stream_id", streamID,
			"step", string(stepErr.Step),
			"error", err)
		if sendErr := s.send(protocol.ErrorFrame{StreamID: streamID, Message: stepErr.message()}); sendErr != nil {
			logger.DebugContext(ctx, "failed to report turn failure", "session_id", s.id, "error", sendErr)
		}
	default:
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "turn failed", "session_id", s.id, "error", err)
	}

	turnDuration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// runTurnSteps wraps the steps so a panicking provider fails only its turn.
func (s *Session) runTurnSteps(ctx context.Context, streamID string, utterance []byte) (err error) {
	step := StepTranscription
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &PipelineStepError{Step: step, Err: fmt.Errorf("panicked: %v", recovered)}
		}
	}()

	transcript, err := s.transcribe(ctx, utterance)
	if err != nil {
		return &PipelineStepError{Step: StepTranscription, Err: err}
	}
	if transcript == "" {
		logger.DebugContext(ctx, "utterance produced no transcript", "session_id", s.id)
		return nil
	}
	if !s.conversation.append(llms.NewUserTurn(transcript), s.isActive) {
		return ErrSessionClosed
	}

	step = StepRetrieval
	knowledge, err := s.retrieve(ctx, transcript)
	if err != nil {
		return &PipelineStepError{Step: StepRetrieval, Err: err}
	}

	step = StepGeneration
	history := s.conversation.History()
	reply, err := s.generate(ctx, history, composePrompt(knowledge, history))
	if err != nil {
		return &PipelineStepError{Step: StepGeneration, Err: err}
	}
	if reply == "" {
		logger.DebugContext(ctx, "generation produced no reply", "session_id", s.id)
		return nil
	}
	if !s.conversation.append(llms.NewAssistantTurn(reply), s.isActive) {
		return ErrSessionClosed
	}

	if err := s.send(protocol.TextFrame{StreamID: streamID, Content: reply}); err != nil {
		return fmt.Errorf("%w: %w", errNotDelivered, err)
	}

	step = StepSynthesis
	return s.speak(ctx, streamID, reply)
}

func (s *Session) transcribe(ctx context.Context, utterance []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe")
	defer span.End()

	transcript, err := s.providers.Transcriber.Transcribe(ctx, utterance)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return strings.TrimSpace(transcript), nil
}

func (s *Session) retrieve(ctx context.Context, transcript string) (string, error) {
	ctx, span := tracer.Start(ctx, "retrieve")
	defer span.End()

	knowledge, err := s.providers.Retriever.Retrieve(ctx, transcript)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("retrieval.context_length", len(knowledge)))
	return knowledge, nil
}

func (s *Session) generate(ctx context.Context, history []llms.Turn, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "generate")
	defer span.End()

	reply, err := s.providers.Generator.Generate(ctx, history, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// speak streams the synthesized reply, one audio frame per chunk, as the
// chunks arrive.
func (s *Session) speak(ctx context.Context, streamID, reply string) error {
	ctx, span := tracer.Start(ctx, "synthesize")
	defer span.End()

	stream, err := s.providers.Synthesizer.Synthesize(ctx, reply)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &PipelineStepError{Step: StepSynthesis, Err: err}
	}
	defer func() {
		if err := stream.Close(); err != nil {
			logger.DebugContext(ctx, "failed to close speech stream", "session_id", s.id, "error", err)
		}
	}()

	chunks := 0
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return &PipelineStepError{Step: StepSynthesis, Err: err}
		}
		if err := s.send(protocol.AudioFrame{StreamID: streamID, Payload: chunk}); err != nil {
			return fmt.Errorf("%w: %w", errNotDelivered, err)
		}
		chunks++
	}
	span.SetAttributes(attribute.Int("synthesis.chunks", chunks))
	return nil
}

// composePrompt combines retrieved knowledge with the running transcript and
// ends with the cue for the next assistant line.
func composePrompt(knowledge string, history []llms.Turn) string {
	var sb strings.Builder
	if knowledge != "" {
		sb.WriteString(contextInstructions)
		sb.WriteString("\n\nContext:\n")
		sb.WriteString(knowledge)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Conversation:\n")
	if transcript := llms.RenderTranscript(history); transcript != "" {
		sb.WriteString(transcript)
		sb.WriteString("\n")
	}
	sb.WriteString("Assistant:")
	return sb.String()
}
