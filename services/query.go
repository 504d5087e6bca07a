package services

import (
	"context"
	"net/http"
	"strings"

	"manualqa/client"
	"manualqa/internal"
)

// MaxQuestionLength bounds a text question
const MaxQuestionLength = 2000

// QueryService asks questions about uploaded manuals
type QueryService struct {
	pipeline *client.Pipeline
	audio    internal.AudioCapture
}

// NewQueryService creates a query facade. audio may be nil when voice
// questions are not needed.
func NewQueryService(p *client.Pipeline, audio internal.AudioCapture) *QueryService {
	return &QueryService{pipeline: p, audio: audio}
}

// Ask sends a text question
func (s *QueryService) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, internal.NewValidationError("question", "question cannot be empty").Classified()
	}
	if len(req.Question) > MaxQuestionLength {
		return nil, internal.NewValidationErrorWithValue("question", "question is too long", len(req.Question)).
			WithSuggestion("Keep questions under 2000 characters").
			Classified()
	}

	var answer Answer
	err := s.pipeline.Do(ctx, &client.Request{
		Operation: "query.ask",
		Method:    http.MethodPost,
		Path:      "/query",
		Body:      req,
	}, &answer)
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

// AskVoice sends a finished recording as a spoken question
func (s *QueryService) AskVoice(ctx context.Context, rec *internal.Recording, manualID string) (*VoiceAnswer, error) {
	if rec == nil || rec.URI == "" {
		return nil, internal.NewValidationError("recording", "no recording to send").Classified()
	}
	if s.audio == nil {
		return nil, internal.NewValidationError("audio", "voice questions are not available here").Classified()
	}

	audio, err := s.audio.ConvertToBase64(rec.URI)
	if err != nil {
		return nil, err
	}

	format := rec.Format
	if format == "" {
		format = "wav"
	}

	var answer VoiceAnswer
	err = s.pipeline.Do(ctx, &client.Request{
		Operation: "query.voice",
		Method:    http.MethodPost,
		Path:      "/query/voice",
		Body:      voiceRequest{AudioBase64: audio, Format: format, ManualID: manualID},
		Timeout:   s.pipeline.UploadTimeout(),
	}, &answer)
	if err != nil {
		return nil, err
	}
	return &answer, nil
}
