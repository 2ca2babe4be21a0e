package assistant

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// OpenAIService implements Service on the OpenAI Assistants API.
type OpenAIService struct {
	client         openai.Client
	requestTimeout time.Duration
	log            zerolog.Logger
}

// NewOpenAIService builds a client for apiKey. baseURL may be empty.
// SDK level retries are disabled; callers retry with their own policy.
func NewOpenAIService(apiKey, baseURL string, requestTimeout time.Duration, log zerolog.Logger) *OpenAIService {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIService{
		client:         openai.NewClient(opts...),
		requestTimeout: requestTimeout,
		log:            log.With().Str("component", "assistant").Logger(),
	}
}

// Client exposes the underlying SDK client for the admin commands.
func (s *OpenAIService) Client() *openai.Client { return &s.client }

// reqOpts bounds a single non-streaming request. Streams are bounded by
// the caller's context instead.
func (s *OpenAIService) reqOpts() []option.RequestOption {
	if s.requestTimeout <= 0 {
		return nil
	}
	return []option.RequestOption{option.WithRequestTimeout(s.requestTimeout)}
}

func (s *OpenAIService) CreateThread(ctx context.Context) (string, error) {
	thread, err := s.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{}, s.reqOpts()...)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	s.log.Debug().Str("thread", thread.ID).Msg("thread created")
	return thread.ID, nil
}

func (s *OpenAIService) CreateMessage(ctx context.Context, threadID, content string) (string, error) {
	msg, err := s.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(content),
		},
	}, s.reqOpts()...)
	if err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}
	return msg.ID, nil
}

func runParams(req RunRequest) openai.BetaThreadRunNewParams {
	params := openai.BetaThreadRunNewParams{AssistantID: req.AssistantID}
	if req.AdditionalInstructions != "" {
		params.AdditionalInstructions = openai.String(req.AdditionalInstructions)
	}
	return params
}

func (s *OpenAIService) StreamRun(ctx context.Context, threadID string, req RunRequest) (<-chan Event, error) {
	stream := s.client.Beta.Threads.Runs.NewStreaming(ctx, threadID, runParams(req))
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start run: %w", err)
	}

	ch := make(chan Event, 16)
	go s.processStream(ctx, stream, ch)
	return ch, nil
}

// processStream reads the run's SSE stream and emits unified events.
// The channel is closed after exactly one EventDone or EventError.
func (s *OpenAIService) processStream(ctx context.Context, stream *ssestream.Stream[openai.AssistantStreamEventUnion], ch chan<- Event) {
	defer close(ch)
	defer stream.Close()

	send := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for stream.Next() {
		cur := stream.Current()
		for _, ev := range decodeStreamEvent(cur.Event, streamPayload(cur.RawJSON())) {
			if !send(ev) {
				return
			}
			if ev.Type == EventDone || ev.Type == EventError {
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		send(Event{Type: EventError, Error: fmt.Errorf("assistant streaming error: %w", err)})
		return
	}

	// Stream ended without a run status event.
	s.log.Debug().Msg("stream closed without run status")
	send(Event{Type: EventDone})
}

func (s *OpenAIService) CreateRun(ctx context.Context, threadID string, req RunRequest) (Run, error) {
	run, err := s.client.Beta.Threads.Runs.New(ctx, threadID, runParams(req), s.reqOpts()...)
	if err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	return decodeRun(gjson.Parse(run.RawJSON())), nil
}

func (s *OpenAIService) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := s.client.Beta.Threads.Runs.Get(ctx, threadID, runID, s.reqOpts()...)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return decodeRun(gjson.Parse(run.RawJSON())), nil
}

func (s *OpenAIService) ListMessages(ctx context.Context, threadID, runID string) ([]Message, error) {
	page, err := s.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		RunID: openai.String(runID),
		Order: openai.BetaThreadMessageListParamsOrderAsc,
	}, s.reqOpts()...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]Message, 0, len(page.Data))
	for _, m := range page.Data {
		msgs = append(msgs, decodeMessage(gjson.Parse(m.RawJSON())))
	}
	return msgs, nil
}

func (s *OpenAIService) FileContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	// No request timeout here: the body is read after return.
	resp, err := s.client.Files.Content(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	return resp.Body, nil
}
