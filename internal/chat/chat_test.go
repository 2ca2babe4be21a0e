package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/assistant"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/attach"
	cerrors "github.com/Ads2024/Demo-Assistant-API-AI/internal/errors"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/session"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/tui"
)

// fakeService is an in-memory assistant.Service.
type fakeService struct {
	mu sync.Mutex

	threadErrs []error // consumed one per CreateThread call
	threads    int

	msgErr   error
	messages []string

	streams     [][]assistant.Event // one per StreamRun call, the last repeats
	hang        bool                // stream sends nothing until ctx is done
	streamCalls int

	createRunErr error
	statuses     []assistant.RunStatus // consumed one per GetRun call, the last repeats
	getRuns      int
	listed       []assistant.Message

	files     map[string]string
	fileCalls map[string]int
}

func (f *fakeService) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads++
	if len(f.threadErrs) > 0 {
		err := f.threadErrs[0]
		f.threadErrs = f.threadErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("thread_%d", f.threads), nil
}

func (f *fakeService) CreateMessage(ctx context.Context, threadID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgErr != nil {
		return "", f.msgErr
	}
	f.messages = append(f.messages, content)
	return fmt.Sprintf("msg_%d", len(f.messages)), nil
}

func (f *fakeService) StreamRun(ctx context.Context, threadID string, req assistant.RunRequest) (<-chan assistant.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamCalls++

	if f.hang {
		ch := make(chan assistant.Event, 1)
		go func() {
			<-ctx.Done()
			ch <- assistant.Event{Type: assistant.EventError, Error: ctx.Err()}
			close(ch)
		}()
		return ch, nil
	}

	var events []assistant.Event
	if n := len(f.streams); n > 0 {
		events = f.streams[min(f.streamCalls-1, n-1)]
	}
	ch := make(chan assistant.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeService) CreateRun(ctx context.Context, threadID string, req assistant.RunRequest) (assistant.Run, error) {
	if f.createRunErr != nil {
		return assistant.Run{}, f.createRunErr
	}
	return assistant.Run{ID: "run_poll", ThreadID: threadID, Status: assistant.RunStatusQueued}, nil
}

func (f *fakeService) GetRun(ctx context.Context, threadID, runID string) (assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getRuns++
	status := assistant.RunStatusInProgress
	if n := len(f.statuses); n > 0 {
		status = f.statuses[min(f.getRuns-1, n-1)]
	}
	run := assistant.Run{ID: runID, ThreadID: threadID, Status: status}
	if status == assistant.RunStatusFailed {
		run.LastError = "server_error: boom"
	}
	return run, nil
}

func (f *fakeService) ListMessages(ctx context.Context, threadID, runID string) ([]assistant.Message, error) {
	return f.listed, nil
}

func (f *fakeService) FileContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fileCalls == nil {
		f.fileCalls = make(map[string]int)
	}
	f.fileCalls[fileID]++
	data, ok := f.files[fileID]
	if !ok {
		return nil, errors.New("404 no such file")
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

func newTestChat(t *testing.T, svc *fakeService, opts Options) (*Chat, *tui.BufferIO, *fakeClock) {
	t.Helper()
	if opts.AssistantID == "" {
		opts.AssistantID = "asst_test"
	}
	ui := tui.NewBufferIO()
	files := attach.New(svc, "")
	files.TempDir = t.TempDir()

	c := New(svc, ui, files, opts, zerolog.Nop())
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c.now = clock.now
	c.sleep = clock.sleep
	c.retryBase = time.Millisecond
	return c, ui, clock
}

func text(s string) assistant.Event {
	return assistant.Event{Type: assistant.EventTextDelta, TextDelta: s}
}

func done(id string, status assistant.RunStatus) assistant.Event {
	return assistant.Event{Type: assistant.EventDone, Run: &assistant.Run{ID: id, Status: status}}
}

func TestAsk_CommitsAnswerOnce(t *testing.T) {
	svc := &fakeService{streams: [][]assistant.Event{{
		text("Hi"), text(" there"), done("run_1", assistant.RunStatusCompleted),
	}}}
	c, ui, _ := newTestChat(t, svc, Options{})
	sess := session.New()

	res, err := c.Ask(context.Background(), sess, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", res.Text)
	assert.Equal(t, "run_1", res.RunID)
	assert.True(t, res.Committed)

	turns := sess.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, "Hello", turns[0].Content)
	assert.Equal(t, session.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Hi there", turns[1].Content)

	// The same run is never committed twice.
	assert.False(t, c.Commit(sess, res))
	assert.Equal(t, 2, sess.Len())

	assert.Equal(t, []string{"Hi", " there"}, ui.Deltas)
	assert.Equal(t, []string{"Hi there"}, ui.Done)
	assert.Equal(t, "thread_1", ui.ThreadID)
	assert.Equal(t, 2, ui.Turns)
}

func TestAsk_EmptyAnswerCommitsNothing(t *testing.T) {
	svc := &fakeService{streams: [][]assistant.Event{{
		text("  \n"), done("run_1", assistant.RunStatusCompleted),
	}}}
	c, _, _ := newTestChat(t, svc, Options{})
	sess := session.New()

	res, err := c.Ask(context.Background(), sess, "Hello")
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, 1, sess.Len())
}

func TestAsk_StreamWithoutRunEventCompletes(t *testing.T) {
	svc := &fakeService{streams: [][]assistant.Event{{
		text("ok"), {Type: assistant.EventDone},
	}}}
	c, _, _ := newTestChat(t, svc, Options{})
	sess := session.New()

	res, err := c.Ask(context.Background(), sess, "Hello")
	require.NoError(t, err)
	assert.Equal(t, assistant.RunStatusCompleted, res.Status)
	assert.True(t, res.Committed)
}

func TestAsk_PartialAnswerThenStreamError(t *testing.T) {
	svc := &fakeService{streams: [][]assistant.Event{{
		text("Partial"),
		{Type: assistant.EventError, Error: errors.New("connection reset by peer")},
	}}}
	c, _, _ := newTestChat(t, svc, Options{})
	sess := session.New()

	res, err := c.Ask(context.Background(), sess, "Hello")
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.KindStream), "got %v", err)
	assert.Equal(t, "Partial", res.Text)
	assert.True(t, res.Committed)

	last, ok := sess.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "Partial", last.Content)
}

func TestAsk_FailedRun(t *testing.T) {
	svc := &fakeService{streams: [][]assistant.Event{{
		{Type: assistant.EventDone, Run: &assistant.Run{ID: "run_1", Status: assistant.RunStatusFailed, LastError: "rate_limit_exceeded"}},
	}}}
	c, _, _ := newTestChat(t, svc, Options{})
	sess := session.New()

	res, err := c.Ask(context.Background(), sess, "Hello")
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.KindStream))
	assert.Contains(t, err.Error(), "rate_limit_exceeded")
	assert.Equal(t, assistant.RunStatusFailed, res.Status)
	assert.Equal(t, 1, sess.Len())
}

func TestAsk_RunTimeout(t *testing.T) {
	svc := &fakeService{hang: true}
	c, _, _ := newTestChat(t, svc, Options{RunTimeout: 20 * time.Millisecond})
	sess := session.New()

	_, err := c.Ask(context.Background(), sess, "Hello")
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.KindTimeout), "got %v", err)
	assert.Equal(t, 1, sess.Len())
}

func TestAsk_ReusesThread(t *testing.T) {
	svc := &fakeService{streams: [][]assistant.Event{{
		text("a"), done("run_1", assistant.RunStatusCompleted),
	}, {
		text("b"), done("run_2", assistant.RunStatusCompleted),
	}}}
	c, _, _ := newTestChat(t, svc, Options{})
	sess := session.New()

	_, err := c.Ask(context.Background(), sess, "one")
	require.NoError(t, err)
	_, err = c.Ask(context.Background(), sess, "two")
	require.NoError(t, err)

	assert.Equal(t, 1, svc.threads)
	assert.Equal(t, []string{"one", "two"}, svc.messages)
	assert.Equal(t, "thread_1", sess.ThreadID)
	assert.Equal(t, 4, sess.Len())
}

func TestAsk_ThreadCreationFailure(t *testing.T) {
	svc := &fakeService{threadErrs: []error{errors.New("invalid api key")}}
	c, _, _ := newTestChat(t, svc, Options{})
	sess := session.New()

	_, err := c.Ask(context.Background(), sess, "Hello")
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.KindThreadCreation), "got %v", err)
	assert.False(t, sess.HasThread())
	assert.Empty(t, svc.messages)
	assert.Equal(t, 0, svc.streamCalls)
}

func TestAsk_RetriesTransientThreadFailure(t *testing.T) {
	svc := &fakeService{
		threadErrs: []error{&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}},
		streams:    [][]assistant.Event{{text("ok"), done("run_1", assistant.RunStatusCompleted)}},
	}
	c, _, _ := newTestChat(t, svc, Options{})
	sess := session.New()

	_, err := c.Ask(context.Background(), sess, "Hello")
	require.NoError(t, err)
	assert.Equal(t, 2, svc.threads)
	assert.Equal(t, "thread_2", sess.ThreadID)
}

func TestAsk_SubmissionFailureKeepsUserTurn(t *testing.T) {
	svc := &fakeService{msgErr: errors.New("400 thread is locked")}
	c, _, _ := newTestChat(t, svc, Options{})
	sess := session.New()

	_, err := c.Ask(context.Background(), sess, "Hello")
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.KindSubmission), "got %v", err)

	turns := sess.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, 0, svc.streamCalls)
}

func TestAsk_ValidationFailureLeavesSessionAlone(t *testing.T) {
	svc := &fakeService{}
	c, _, _ := newTestChat(t, svc, Options{
		Validate: func() error { return cerrors.E(cerrors.KindConfig, "OPENAI_API_KEY is not set") },
	})
	sess := session.New()

	_, err := c.Ask(context.Background(), sess, "Hello")
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.KindConfig))
	assert.Equal(t, 0, sess.Len())
	assert.Equal(t, 0, svc.threads)
}

func TestAsk_AttachmentsFetchedOnce(t *testing.T) {
	img := &assistant.ContentRef{Kind: assistant.ContentImage, FileID: "file-img"}
	missing := &assistant.ContentRef{Kind: assistant.ContentFile, FileID: "file-gone", Name: "gone.csv"}
	svc := &fakeService{
		files: map[string]string{"file-img": "PNGDATA"},
		streams: [][]assistant.Event{{
			text("Here is the chart"),
			{Type: assistant.EventContentBlock, Content: img},
			{Type: assistant.EventContentBlock, Content: img},
			{Type: assistant.EventContentBlock, Content: missing},
			done("run_1", assistant.RunStatusCompleted),
		}},
	}
	c, ui, _ := newTestChat(t, svc, Options{})
	sess := session.New()

	res, err := c.Ask(context.Background(), sess, "Plot it")
	require.NoError(t, err)

	assert.Equal(t, 1, svc.fileCalls["file-img"])
	require.Len(t, ui.Attachments, 1)
	assert.Equal(t, []byte("PNGDATA"), ui.Attachments[0].Data)
	assert.True(t, strings.HasSuffix(ui.Attachments[0].Path, ".png"))

	require.Len(t, ui.Warnings, 1)
	assert.Contains(t, ui.Warnings[0], "file-gone")

	require.Len(t, res.Attachments, 1)
	last, _ := sess.LastAssistant()
	require.Len(t, last.Attachments, 1)
	assert.Equal(t, "file-img", last.Attachments[0].Ref)
}

func TestAsk_AttachmentDisplayFailureKeepsAttachment(t *testing.T) {
	svc := &fakeService{
		files: map[string]string{"file-1": "a,b\n"},
		streams: [][]assistant.Event{{
			{Type: assistant.EventContentBlock, Content: &assistant.ContentRef{Kind: assistant.ContentFile, FileID: "file-1", Name: "out.csv"}},
			done("run_1", assistant.RunStatusCompleted),
		}},
	}
	c, ui, _ := newTestChat(t, svc, Options{})
	ui.AttachErr = errors.New("terminal cannot show images")
	sess := session.New()

	res, err := c.Ask(context.Background(), sess, "Export")
	require.NoError(t, err)
	assert.Len(t, res.Attachments, 1)
	assert.Len(t, ui.Warnings, 1)
	// No text, but the attachment alone is not committed as an answer.
	assert.False(t, res.Committed)
}

func TestAsk_ToolNoticesAndUnknownEvents(t *testing.T) {
	svc := &fakeService{streams: [][]assistant.Event{{
		{Type: assistant.EventToolCall, ToolCall: &assistant.ToolCall{ID: "call_1", Kind: "file_search"}},
		{Type: assistant.EventToolCall, ToolCall: &assistant.ToolCall{ID: "call_1", Kind: "file_search"}},
		{Type: assistant.EventToolCall, ToolCall: &assistant.ToolCall{ID: "call_2", Kind: "code_interpreter"}},
		{Type: assistant.EventUnknown, Name: "thread.run.step.mystery"},
		text("done"),
		done("run_1", assistant.RunStatusCompleted),
	}}}
	c, ui, _ := newTestChat(t, svc, Options{})

	_, err := c.Ask(context.Background(), session.New(), "Search")
	require.NoError(t, err)
	assert.Equal(t, []string{"file_search", "code_interpreter"}, ui.Notices)
	require.Len(t, ui.Warnings, 1)
	assert.Contains(t, ui.Warnings[0], "thread.run.step.mystery")
}

func TestPollUntilComplete_ReturnsOnFailure(t *testing.T) {
	svc := &fakeService{statuses: []assistant.RunStatus{assistant.RunStatusQueued, assistant.RunStatusFailed}}
	c, _, clock := newTestChat(t, svc, Options{})
	start := clock.t

	status, err := c.PollUntilComplete(context.Background(), "thread_1", "run_1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, assistant.RunStatusFailed, status)
	assert.Equal(t, 2, svc.getRuns)
	assert.Equal(t, time.Second, clock.t.Sub(start))
}

func TestPollUntilComplete_TimesOutAtBound(t *testing.T) {
	svc := &fakeService{}
	c, _, clock := newTestChat(t, svc, Options{})
	start := clock.t

	status, err := c.PollUntilComplete(context.Background(), "thread_1", "run_1", 60*time.Second)
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.KindTimeout))
	assert.Equal(t, assistant.RunStatusTimeout, status)
	assert.Equal(t, 61, svc.getRuns)
	assert.Equal(t, 60*time.Second, clock.t.Sub(start))
}

func TestPollUntilComplete_LastWaitIsClipped(t *testing.T) {
	svc := &fakeService{}
	c, _, clock := newTestChat(t, svc, Options{PollInterval: 2 * time.Second})
	start := clock.t

	_, err := c.PollUntilComplete(context.Background(), "thread_1", "run_1", 3*time.Second)
	require.Error(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, time.Second}, clock.sleeps)
	assert.Equal(t, 3*time.Second, clock.t.Sub(start))
}

func TestAskPolled(t *testing.T) {
	svc := &fakeService{
		statuses: []assistant.RunStatus{assistant.RunStatusInProgress, assistant.RunStatusCompleted},
		files:    map[string]string{"file-1": "q,total\n3,42\n"},
		listed: []assistant.Message{
			{ID: "msg_a", Role: "assistant", RunID: "run_poll", Text: "Revenue grew.",
				Content: []assistant.ContentRef{{Kind: assistant.ContentFile, FileID: "file-1", Name: "q3.csv"}}},
		},
	}
	c, ui, _ := newTestChat(t, svc, Options{})
	sess := session.New()

	res, err := c.AskPolled(context.Background(), sess, "Summarise Q3")
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew.", res.Text)
	assert.Equal(t, "run_poll", res.RunID)
	assert.True(t, res.Committed)
	require.Len(t, ui.Attachments, 1)
	assert.Equal(t, "q3.csv", ui.Attachments[0].Attachment.Name)
	assert.Equal(t, 2, sess.Len())
}

func TestAskPolled_Timeout(t *testing.T) {
	svc := &fakeService{}
	c, _, _ := newTestChat(t, svc, Options{RunTimeout: 5 * time.Second})
	sess := session.New()

	res, err := c.AskPolled(context.Background(), sess, "Hello")
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.KindTimeout))
	assert.Equal(t, assistant.RunStatusTimeout, res.Status)
	assert.Equal(t, 1, sess.Len())
}

func TestAskPolled_FailedRunReportsLastError(t *testing.T) {
	svc := &fakeService{statuses: []assistant.RunStatus{assistant.RunStatusInProgress, assistant.RunStatusFailed}}
	c, _, _ := newTestChat(t, svc, Options{})
	sess := session.New()

	res, err := c.AskPolled(context.Background(), sess, "Hello")
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.KindStream))
	assert.Contains(t, err.Error(), "server_error: boom")
	assert.Equal(t, assistant.RunStatusFailed, res.Status)
	// the failure comes from the last poll, not an extra fetch
	assert.Equal(t, 2, svc.getRuns)
	assert.Equal(t, 1, sess.Len())
}

func TestAskPolled_CreateRunFailure(t *testing.T) {
	svc := &fakeService{createRunErr: errors.New("400 bad assistant")}
	c, _, _ := newTestChat(t, svc, Options{})

	_, err := c.AskPolled(context.Background(), session.New(), "Hello")
	assert.True(t, cerrors.Is(err, cerrors.KindSubmission))
}

func TestReset_NextTurnUsesNewThread(t *testing.T) {
	svc := &fakeService{streams: [][]assistant.Event{{text("a"), done("run_1", assistant.RunStatusCompleted)}}}
	c, ui, _ := newTestChat(t, svc, Options{})
	sess := session.New()
	firstID := sess.ID

	_, err := c.Ask(context.Background(), sess, "one")
	require.NoError(t, err)
	assert.Equal(t, "thread_1", sess.ThreadID)

	c.Reset(sess)
	assert.Equal(t, 0, sess.Len())
	assert.False(t, sess.HasThread())
	assert.NotEqual(t, firstID, sess.ID)
	assert.Equal(t, "", ui.ThreadID)

	svc.streams = [][]assistant.Event{{text("b"), done("run_2", assistant.RunStatusCompleted)}}
	svc.streamCalls = 0
	_, err = c.Ask(context.Background(), sess, "two")
	require.NoError(t, err)
	assert.Equal(t, "thread_2", sess.ThreadID)
	assert.Equal(t, 2, sess.Len())
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
		{&openai.Error{StatusCode: 429}, true},
		{&openai.Error{StatusCode: 502}, true},
		{&openai.Error{StatusCode: 400}, false},
		{fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{fmt.Errorf("stream: %w", io.ErrUnexpectedEOF), true},
		{&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{&net.DNSError{Err: "i/o timeout", Name: "api.openai.com", IsTimeout: true}, true},
		{errors.New("invalid api key"), false},
		// text that merely looks like a status code or network failure
		{errors.New("thread_500abc not found"), false},
		{errors.New("read: connection reset by peer"), false},
		{errors.New("file q3_timeout_EOF.csv rejected"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableError(tt.err), "%v", tt.err)
	}
}
