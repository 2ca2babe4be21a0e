package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/assistant"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/tui"
)

// sseServer replays events as a run stream on POST /threads/{id}/runs.
func sseServer(t *testing.T, events ...[2]string) *assistant.OpenAIService {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, ev := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev[0], ev[1])
		}
		fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return assistant.NewOpenAIService("sk-test", srv.URL+"/", 5*time.Second, zerolog.Nop())
}

func TestConsume_ToolCallDeltasShowOneNotice(t *testing.T) {
	stepDelta := func(call string) [2]string {
		return [2]string{"thread.run.step.delta",
			`{"id":"step_1","object":"thread.run.step.delta","delta":{"step_details":{"type":"tool_calls","tool_calls":[` + call + `]}}}`}
	}
	svc := sseServer(t,
		stepDelta(`{"index":0,"id":"call_1","type":"code_interpreter","code_interpreter":{"input":""}}`),
		stepDelta(`{"index":0,"type":"code_interpreter","code_interpreter":{"input":"import pandas as pd"}}`),
		stepDelta(`{"index":0,"type":"code_interpreter","code_interpreter":{"input":"\ndf.describe()"}}`),
		[2]string{"thread.message.delta", `{"id":"msg_1","object":"thread.message.delta","delta":{"content":[{"index":0,"type":"text","text":{"value":"Done."}}]}}`},
		[2]string{"thread.run.completed", `{"id":"run_1","object":"thread.run","thread_id":"thread_1","status":"completed"}`},
	)

	ui := tui.NewBufferIO()
	c := New(svc, ui, nil, Options{AssistantID: "asst_test"}, zerolog.Nop())

	res, err := c.Consume(context.Background(), "thread_1")
	require.NoError(t, err)
	assert.Equal(t, "Done.", res.Text)
	assert.Equal(t, []string{"code_interpreter"}, ui.Notices)
}
