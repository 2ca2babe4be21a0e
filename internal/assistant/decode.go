package assistant

import (
	"fmt"
	"path"
	"strings"

	"github.com/tidwall/gjson"
)

// lifecycleEvents carry no content for the user; they are dropped.
var lifecycleEvents = map[string]bool{
	"thread.created":              true,
	"thread.run.created":          true,
	"thread.run.queued":           true,
	"thread.run.in_progress":      true,
	"thread.run.cancelling":       true,
	"thread.run.step.created":     true,
	"thread.run.step.in_progress": true,
	"thread.run.step.completed":   true,
	"thread.run.step.failed":      true,
	"thread.run.step.cancelled":   true,
	"thread.run.step.expired":     true,
	"thread.message.created":      true,
	"thread.message.in_progress":  true,
	"thread.message.completed":    true,
	"thread.message.incomplete":   true,
	"done":                        true,
}

// runEndEvents end the run; each becomes an EventDone.
var runEndEvents = map[string]bool{
	"thread.run.completed":       true,
	"thread.run.failed":          true,
	"thread.run.cancelled":       true,
	"thread.run.expired":         true,
	"thread.run.incomplete":      true,
	"thread.run.requires_action": true,
}

// decodeStreamEvent converts one server-sent event of a run stream into
// zero or more Events. data is the event's JSON payload.
//
// Assistants API streaming key behavior:
//   - text arrives in thread.message.delta as delta.content[] blocks,
//     possibly several blocks per event, each with an index
//   - image output arrives as image_file blocks in the same delta array
//   - files written by code_interpreter arrive as file_path annotations
//     on text blocks
//   - tool activity arrives in thread.run.step.delta; only the first delta
//     of a tool call carries its id, later ones carry only the index
func decodeStreamEvent(name string, data gjson.Result) []Event {
	switch {
	case name == "thread.message.delta":
		return decodeContent(data.Get("delta.content"))
	case name == "thread.run.step.delta":
		return decodeStepDelta(data)
	case runEndEvents[name]:
		run := decodeRun(data)
		return []Event{{Type: EventDone, Run: &run}}
	case name == "error":
		msg := data.Get("message").String()
		if msg == "" {
			msg = data.String()
		}
		return []Event{{Type: EventError, Error: fmt.Errorf("assistant stream error: %s", msg)}}
	case lifecycleEvents[name]:
		return nil
	default:
		return []Event{{Type: EventUnknown, Name: name}}
	}
}

// decodeContent handles a content array of a message or message delta.
// Text is emitted in block order; attachments follow the text block that
// references them.
func decodeContent(blocks gjson.Result) []Event {
	var events []Event
	blocks.ForEach(func(_, b gjson.Result) bool {
		switch typ := b.Get("type").String(); typ {
		case "text":
			if v := b.Get("text.value").String(); v != "" {
				events = append(events, Event{Type: EventTextDelta, TextDelta: v})
			}
			b.Get("text.annotations").ForEach(func(_, a gjson.Result) bool {
				if a.Get("type").String() != "file_path" {
					return true
				}
				if id := a.Get("file_path.file_id").String(); id != "" {
					events = append(events, Event{
						Type: EventContentBlock,
						Content: &ContentRef{
							Kind:   ContentFile,
							FileID: id,
							Name:   annotationName(a.Get("text").String()),
						},
					})
				}
				return true
			})
		case "image_file":
			if id := b.Get("image_file.file_id").String(); id != "" {
				events = append(events, Event{
					Type:    EventContentBlock,
					Content: &ContentRef{Kind: ContentImage, FileID: id},
				})
			}
		case "refusal":
			if v := b.Get("refusal").String(); v != "" {
				events = append(events, Event{Type: EventTextDelta, TextDelta: v})
			}
		default:
			events = append(events, Event{Type: EventUnknown, Name: "content." + typ})
		}
		return true
	})
	return events
}

func decodeStepDelta(data gjson.Result) []Event {
	details := data.Get("delta.step_details")
	if details.Get("type").String() != "tool_calls" {
		return nil
	}
	stepID := data.Get("id").String()

	var events []Event
	details.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
		events = append(events, Event{
			Type: EventToolCall,
			ToolCall: &ToolCall{
				ID:       fmt.Sprintf("%s#%d", stepID, tc.Get("index").Int()),
				RemoteID: tc.Get("id").String(),
				Kind:     tc.Get("type").String(),
				Name:     tc.Get("function.name").String(),
			},
		})
		return true
	})
	return events
}

func decodeRun(data gjson.Result) Run {
	return Run{
		ID:        data.Get("id").String(),
		ThreadID:  data.Get("thread_id").String(),
		Status:    RunStatus(data.Get("status").String()),
		LastError: data.Get("last_error.message").String(),
	}
}

// decodeMessage folds a complete thread message into text and content refs.
func decodeMessage(data gjson.Result) Message {
	msg := Message{
		ID:    data.Get("id").String(),
		Role:  data.Get("role").String(),
		RunID: data.Get("run_id").String(),
	}
	var sb strings.Builder
	for _, ev := range decodeContent(data.Get("content")) {
		switch ev.Type {
		case EventTextDelta:
			sb.WriteString(ev.TextDelta)
		case EventContentBlock:
			msg.Content = append(msg.Content, *ev.Content)
		}
	}
	msg.Text = sb.String()
	return msg
}

// streamPayload returns the data object of a raw stream event. The SDK
// wraps thread.* events as {"event": ..., "data": ...}.
func streamPayload(raw string) gjson.Result {
	parsed := gjson.Parse(raw)
	if data := parsed.Get("data"); data.Exists() {
		return data
	}
	return parsed
}

// annotationName turns "sandbox:/mnt/data/report.csv" into "report.csv".
func annotationName(text string) string {
	if text == "" {
		return ""
	}
	if i := strings.LastIndex(text, ":"); i >= 0 {
		text = text[i+1:]
	}
	return path.Base(text)
}
