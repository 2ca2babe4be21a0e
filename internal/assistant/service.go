// Package assistant 定义了远端 assistant 服务（thread / message / run）的统一接口和共享类型。
// OpenAIService（openai.go）实现 Service 接口，
// 负责将 Assistants API 的 streaming 响应归一化为统一的 Event 序列。
package assistant

import (
	"context"
	"io"
)

// ── Run 状态 ──────────────────────────────────────────────────────────────────

type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"

	// RunStatusTimeout 是本地状态：polling 超过上限时返回，远端没有这个值
	RunStatusTimeout RunStatus = "timeout"
)

// Terminal reports whether a run in this status will not change any more
// without client action.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled,
		RunStatusExpired, RunStatusIncomplete, RunStatusRequiresAction,
		RunStatusTimeout:
		return true
	}
	return false
}

// Succeeded reports whether the run produced a complete answer.
func (s RunStatus) Succeeded() bool {
	return s == RunStatusCompleted
}

// Run 是一次 assistant 调用的状态快照
type Run struct {
	ID        string
	ThreadID  string
	Status    RunStatus
	LastError string // set for failed runs
}

// RunRequest 发起 run 的参数
type RunRequest struct {
	AssistantID string
	// AdditionalInstructions 追加在 assistant 自身指令之后；空则不发送
	AdditionalInstructions string
}

// ── 内容块 ────────────────────────────────────────────────────────────────────

type ContentKind string

const (
	ContentImage ContentKind = "image"
	ContentFile  ContentKind = "file"
)

// ContentRef 指向 assistant 生成的一个远端文件（图片或文件）
type ContentRef struct {
	Kind   ContentKind
	FileID string
	Name   string
}

// ToolCall 是一个远端工具调用的通知（file_search, code_interpreter 等）
type ToolCall struct {
	// ID 是 "<step id>#<index>"，同一个调用的所有 delta 都相同。
	// 远端的 call id 只在第一个 delta 里出现，不能用来去重。
	ID       string
	RemoteID string // 远端 call id，可能为空
	Kind     string
	Name     string // function 调用的函数名
}

// Message 是 thread 中一条完整消息（polling 路径使用）
type Message struct {
	ID      string
	Role    string
	RunID   string
	Text    string
	Content []ContentRef
}

// ── 事件类型（streaming 输出）────────────────────────────────────────────────

type EventType int

const (
	// EventTextDelta: assistant 输出的文本增量，应实时渲染
	EventTextDelta EventType = iota

	// EventToolCall: 远端正在执行某个工具
	EventToolCall

	// EventContentBlock: 图片或文件内容块
	EventContentBlock

	// EventUnknown: 无法识别的事件，只提示不中断
	EventUnknown

	// EventDone: run 结束（Run 为 nil 表示 stream 正常结束但没有收到 run 终态）
	EventDone

	// EventError: stream 出错
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventTextDelta:
		return "text_delta"
	case EventToolCall:
		return "tool_call"
	case EventContentBlock:
		return "content_block"
	case EventUnknown:
		return "unknown"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "invalid"
	}
}

// Event 是 run streaming 输出的统一事件
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventToolCall
	ToolCall *ToolCall

	// EventContentBlock
	Content *ContentRef

	// EventUnknown: 原始事件名
	Name string

	// EventDone
	Run *Run

	// EventError
	Error error
}

// ── Service 接口 ──────────────────────────────────────────────────────────────

// Service 是远端 assistant 服务的统一接口。
// 实现者负责：
// 1. 将调用转换为远端 API 请求，并施加每次调用的超时
// 2. 将 run 的 streaming 响应解码为统一 Event 序列
// 3. 不做重试：重试策略由调用方决定
type Service interface {
	// CreateThread 创建一个新的对话 thread，返回其 ID
	CreateThread(ctx context.Context) (string, error)

	// CreateMessage 向 thread 追加一条用户消息，返回消息 ID
	CreateMessage(ctx context.Context, threadID, content string) (string, error)

	// StreamRun 发起 streaming run。
	// 返回的 channel 会持续发出 Event，直到 EventDone 或 EventError 后关闭。
	// 调用方不再读取时必须取消 ctx，否则会导致 goroutine 泄漏。
	StreamRun(ctx context.Context, threadID string, req RunRequest) (<-chan Event, error)

	// CreateRun 发起非 streaming run
	CreateRun(ctx context.Context, threadID string, req RunRequest) (Run, error)

	// GetRun 查询 run 状态
	GetRun(ctx context.Context, threadID, runID string) (Run, error)

	// ListMessages 列出某个 run 产生的消息（按时间正序）
	ListMessages(ctx context.Context, threadID, runID string) ([]Message, error)

	// FileContent 下载文件内容，调用方负责关闭
	FileContent(ctx context.Context, fileID string) (io.ReadCloser, error)
}
