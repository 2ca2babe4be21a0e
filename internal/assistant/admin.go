package assistant

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/sourcegraph/conc/pool"
	"github.com/tidwall/gjson"
)

// 管理命令的默认值
const (
	DefaultAssistantName         = "SBA-Data-Assistant"
	DefaultAssistantModel        = "gpt-4o"
	DefaultAssistantInstructions = "I am an AI assistant for data analysis and reporting."
	DefaultVectorStoreName       = "SBA-Manufacturing-Data"
	DefaultDataDir               = "data"
)

// UploadExtensions are the file types accepted for vector store upload.
var UploadExtensions = []string{".csv", ".txt", ".json", ".xlsx", ".py", ".docx", ".pdf"}

const (
	uploadConcurrency = 4
	batchPollInterval = 2 * time.Second
)

// AssistantInfo is the admin view of a remote assistant.
type AssistantInfo struct {
	ID             string
	Name           string
	Model          string
	Instructions   string
	Tools          []string
	VectorStoreIDs []string
}

// AssistantSpec describes an assistant to create.
type AssistantSpec struct {
	Name          string
	Model         string
	Instructions  string
	VectorStoreID string // optional, attached for file_search
}

// BatchStatus is the state of a vector store file batch.
type BatchStatus struct {
	ID         string
	Status     string
	Completed  int
	Failed     int
	InProgress int
	Total      int
}

// Done reports whether the batch has stopped processing.
func (b BatchStatus) Done() bool {
	return b.Status != "in_progress"
}

// Admin manages assistants and vector stores. It is only used by the
// admin commands, never on the chat path.
type Admin struct {
	client *openai.Client

	// Skipped receives files rejected by CollectUploadFiles; may be nil.
	Skipped func(path string)
	// Progress receives file batch status while waiting; may be nil.
	Progress func(BatchStatus)

	pollInterval time.Duration
}

func NewAdmin(svc *OpenAIService) *Admin {
	return &Admin{client: svc.Client(), pollInterval: batchPollInterval}
}

func (a *Admin) CreateAssistant(ctx context.Context, spec AssistantSpec) (AssistantInfo, error) {
	spec = spec.withDefaults()
	params := openai.BetaAssistantNewParams{
		Model:        openai.ChatModel(spec.Model),
		Name:         openai.String(spec.Name),
		Instructions: openai.String(spec.Instructions),
		Tools: []openai.AssistantToolUnionParam{
			{OfFileSearch: &openai.FileSearchToolParam{}},
		},
	}
	if spec.VectorStoreID != "" {
		params.ToolResources = openai.BetaAssistantNewParamsToolResources{
			FileSearch: openai.BetaAssistantNewParamsToolResourcesFileSearch{
				VectorStoreIDs: []string{spec.VectorStoreID},
			},
		}
	}
	asst, err := a.client.Beta.Assistants.New(ctx, params)
	if err != nil {
		return AssistantInfo{}, fmt.Errorf("create assistant: %w", err)
	}
	return decodeAssistant(gjson.Parse(asst.RawJSON())), nil
}

func (a *Admin) GetAssistant(ctx context.Context, id string) (AssistantInfo, error) {
	asst, err := a.client.Beta.Assistants.Get(ctx, id)
	if err != nil {
		return AssistantInfo{}, fmt.Errorf("get assistant %s: %w", id, err)
	}
	return decodeAssistant(gjson.Parse(asst.RawJSON())), nil
}

// AttachVectorStore points the assistant's file_search tool at vectorStoreID.
func (a *Admin) AttachVectorStore(ctx context.Context, assistantID, vectorStoreID string) (AssistantInfo, error) {
	asst, err := a.client.Beta.Assistants.Update(ctx, assistantID, openai.BetaAssistantUpdateParams{
		ToolResources: openai.BetaAssistantUpdateParamsToolResources{
			FileSearch: openai.BetaAssistantUpdateParamsToolResourcesFileSearch{
				VectorStoreIDs: []string{vectorStoreID},
			},
		},
	})
	if err != nil {
		return AssistantInfo{}, fmt.Errorf("update assistant %s: %w", assistantID, err)
	}
	return decodeAssistant(gjson.Parse(asst.RawJSON())), nil
}

// CreateVectorStore creates a vector store, uploads every supported file
// under dir and waits for the file batch to finish processing.
func (a *Admin) CreateVectorStore(ctx context.Context, name, dir string) (string, BatchStatus, error) {
	if name == "" {
		name = DefaultVectorStoreName
	}
	paths, err := CollectUploadFiles(dir, a.Skipped)
	if err != nil {
		return "", BatchStatus{}, err
	}

	vs, err := a.client.VectorStores.New(ctx, openai.VectorStoreNewParams{
		Name: openai.String(name),
	})
	if err != nil {
		return "", BatchStatus{}, fmt.Errorf("create vector store: %w", err)
	}

	fileIDs, err := a.uploadFiles(ctx, paths)
	if err != nil {
		return vs.ID, BatchStatus{}, err
	}

	batch, err := a.client.VectorStores.FileBatches.New(ctx, vs.ID, openai.VectorStoreFileBatchNewParams{
		FileIDs: fileIDs,
	})
	if err != nil {
		return vs.ID, BatchStatus{}, fmt.Errorf("create file batch: %w", err)
	}

	status, err := a.waitBatch(ctx, vs.ID, decodeBatch(gjson.Parse(batch.RawJSON())))
	return vs.ID, status, err
}

// uploadFiles uploads paths in parallel. Returned ids keep the order of paths.
func (a *Admin) uploadFiles(ctx context.Context, paths []string) ([]string, error) {
	p := pool.NewWithResults[string]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(uploadConcurrency)

	ids := make([]string, len(paths))
	for i, path := range paths {
		p.Go(func(ctx context.Context) (string, error) {
			id, err := a.uploadFile(ctx, path)
			if err != nil {
				return "", err
			}
			ids[i] = id
			return id, nil
		})
	}
	if _, err := p.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (a *Admin) uploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	file, err := a.client.Files.New(ctx, openai.FileNewParams{
		File:    f,
		Purpose: openai.FilePurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	return file.ID, nil
}

func (a *Admin) waitBatch(ctx context.Context, vectorStoreID string, status BatchStatus) (BatchStatus, error) {
	for {
		if a.Progress != nil {
			a.Progress(status)
		}
		if status.Done() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(a.pollInterval):
		}
		batch, err := a.client.VectorStores.FileBatches.Get(ctx, vectorStoreID, status.ID)
		if err != nil {
			return status, fmt.Errorf("get file batch %s: %w", status.ID, err)
		}
		status = decodeBatch(gjson.Parse(batch.RawJSON()))
	}
}

// CollectUploadFiles lists the files directly under dir whose extension
// is in UploadExtensions, sorted by name. Other files are passed to skip.
// A missing directory or one without any supported file is an error.
func CollectUploadFiles(dir string, skip func(path string)) ([]string, error) {
	if dir == "" {
		dir = DefaultDataDir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("data directory %q not found", dir)
		}
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if !supportedUpload(e.Name()) {
			if skip != nil {
				skip(path)
			}
			continue
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no supported files in %q (accepted: %s)", dir, strings.Join(UploadExtensions, " "))
	}
	sort.Strings(paths)
	return paths, nil
}

func supportedUpload(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range UploadExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (s AssistantSpec) withDefaults() AssistantSpec {
	if s.Name == "" {
		s.Name = DefaultAssistantName
	}
	if s.Model == "" {
		s.Model = DefaultAssistantModel
	}
	if s.Instructions == "" {
		s.Instructions = DefaultAssistantInstructions
	}
	return s
}

func decodeAssistant(data gjson.Result) AssistantInfo {
	info := AssistantInfo{
		ID:           data.Get("id").String(),
		Name:         data.Get("name").String(),
		Model:        data.Get("model").String(),
		Instructions: data.Get("instructions").String(),
	}
	for _, t := range data.Get("tools.#.type").Array() {
		info.Tools = append(info.Tools, t.String())
	}
	for _, id := range data.Get("tool_resources.file_search.vector_store_ids").Array() {
		info.VectorStoreIDs = append(info.VectorStoreIDs, id.String())
	}
	return info
}

func decodeBatch(data gjson.Result) BatchStatus {
	return BatchStatus{
		ID:         data.Get("id").String(),
		Status:     data.Get("status").String(),
		Completed:  int(data.Get("file_counts.completed").Int()),
		Failed:     int(data.Get("file_counts.failed").Int()),
		InProgress: int(data.Get("file_counts.in_progress").Int()),
		Total:      int(data.Get("file_counts.total").Int()),
	}
}
