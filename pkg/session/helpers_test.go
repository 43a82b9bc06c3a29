package session

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/odvcencio/gensession/pkg/backend"
	"github.com/odvcencio/gensession/pkg/backend/mocks"
	"github.com/odvcencio/gensession/pkg/messenger"
	"github.com/odvcencio/gensession/pkg/reference"
	"github.com/odvcencio/gensession/pkg/workspace"
)

var testFolder = workspace.Folder{Name: "repo", Path: "/repo"}

type recordingMessenger struct {
	mu           sync.Mutex
	fileUpdates  [][]messenger.FileEntry
	placeholders []string
	answers      []messenger.Answer
}

func (m *recordingMessenger) UpdateFileComponent(_ context.Context, _ string, files []messenger.FileEntry, _ []messenger.DeletedEntry, _ string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fileUpdates = append(m.fileUpdates, files)
	return nil
}

func (m *recordingMessenger) SendAnswer(_ context.Context, _ string, answer messenger.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, answer)
	return nil
}

func (m *recordingMessenger) SendUpdatePlaceholder(_ context.Context, _ string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeholders = append(m.placeholders, text)
	return nil
}

type stubCollector struct {
	archive *workspace.Archive
	err     error
	calls   int
}

func (c *stubCollector) Collect(context.Context, workspace.Folder, workspace.CollectOptions) (*workspace.Archive, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.archive, nil
}

type harness struct {
	session   *Session
	client    *mocks.MockClient
	workspace *workspace.BillyFS
	staging   *workspace.BillyFS
	messenger *recordingMessenger
	refs      *reference.MemoryLog
	collector *stubCollector
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)

	h := &harness{
		client:    mocks.NewMockClient(ctrl),
		workspace: workspace.NewMemory(),
		staging:   workspace.NewMemory(),
		messenger: &recordingMessenger{},
		refs:      reference.NewMemoryLog(),
		collector: &stubCollector{archive: &workspace.Archive{
			Data:     []byte("zip"),
			Checksum: "c2hh",
			Size:     3,
			Files:    []string{"main.go"},
		}},
	}

	ids := 0
	cfg := Config{
		TabID:        "tab-1",
		Client:       h.client,
		Workspace:    h.workspace,
		Staging:      h.staging,
		Collector:    h.collector,
		Folder:       testFolder,
		Messenger:    h.messenger,
		References:   h.refs,
		PollInterval: time.Millisecond,
		Now:          func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
		NewID: func() string {
			ids++
			return "id-" + strconv.Itoa(ids)
		},
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.session = s
	return h
}

// expectRound wires one successful upload and generation producing files.
func (h *harness) expectRound(uploadID string, files ...backend.NewFileContent) {
	h.client.EXPECT().CreateUploadURL(gomock.Any(), gomock.Any()).
		Return(&backend.UploadURL{UploadID: uploadID, URL: "https://upload.test/" + uploadID}, nil)
	h.client.EXPECT().UploadArchive(gomock.Any(), gomock.Any(), "c2hh", []byte("zip")).Return(nil)
	h.client.EXPECT().StartCodeGeneration(gomock.Any(), gomock.Any()).
		Return(&backend.StartCodeGenerationResponse{}, nil)
	h.client.EXPECT().GetCodeGeneration(gomock.Any(), "c1", gomock.Any()).
		Return(&backend.CodeGeneration{Status: backend.StatusComplete}, nil)
	h.client.EXPECT().ExportResultArchive(gomock.Any(), "c1").
		Return(&backend.ResultArchive{NewFiles: files}, nil)
}

// install replaces the current state with a completed one holding art.
func (h *harness) install(art Artifacts) {
	s := h.session
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = &CompletedState{stateBase: stateBase{
		deps:        &s.deps,
		artifacts:   art,
		uploadID:    "u1",
		tokenSource: NewCancellationSource(),
	}}
}

func intPtr(v int) *int { return &v }

// recordingFS logs every mutating call and can fail or intercept writes.
type recordingFS struct {
	workspace.FileSystem

	mu      sync.Mutex
	ops     []string
	onWrite func(name string) error
}

func (f *recordingFS) MkdirAll(dir string) error {
	f.record("mkdir " + dir)
	return f.FileSystem.MkdirAll(dir)
}

func (f *recordingFS) WriteFile(name string, data []byte) error {
	f.record("write " + name)
	if f.onWrite != nil {
		if err := f.onWrite(name); err != nil {
			return err
		}
	}
	return f.FileSystem.WriteFile(name, data)
}

func (f *recordingFS) Remove(name string) error {
	f.record("remove " + name)
	return f.FileSystem.Remove(name)
}

func (f *recordingFS) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *recordingFS) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// hookMessenger runs onUpdate before recording a file component update.
type hookMessenger struct {
	*recordingMessenger
	onUpdate func()
}

func (m *hookMessenger) UpdateFileComponent(ctx context.Context, tabID string, files []messenger.FileEntry, deleted []messenger.DeletedEntry, messageID string, disable bool) error {
	if m.onUpdate != nil {
		m.onUpdate()
	}
	return m.recordingMessenger.UpdateFileComponent(ctx, tabID, files, deleted, messageID, disable)
}
