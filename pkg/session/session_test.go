package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/odvcencio/gensession/pkg/backend"
	gserrors "github.com/odvcencio/gensession/pkg/errors"
	"github.com/odvcencio/gensession/pkg/telemetry"
	"github.com/odvcencio/gensession/pkg/workspace"
)

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.True(t, gserrors.IsCode(err, gserrors.ErrCodeInvalidInput))
}

func TestNewDefaults(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.TabID = ""
		c.PollInterval = 0
	})
	s := h.session

	assert.Contains(t, s.TabID(), "repo-")
	assert.Equal(t, defaultMaxRetries, s.Retries())
	assert.Equal(t, defaultPollInterval, s.deps.pollInterval)
	assert.Equal(t, LifecycleUninitialized, s.Lifecycle())

	state, err := s.State()
	require.NoError(t, err)
	assert.Equal(t, PhaseNotStarted, state.Phase())
}

func TestNoRetriesDisablesBudget(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.NoRetries = true })
	assert.Equal(t, 0, h.session.Retries())
}

func TestZeroValueSession(t *testing.T) {
	var s Session

	_, err := s.State()
	assert.ErrorIs(t, err, ErrStateUninitialized)

	_, err = s.ConversationID()
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = s.UploadID()
	assert.ErrorIs(t, err, ErrStateUninitialized)
	assert.NotErrorIs(t, err, ErrUploadIDUninitialized)
}

func TestConversationIDBeforeAndAfterSetup(t *testing.T) {
	h := newHarness(t)
	h.client.EXPECT().CreateConversation(gomock.Any()).Return("c1", nil)

	_, err := h.session.ConversationID()
	require.ErrorIs(t, err, ErrConversationNotFound)

	require.NoError(t, h.session.Preloader(context.Background(), "write a readme"))

	id, err := h.session.ConversationID()
	require.NoError(t, err)
	assert.Equal(t, "c1", id)
	assert.Equal(t, LifecycleReady, h.session.Lifecycle())
}

func TestPreloaderCreatesConversationOnce(t *testing.T) {
	h := newHarness(t)
	h.client.EXPECT().CreateConversation(gomock.Any()).Return("c1", nil).Times(1)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.session.Preloader(context.Background(), "msg"))
	}
}

func TestPreloaderInstallsPrepareCodeGen(t *testing.T) {
	h := newHarness(t)
	h.client.EXPECT().CreateConversation(gomock.Any()).Return("c1", nil)

	require.NoError(t, h.session.Preloader(context.Background(), "msg"))

	state, err := h.session.State()
	require.NoError(t, err)
	assert.Equal(t, PhasePrepareCodeGen, state.Phase())
	assert.Empty(t, state.Artifacts().FilePaths)
	assert.Empty(t, state.Artifacts().DeletedFiles)

	_, err = state.UploadID()
	assert.ErrorIs(t, err, ErrUploadIDUninitialized)
	assert.NotErrorIs(t, err, ErrStateUninitialized)
}

func TestPreloaderCancelsPriorSourceOnce(t *testing.T) {
	h := newHarness(t)
	h.client.EXPECT().CreateConversation(gomock.Any()).Return("c1", nil)

	before, err := h.session.State()
	require.NoError(t, err)
	src := before.TokenSource()

	require.NoError(t, h.session.Preloader(context.Background(), "msg"))
	require.NoError(t, h.session.Preloader(context.Background(), "msg"))

	assert.True(t, src.IsCancelled())
	assert.Equal(t, 1, src.cancellations())

	after, _ := h.session.State()
	assert.False(t, after.TokenSource().IsCancelled())
}

func TestPreloaderFailureIsRetried(t *testing.T) {
	h := newHarness(t)
	gomock.InOrder(
		h.client.EXPECT().CreateConversation(gomock.Any()).Return("", errors.New("connection refused")),
		h.client.EXPECT().CreateConversation(gomock.Any()).Return("c2", nil),
	)

	err := h.session.Preloader(context.Background(), "msg")
	require.Error(t, err)
	assert.True(t, gserrors.IsCode(err, gserrors.ErrCodeConversationSetup))
	assert.Equal(t, LifecycleFailed, h.session.Lifecycle())

	state, _ := h.session.State()
	assert.Equal(t, PhaseNotStarted, state.Phase())

	require.NoError(t, h.session.Preloader(context.Background(), "msg"))
	id, err := h.session.ConversationID()
	require.NoError(t, err)
	assert.Equal(t, "c2", id)
}

func TestSendGeneratesFiles(t *testing.T) {
	h := newHarness(t)
	h.client.EXPECT().CreateConversation(gomock.Any()).Return("c1", nil)
	h.expectRound("u1", backend.NewFileContent{ZipFilePath: "README.md", Content: "# Repo\n\nUsage.\n"})

	require.NoError(t, h.session.Preloader(context.Background(), "write a readme"))
	prepare, _ := h.session.State()
	prepareSource := prepare.TokenSource()

	interaction, err := h.session.Send(context.Background(), "write a readme", ModeCreate, "")
	require.NoError(t, err)
	assert.True(t, interaction.Responded)
	assert.False(t, interaction.Failed)
	assert.Equal(t, msgGenerated, interaction.Content)

	state, err := h.session.State()
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, state.Phase())
	assert.Equal(t, 1, prepareSource.cancellations())

	art := state.Artifacts()
	require.Len(t, art.FilePaths, 1)
	f := art.FilePaths[0]
	assert.Equal(t, "README.md", f.RelativePath)
	assert.Equal(t, testFolder, f.WorkspaceFolder)
	assert.Equal(t, workspace.StagingPath("tab-1", "u1", "README.md"), f.VirtualPath)

	staged, err := h.staging.ReadFile(f.VirtualPath)
	require.NoError(t, err)
	assert.Equal(t, "# Repo\n\nUsage.\n", string(staged))

	uploadID, err := h.session.UploadID()
	require.NoError(t, err)
	assert.Equal(t, "u1", uploadID)
	assert.Contains(t, h.session.UploadHistory(), "u1")
	assert.Equal(t, 1, state.Iterations().Current)

	assert.Equal(t, []string{msgUploading, msgGenerating}, h.messenger.placeholders)
	require.Len(t, h.messenger.fileUpdates, 1)
	assert.Equal(t, "README.md", h.messenger.fileUpdates[0][0].RelativePath)

	snap := h.session.Telemetry().Snapshot()
	assert.Equal(t, 1, snap.Generations)
	assert.Equal(t, 0, snap.Failures)
}

func TestSendSetsTaskFromFirstMessageOnly(t *testing.T) {
	h := newHarness(t)
	h.client.EXPECT().CreateConversation(gomock.Any()).Return("c1", nil)

	var uploads []backend.CreateUploadURLRequest
	var starts []backend.StartCodeGenerationRequest
	h.client.EXPECT().CreateUploadURL(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req backend.CreateUploadURLRequest) (*backend.UploadURL, error) {
			uploads = append(uploads, req)
			return &backend.UploadURL{UploadID: "u1"}, nil
		}).Times(2)
	h.client.EXPECT().UploadArchive(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
	h.client.EXPECT().StartCodeGeneration(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req backend.StartCodeGenerationRequest) (*backend.StartCodeGenerationResponse, error) {
			starts = append(starts, req)
			return &backend.StartCodeGenerationResponse{}, nil
		}).Times(2)
	h.client.EXPECT().GetCodeGeneration(gomock.Any(), "c1", gomock.Any()).
		Return(&backend.CodeGeneration{Status: backend.StatusComplete, RemainingIterations: intPtr(1), TotalIterations: intPtr(3)}, nil).Times(2)
	h.client.EXPECT().ExportResultArchive(gomock.Any(), "c1").
		Return(&backend.ResultArchive{NewFiles: []backend.NewFileContent{{ZipFilePath: "README.md", Content: "v"}}}, nil).Times(2)

	_, err := h.session.Send(context.Background(), "first", ModeCreate, "")
	require.NoError(t, err)
	_, err = h.session.Send(context.Background(), "second", ModeEdit, "")
	require.NoError(t, err)

	assert.Equal(t, "first", h.session.Task())
	assert.Equal(t, "second", h.session.LatestMessage())

	require.Len(t, uploads, 2)
	assert.Empty(t, uploads[0].UploadID)
	assert.Equal(t, "u1", uploads[1].UploadID)

	require.Len(t, starts, 2)
	assert.Equal(t, "first", starts[0].Message)
	assert.Equal(t, "second", starts[1].Message)
	assert.Equal(t, string(ModeEdit), starts[1].Mode)
	assert.NotEqual(t, starts[0].CodeGenerationID, starts[1].CodeGenerationID)

	state, _ := h.session.State()
	assert.Len(t, state.Artifacts().FilePaths, 1)
	iter := state.Iterations()
	assert.Equal(t, 2, iter.Current)
	require.NotNil(t, iter.Remaining)
	assert.Equal(t, 1, *iter.Remaining)
}

func TestSendFailureMovesToErrorState(t *testing.T) {
	h := newHarness(t)
	h.client.EXPECT().CreateConversation(gomock.Any()).Return("c1", nil)
	h.client.EXPECT().CreateUploadURL(gomock.Any(), gomock.Any()).Return(&backend.UploadURL{UploadID: "u1"}, nil)
	h.client.EXPECT().UploadArchive(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	h.client.EXPECT().StartCodeGeneration(gomock.Any(), gomock.Any()).Return(&backend.StartCodeGenerationResponse{}, nil)
	h.client.EXPECT().GetCodeGeneration(gomock.Any(), "c1", gomock.Any()).
		Return(&backend.CodeGeneration{Status: backend.StatusFailed, FailureReason: "model error"}, nil)

	interaction, err := h.session.Send(context.Background(), "write docs", ModeCreate, "")
	require.NoError(t, err)
	assert.True(t, interaction.Failed)
	assert.True(t, interaction.CanRetry)
	assert.Equal(t, msgGenerationError, interaction.Content)
	assert.True(t, gserrors.IsCode(interaction.Err, gserrors.ErrCodeCodeGenFailed))
	assert.Equal(t, defaultMaxRetries-1, h.session.Retries())

	state, _ := h.session.State()
	require.Equal(t, PhaseError, state.Phase())
	assert.True(t, gserrors.IsCode(state.(*ErrorState).Cause(), gserrors.ErrCodeCodeGenFailed))

	uploadID, err := state.UploadID()
	require.NoError(t, err)
	assert.Equal(t, "u1", uploadID)
	assert.Equal(t, 1, h.session.Telemetry().Snapshot().Failures)
}

func TestRetryAfterFailureRecovers(t *testing.T) {
	h := newHarness(t)
	h.client.EXPECT().CreateConversation(gomock.Any()).Return("c1", nil)
	h.client.EXPECT().CreateUploadURL(gomock.Any(), gomock.Any()).Return(nil, &backend.APIError{StatusCode: 500, Message: "boom", Retryable: true})

	interaction, err := h.session.Send(context.Background(), "write docs", ModeCreate, "")
	require.NoError(t, err)
	assert.True(t, interaction.Failed)
	assert.Equal(t, msgUploadFailed, interaction.Content)

	h.expectRound("u2", backend.NewFileContent{ZipFilePath: "docs/guide.md", Content: "guide"})
	interaction, err = h.session.Send(context.Background(), "write docs", ModeCreate, "")
	require.NoError(t, err)
	assert.False(t, interaction.Failed)

	state, _ := h.session.State()
	assert.Equal(t, PhaseCompleted, state.Phase())
	assert.Equal(t, "docs/guide.md", state.Artifacts().FilePaths[0].RelativePath)
}

func TestRetriesExhausted(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxRetries = 1 })
	h.client.EXPECT().CreateConversation(gomock.Any()).Return("c1", nil)
	h.collector.err = errors.New("permission denied")

	interaction, err := h.session.Send(context.Background(), "write docs", ModeCreate, "")
	require.NoError(t, err)
	assert.True(t, interaction.Failed)
	assert.False(t, interaction.CanRetry)
	assert.Equal(t, 0, h.session.Retries())

	interaction, err = h.session.Send(context.Background(), "write docs", ModeCreate, "")
	require.NoError(t, err)
	assert.True(t, interaction.Failed)
	assert.False(t, interaction.CanRetry)
	assert.Equal(t, msgNoRetries, interaction.Content)
	assert.Equal(t, 1, h.collector.calls)
	assert.Equal(t, 0, h.session.Retries())
}

func TestCompletedStateNeedsInstruction(t *testing.T) {
	h := newHarness(t)
	h.client.EXPECT().CreateConversation(gomock.Any()).Return("c1", nil)
	require.NoError(t, h.session.Preloader(context.Background(), ""))
	h.install(Artifacts{FilePaths: []NewFileInfo{{RelativePath: "README.md"}}})

	interaction, err := h.session.Send(context.Background(), "   ", ModeNone, "")
	require.NoError(t, err)
	assert.Equal(t, msgNeedInstruction, interaction.Content)

	state, _ := h.session.State()
	assert.Equal(t, PhaseCompleted, state.Phase())
	assert.Empty(t, h.session.Task())
}

func TestCancelDuringGeneration(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.PollInterval = time.Hour })
	h.client.EXPECT().CreateConversation(gomock.Any()).Return("c1", nil)
	h.client.EXPECT().CreateUploadURL(gomock.Any(), gomock.Any()).Return(&backend.UploadURL{UploadID: "u1"}, nil)
	h.client.EXPECT().UploadArchive(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	h.client.EXPECT().StartCodeGeneration(gomock.Any(), gomock.Any()).Return(&backend.StartCodeGenerationResponse{}, nil)
	h.client.EXPECT().GetCodeGeneration(gomock.Any(), "c1", gomock.Any()).
		DoAndReturn(func(context.Context, string, string) (*backend.CodeGeneration, error) {
			h.session.Cancel()
			return &backend.CodeGeneration{Status: backend.StatusInProgress}, nil
		})

	_, err := h.session.Send(context.Background(), "write docs", ModeCreate, "")
	require.Error(t, err)
	assert.True(t, gserrors.IsCode(err, gserrors.ErrCodeCancelled))

	state, _ := h.session.State()
	assert.Equal(t, PhasePrepareCodeGen, state.Phase())
	assert.Empty(t, h.session.UploadHistory())
	assert.Equal(t, defaultMaxRetries, h.session.Retries())

	h.expectRound("u1", backend.NewFileContent{ZipFilePath: "README.md", Content: "x"})
	interaction, err := h.session.Send(context.Background(), "write docs", ModeCreate, "")
	require.NoError(t, err)
	assert.False(t, interaction.Failed)

	state, _ = h.session.State()
	assert.Equal(t, PhaseCompleted, state.Phase())
}

func TestCancelAfterStagingCommitsNothing(t *testing.T) {
	var h *harness
	h = newHarness(t, func(c *Config) {
		c.Staging = &recordingFS{FileSystem: c.Staging, onWrite: func(string) error {
			h.session.Cancel()
			return nil
		}}
	})
	h.client.EXPECT().CreateConversation(gomock.Any()).Return("c1", nil)
	h.expectRound("u1", backend.NewFileContent{ZipFilePath: "README.md", Content: "# Repo\n"})

	_, err := h.session.Send(context.Background(), "write docs", ModeCreate, "")
	require.Error(t, err)
	assert.True(t, gserrors.IsCode(err, gserrors.ErrCodeCancelled))

	state, _ := h.session.State()
	assert.Equal(t, PhasePrepareCodeGen, state.Phase())
	assert.Empty(t, h.messenger.fileUpdates)
	assert.Empty(t, h.session.UploadHistory())
	assert.Equal(t, 0, h.session.Telemetry().Snapshot().Generations)
}

func TestCommitEffectsFollowInstalledState(t *testing.T) {
	var h *harness
	ui := &hookMessenger{recordingMessenger: &recordingMessenger{}}
	h = newHarness(t, func(c *Config) {
		ui.onUpdate = func() { h.session.Cancel() }
		c.Messenger = ui
	})
	h.client.EXPECT().CreateConversation(gomock.Any()).Return("c1", nil)
	h.expectRound("u1", backend.NewFileContent{ZipFilePath: "README.md", Content: "# Repo\n"})

	_, err := h.session.Send(context.Background(), "write docs", ModeCreate, "")
	require.NoError(t, err)

	completed, _ := h.session.State()
	assert.Equal(t, PhaseCompleted, completed.Phase())
	assert.Len(t, ui.fileUpdates, 1)
	assert.Equal(t, 1, h.session.Telemetry().Snapshot().Generations)
	assert.True(t, completed.TokenSource().IsCancelled())

	interaction, err := h.session.Send(context.Background(), "", ModeNone, "")
	require.NoError(t, err)
	assert.Equal(t, msgNeedInstruction, interaction.Content)

	refreshed, _ := h.session.State()
	assert.NotSame(t, completed, refreshed)
	assert.Equal(t, PhaseCompleted, refreshed.Phase())
	assert.False(t, refreshed.TokenSource().IsCancelled())
	assert.True(t, completed.TokenSource().IsCancelled())
	assert.Equal(t, completed.Artifacts(), refreshed.Artifacts())
}

func TestSendRejectsConcurrentMessages(t *testing.T) {
	h := newHarness(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.client.EXPECT().CreateConversation(gomock.Any()).
		DoAndReturn(func(context.Context) (string, error) {
			close(entered)
			<-release
			return "", errors.New("unavailable")
		})

	done := make(chan error, 1)
	go func() {
		_, err := h.session.Send(context.Background(), "first", ModeCreate, "")
		done <- err
	}()

	<-entered
	_, err := h.session.Send(context.Background(), "second", ModeCreate, "")
	assert.ErrorIs(t, err, ErrSessionBusy)

	close(release)
	err = <-done
	assert.True(t, gserrors.IsCode(err, gserrors.ErrCodeConversationSetup))
	assert.Equal(t, "first", h.session.LatestMessage())
}

func TestTelemetryEventsCarryConversationID(t *testing.T) {
	h := newHarness(t)
	h.session.cfg.Reporter = telemetry.NewReporter(h.client, nil)
	h.client.EXPECT().CreateConversation(gomock.Any()).Return("c1", nil)
	require.NoError(t, h.session.Preloader(context.Background(), ""))

	var envs []telemetry.Envelope
	h.client.EXPECT().SendTelemetryEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, env telemetry.Envelope) error {
			envs = append(envs, env)
			return nil
		}).Times(2)

	h.session.SendDocGenerationTelemetryEvent(context.Background(), telemetry.GenerationEvent{
		NumberOfAddedChars: 10,
		Interaction:        telemetry.InteractionGenerateReadme,
	})
	h.session.SendDocAcceptanceTelemetryEvent(context.Background(), telemetry.AcceptanceEvent{
		Decision: telemetry.DecisionAccept,
	})

	require.Len(t, envs, 2)
	assert.Equal(t, "c1", envs[0].ConversationID())
	assert.Equal(t, telemetry.KindDocGeneration, envs[0].Kind)
	assert.Equal(t, "c1", envs[1].ConversationID())
	assert.Equal(t, telemetry.KindDocAcceptance, envs[1].Kind)
}

func TestTelemetrySubmitFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.session.cfg.Reporter = telemetry.NewReporter(h.client, nil)
	h.client.EXPECT().SendTelemetryEvent(gomock.Any(), gomock.Any()).Return(errors.New("offline"))

	assert.NotPanics(t, func() {
		h.session.SendDocGenerationTelemetryEvent(context.Background(), telemetry.GenerationEvent{})
	})
}

func TestSetAuthenticating(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.session.IsAuthenticating())
	h.session.SetAuthenticating(true)
	assert.True(t, h.session.IsAuthenticating())
}

func TestDecreaseRetriesFloorsAtZero(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxRetries = 1 })
	h.session.DecreaseRetries()
	h.session.DecreaseRetries()
	assert.Equal(t, 0, h.session.Retries())
}

func TestModeInteractionType(t *testing.T) {
	assert.Equal(t, telemetry.InteractionGenerateReadme, ModeCreate.InteractionType())
	assert.Equal(t, telemetry.InteractionUpdateReadme, ModeUpdate.InteractionType())
	assert.Equal(t, telemetry.InteractionEditReadme, ModeEdit.InteractionType())
	assert.Equal(t, telemetry.InteractionType(""), ModeNone.InteractionType())
}
