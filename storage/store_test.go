package storage

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore spins up an embedded NATS server with JetStream and returns a
// Store backed by it. The server is torn down with the test.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping embedded NATS store test in short mode")
	}

	opts := &server.Options{
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	}
	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS server failed to start")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	conn, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	js, err := jetstream.New(conn)
	require.NoError(t, err)

	store, err := NewStore(context.Background(), js)
	require.NoError(t, err)
	return store
}

func TestProjectLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &Project{
		Name:        "New Project",
		Description: "todo app",
		Prompt:      "todo app",
		Status:      Status{Phase: "creating", Progress: 0},
	}
	require.NoError(t, store.CreateProject(ctx, p))
	require.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Project", got.Name)
	assert.Equal(t, "creating", got.Status.Phase)

	require.NoError(t, store.UpdateProjectStatus(ctx, p.ID, Status{
		Phase:    "ready",
		Progress: 100,
		Message:  "Project is ready",
	}))
	got, err = store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "ready", got.Status.Phase)
	assert.Equal(t, 100, got.Status.Progress)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))

	require.NoError(t, store.UpdateProjectMeta(ctx, p.ID, "todo_app", "A todo app"))
	require.NoError(t, store.SetFilesCount(ctx, p.ID, 3))
	require.NoError(t, store.SetGithubURL(ctx, p.ID, "https://github.com/user/todo_app"))

	got, err = store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "todo_app", got.Name)
	assert.Equal(t, 3, got.FilesCount)
	assert.Equal(t, "https://github.com/user/todo_app", got.GithubURL)

	list, err := store.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = store.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFilesAllowDuplicatePaths(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &Project{Name: "p", Status: Status{Phase: "creating"}}
	require.NoError(t, store.CreateProject(ctx, p))

	// Two records with the same path must both survive.
	for i := 0; i < 2; i++ {
		require.NoError(t, store.CreateFile(ctx, &FileItem{
			ProjectID: p.ID,
			Path:      "app.py",
			Content:   "print('hi')",
			Language:  "python",
		}))
	}

	files, err := store.ListFilesByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "app.py", files[0].Path)
	assert.Equal(t, "app.py", files[1].Path)
	assert.NotEqual(t, files[0].ID, files[1].ID)
}

func TestFileUpdateAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &Project{Name: "p", Status: Status{Phase: "creating"}}
	require.NoError(t, store.CreateProject(ctx, p))

	f := &FileItem{ProjectID: p.ID, Path: "main.py", Content: "x = 1", Language: "python"}
	require.NoError(t, store.CreateFile(ctx, f))

	require.NoError(t, store.UpdateFileContent(ctx, f.ID, "x = 2"))
	got, err := store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "x = 2", got.Content)

	deleted, err := store.DeleteFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, deleted.ProjectID)

	_, err = store.GetFile(ctx, f.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteProjectCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &Project{Name: "doomed", Status: Status{Phase: "ready"}}
	other := &Project{Name: "survivor", Status: Status{Phase: "ready"}}
	require.NoError(t, store.CreateProject(ctx, p))
	require.NoError(t, store.CreateProject(ctx, other))

	require.NoError(t, store.CreateFile(ctx, &FileItem{ProjectID: p.ID, Path: "a.py"}))
	require.NoError(t, store.CreateFile(ctx, &FileItem{ProjectID: other.ID, Path: "b.py"}))
	require.NoError(t, store.AppendLog(ctx, &LogEntry{ProjectID: p.ID, Agent: "generator", Message: "hi"}))
	require.NoError(t, store.InsertTestResult(ctx, &TestResult{ProjectID: p.ID, TestsPassed: 1}))
	require.NoError(t, store.CreateVersion(ctx, &Version{ProjectID: p.ID, Message: "v1"}))

	require.NoError(t, store.DeleteProject(ctx, p.ID))

	_, err := store.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	files, err := store.ListFilesByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, files)

	logs, err := store.ListLogsByProject(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)

	// Unrelated project keeps its records
	files, err = store.ListFilesByProject(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestLogsNewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &Project{Name: "p", Status: Status{Phase: "creating"}}
	require.NoError(t, store.CreateProject(ctx, p))

	for _, msg := range []string{"first", "second", "third"} {
		require.NoError(t, store.AppendLog(ctx, &LogEntry{
			ProjectID: p.ID,
			Agent:     "generator",
			Message:   msg,
		}))
		time.Sleep(2 * time.Millisecond)
	}

	logs, err := store.ListLogsByProject(ctx, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "third", logs[0].Message)
	assert.Equal(t, "second", logs[1].Message)
	assert.Equal(t, LevelInfo, logs[0].Level)
}

func TestSettingsSeedAndPatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.UsePlatformKey)
	assert.Equal(t, "gpt-4o", cfg.DefaultModel)

	token := "ghp_test"
	usePlatform := false
	updated, err := store.UpdateSettings(ctx, SettingsPatch{
		GithubToken:    &token,
		UsePlatformKey: &usePlatform,
	})
	require.NoError(t, err)
	assert.Equal(t, "ghp_test", updated.GithubToken)
	assert.False(t, updated.UsePlatformKey)
	// Unpatched fields keep their values
	assert.Equal(t, "gpt-4o", updated.DefaultModel)

	again, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ghp_test", again.GithubToken)
}

func TestEnsureAgentsIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	defaults := []AgentConfig{
		{Name: "generator", PromptTemplate: "gen {prompt}", ModelProvider: "openai", ModelName: "gpt-4o", Enabled: true},
		{Name: "tester", PromptTemplate: "test {files}", ModelProvider: "openai", ModelName: "gpt-4o", Enabled: true},
	}
	require.NoError(t, store.EnsureAgents(ctx, defaults))

	// Re-seeding with changed templates must not overwrite
	defaults[0].PromptTemplate = "changed"
	require.NoError(t, store.EnsureAgents(ctx, defaults))

	agents, err := store.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "generator", agents[0].Name)
	assert.Equal(t, "gen {prompt}", agents[0].PromptTemplate)
}

func TestTestResultsAndVersions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &Project{Name: "p", Status: Status{Phase: "testing"}}
	require.NoError(t, store.CreateProject(ctx, p))

	require.NoError(t, store.InsertTestResult(ctx, &TestResult{
		ProjectID:   p.ID,
		TestsPassed: 2,
		TestsFailed: 1,
		Errors:      []string{"app.py: SyntaxError"},
	}))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.InsertTestResult(ctx, &TestResult{
		ProjectID:   p.ID,
		TestsPassed: 3,
	}))

	results, err := store.ListTestResultsByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 3, results[0].TestsPassed)
	assert.NotNil(t, results[0].Errors)

	require.NoError(t, store.CreateVersion(ctx, &Version{
		ProjectID: p.ID,
		Message:   "Initial version",
		Changes:   map[string]any{"files_created": 3},
	}))
	versions, err := store.ListVersionsByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "ai_agent", versions[0].CreatedBy)

	got, err := store.GetVersion(ctx, versions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Initial version", got.Message)
	assert.Equal(t, p.ID, got.ProjectID)

	_, err = store.GetVersion(ctx, "no-such-version")
	assert.ErrorIs(t, err, ErrNotFound)
}
