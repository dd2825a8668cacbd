package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixbothq/fixbot/internal/extract"
	"github.com/fixbothq/fixbot/internal/slack"
	"github.com/fixbothq/fixbot/internal/task"
	"github.com/fixbothq/fixbot/internal/workspace"
)

type fakeDedup struct {
	processed  bool
	checkErr   error
	markOwned  bool
	markErr    error
	markCalls  int
	checkCalls int
}

func (d *fakeDedup) HasProcessed(context.Context, string) (bool, error) {
	d.checkCalls++
	return d.processed, d.checkErr
}

func (d *fakeDedup) MarkProcessed(context.Context, string, string) (bool, error) {
	d.markCalls++
	return d.markOwned, d.markErr
}

type fakeTenants struct {
	ws         workspace.Workspace
	wsErr      error
	mapping    *workspace.ChannelMapping
	mappingErr error
}

func (t *fakeTenants) ResolveWorkspace(context.Context, string) (workspace.Workspace, error) {
	return t.ws, t.wsErr
}

func (t *fakeTenants) ResolveChannel(context.Context, string) (*workspace.ChannelMapping, error) {
	return t.mapping, t.mappingErr
}

type fakeStore struct {
	created     []task.CreateInput
	createErr   error
	messages    []task.AddMessageInput
	statusCalls []string
	statusErr   error
	assignCalls []string
	assignErr   error
	thread      task.Task
	threadErr   error
	counts      map[string]int64
	countsErr   error
	displayID   string
}

func (s *fakeStore) Create(_ context.Context, input task.CreateInput) (task.CreateResult, error) {
	s.created = append(s.created, input)
	if s.createErr != nil {
		return task.CreateResult{}, s.createErr
	}
	return task.CreateResult{TaskID: "tid", DisplayID: s.displayID}, nil
}

func (s *fakeStore) AddMessage(_ context.Context, input task.AddMessageInput) error {
	s.messages = append(s.messages, input)
	return nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, _ string, displayID string, newStatus task.Status, _ string) error {
	s.statusCalls = append(s.statusCalls, displayID+":"+string(newStatus))
	return s.statusErr
}

func (s *fakeStore) Assign(_ context.Context, _ string, displayID, assigneeSlackUserID, _ string) error {
	s.assignCalls = append(s.assignCalls, displayID+":"+assigneeSlackUserID)
	return s.assignErr
}

func (s *fakeStore) GetBySlackThread(context.Context, string, string, string) (task.Task, error) {
	return s.thread, s.threadErr
}

func (s *fakeStore) CountByPriority(context.Context, string) (map[string]int64, error) {
	return s.counts, s.countsErr
}

type fakeSender struct {
	sent    []slack.SendMessageInput
	sendErr error
}

func (s *fakeSender) SendMessage(_ context.Context, input slack.SendMessageInput) error {
	s.sent = append(s.sent, input)
	return s.sendErr
}

type staticExtractor struct {
	draft extract.TaskDraft
	calls int
	text  string
}

func (e *staticExtractor) Extract(_ context.Context, text, _ string) extract.TaskDraft {
	e.calls++
	e.text = text
	return e.draft
}

func testWorkspace() workspace.Workspace {
	return workspace.Workspace{
		ID:             "8d6f9a1a-6f6e-4f07-9a57-7e3f1a2b3c4d",
		Slug:           "acme-1234",
		SlackTeamID:    "T01234",
		SlackBotUserID: "U0BOT",
	}
}

func mentionEvent(text string) Event {
	return Event{
		TeamID:    "T01234",
		ChannelID: "C123",
		UserID:    "U777",
		Text:      text,
		MessageTS: "171.001",
		ThreadTS:  "171.001",
		EventID:   "171.001",
	}
}

func newTestOrchestrator(dedup *fakeDedup, tenants *fakeTenants, store *fakeStore, extractor extract.Extractor, sender *fakeSender) *Orchestrator {
	return NewOrchestrator(nil, dedup, tenants, store, extractor, sender, "test-model")
}

func TestHandleMentionCreatesTask(t *testing.T) {
	dedup := &fakeDedup{markOwned: true}
	tenants := &fakeTenants{
		ws:      testWorkspace(),
		mapping: &workspace.ChannelMapping{SlackChannelID: "C123", SlackChannelName: "eng-bugs", RepositoryID: "repo-1"},
	}
	store := &fakeStore{displayID: "ACM-1"}
	extractor := &staticExtractor{draft: extract.TaskDraft{
		Title:      "Fix login",
		Priority:   extract.PriorityHigh,
		TaskType:   extract.TypeBug,
		Confidence: 0.9,
	}}
	sender := &fakeSender{}

	err := newTestOrchestrator(dedup, tenants, store, extractor, sender).
		HandleMention(context.Background(), mentionEvent("<@U0BOT> login is broken"))
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	created := store.created[0]
	assert.Equal(t, "login is broken", extractor.text)
	assert.Equal(t, "eng-bugs", created.SlackChannelName)
	assert.Equal(t, "repo-1", created.RepositoryID)
	require.NotNil(t, created.Extraction)
	assert.Equal(t, "test-model", created.Extraction.Model)
	assert.Equal(t, 0.9, created.Extraction.Confidence)
	assert.Equal(t, "login is broken", created.Extraction.OriginalText)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "Created **ACM-1**: Fix login")
	assert.Equal(t, "171.001", sender.sent[0].ThreadTS)
}

func TestHandleMentionAlreadyProcessed(t *testing.T) {
	dedup := &fakeDedup{processed: true}
	store := &fakeStore{}
	extractor := &staticExtractor{}
	sender := &fakeSender{}

	err := newTestOrchestrator(dedup, &fakeTenants{ws: testWorkspace()}, store, extractor, sender).
		HandleMention(context.Background(), mentionEvent("<@U0BOT> anything"))
	require.NoError(t, err)

	// Zero side effects on a duplicate delivery.
	assert.Equal(t, 0, dedup.markCalls)
	assert.Empty(t, store.created)
	assert.Equal(t, 0, extractor.calls)
	assert.Empty(t, sender.sent)
}

func TestHandleMentionLostMarkRace(t *testing.T) {
	dedup := &fakeDedup{markOwned: false}
	store := &fakeStore{}
	sender := &fakeSender{}

	err := newTestOrchestrator(dedup, &fakeTenants{ws: testWorkspace()}, store, &staticExtractor{}, sender).
		HandleMention(context.Background(), mentionEvent("<@U0BOT> anything"))
	require.NoError(t, err)
	assert.Empty(t, store.created)
	assert.Empty(t, sender.sent)
}

func TestHandleMentionUnknownTenant(t *testing.T) {
	dedup := &fakeDedup{markOwned: true}
	tenants := &fakeTenants{wsErr: workspace.ErrWorkspaceNotFound}
	store := &fakeStore{}
	sender := &fakeSender{}

	err := newTestOrchestrator(dedup, tenants, store, &staticExtractor{}, sender).
		HandleMention(context.Background(), mentionEvent("<@U0BOT> anything"))
	require.NoError(t, err)
	assert.Empty(t, store.created)
	assert.Empty(t, sender.sent)
}

func TestHandleMentionEmptyAfterStripSendsHelp(t *testing.T) {
	dedup := &fakeDedup{markOwned: true}
	store := &fakeStore{}
	extractor := &staticExtractor{}
	sender := &fakeSender{}

	err := newTestOrchestrator(dedup, &fakeTenants{ws: testWorkspace()}, store, extractor, sender).
		HandleMention(context.Background(), mentionEvent("  <@U0BOT>  "))
	require.NoError(t, err)

	assert.Equal(t, 0, extractor.calls)
	assert.Empty(t, store.created)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "How can I help?")
}

func TestHandleMentionStatusCommand(t *testing.T) {
	dedup := &fakeDedup{markOwned: true}
	store := &fakeStore{}
	sender := &fakeSender{}

	err := newTestOrchestrator(dedup, &fakeTenants{ws: testWorkspace()}, store, &staticExtractor{}, sender).
		HandleMention(context.Background(), mentionEvent("<@U0BOT> mark ACM-7 as done"))
	require.NoError(t, err)

	assert.Equal(t, []string{"ACM-7:done"}, store.statusCalls)
	assert.Empty(t, store.created)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Marked ACM-7 as done.", sender.sent[0].Text)
}

func TestHandleMentionAssignCommand(t *testing.T) {
	dedup := &fakeDedup{markOwned: true}
	store := &fakeStore{}
	sender := &fakeSender{}

	err := newTestOrchestrator(dedup, &fakeTenants{ws: testWorkspace()}, store, &staticExtractor{}, sender).
		HandleMention(context.Background(), mentionEvent("<@U0BOT> assign ACM-7 to <@U0999>"))
	require.NoError(t, err)

	assert.Equal(t, []string{"ACM-7:U0999"}, store.assignCalls)
	assert.Empty(t, store.created)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Assigned ACM-7 to <@U0999>.", sender.sent[0].Text)
}

func TestHandleMentionSummarize(t *testing.T) {
	dedup := &fakeDedup{markOwned: true}
	store := &fakeStore{counts: map[string]int64{"critical": 1, "low": 2}}
	sender := &fakeSender{}

	err := newTestOrchestrator(dedup, &fakeTenants{ws: testWorkspace()}, store, &staticExtractor{}, sender).
		HandleMention(context.Background(), mentionEvent("<@U0BOT> summarize"))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "**3 open tasks** by priority:\n* critical: 1\n* low: 2", sender.sent[0].Text)
}

func TestHandleMentionStoreFailureApologizes(t *testing.T) {
	dedup := &fakeDedup{markOwned: true}
	store := &fakeStore{createErr: errors.New("insert failed")}
	sender := &fakeSender{}

	err := newTestOrchestrator(dedup, &fakeTenants{ws: testWorkspace()}, store, &staticExtractor{}, sender).
		HandleMention(context.Background(), mentionEvent("<@U0BOT> broken thing"))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, apologyMessage, sender.sent[0].Text)
}

func TestHandleMentionSendFailureIsSwallowed(t *testing.T) {
	dedup := &fakeDedup{markOwned: true}
	store := &fakeStore{displayID: "ACM-2"}
	sender := &fakeSender{sendErr: errors.New("channel_not_found")}

	err := newTestOrchestrator(dedup, &fakeTenants{ws: testWorkspace()}, store, &staticExtractor{}, sender).
		HandleMention(context.Background(), mentionEvent("<@U0BOT> broken thing"))
	require.NoError(t, err)
	assert.Len(t, store.created, 1)
}

func TestHandleMentionChannelLookupFailureProceeds(t *testing.T) {
	dedup := &fakeDedup{markOwned: true}
	tenants := &fakeTenants{ws: testWorkspace(), mappingErr: errors.New("db hiccup")}
	store := &fakeStore{displayID: "ACM-3"}
	sender := &fakeSender{}

	err := newTestOrchestrator(dedup, tenants, store, &staticExtractor{}, sender).
		HandleMention(context.Background(), mentionEvent("<@U0BOT> broken thing"))
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	assert.Empty(t, store.created[0].SlackChannelName)
	assert.Empty(t, store.created[0].RepositoryID)
}

func TestHandleThreadReplyLinksMessage(t *testing.T) {
	store := &fakeStore{thread: task.Task{ID: "task-1"}}
	event := Event{
		TeamID:    "T01234",
		ChannelID: "C123",
		UserID:    "U777",
		Text:      "also happens on mobile",
		MessageTS: "171.002",
		ThreadTS:  "171.001",
	}

	err := newTestOrchestrator(&fakeDedup{}, &fakeTenants{ws: testWorkspace()}, store, &staticExtractor{}, &fakeSender{}).
		HandleThreadReply(context.Background(), event)
	require.NoError(t, err)

	require.Len(t, store.messages, 1)
	assert.Equal(t, "task-1", store.messages[0].TaskID)
	assert.Equal(t, "also happens on mobile", store.messages[0].Content)
	assert.Equal(t, "171.002", store.messages[0].SlackMessageTS)
}

func TestHandleThreadReplyNoTaskIsDropped(t *testing.T) {
	store := &fakeStore{threadErr: task.ErrTaskNotFound}

	err := newTestOrchestrator(&fakeDedup{}, &fakeTenants{ws: testWorkspace()}, store, &staticExtractor{}, &fakeSender{}).
		HandleThreadReply(context.Background(), Event{TeamID: "T01234", ThreadTS: "171.001"})
	require.NoError(t, err)
	assert.Empty(t, store.messages)
}

func TestStripMention(t *testing.T) {
	assert.Equal(t, "fix this", stripMention("<@U0BOT> fix this", "U0BOT"))
	assert.Equal(t, "fix this", stripMention("<@u0bot> fix this", "U0BOT"))
	assert.Equal(t, "a  b", stripMention("<@U0BOT> a <@U0BOT> b", "U0BOT"))
	assert.Equal(t, "raw text", stripMention("  raw text ", ""))
}

func TestFormatSummaryEmpty(t *testing.T) {
	assert.Equal(t, "No open tasks. The board is clear.", formatSummary(nil))
}
