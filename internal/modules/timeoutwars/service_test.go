package timeoutwars

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"crowdmod/internal/immunity"
	"crowdmod/internal/modules/audit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMessage struct {
	channelID string
	content   string
}

type fakePlatform struct {
	mu        sync.Mutex
	reactors  []User
	denied    map[string]bool
	failed    map[string]bool
	timeouts  []string
	sent      []sentMessage
	listCalls int
}

func (f *fakePlatform) Reactors(ctx context.Context, msg Message, emoji string) ([]User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return append([]User(nil), f.reactors...), nil
}

func (f *fakePlatform) Timeout(ctx context.Context, guildID, userID string, d time.Duration, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied[userID] {
		return ErrPermissionDenied
	}
	if f.failed[userID] {
		return errors.New("gateway unavailable")
	}
	f.timeouts = append(f.timeouts, userID)
	return nil
}

func (f *fakePlatform) Send(ctx context.Context, channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channelID: channelID, content: content})
	return nil
}

type fakeNotifier struct {
	notices []audit.Notice
}

func (f *fakeNotifier) Announce(ctx context.Context, notice audit.Notice) error {
	f.notices = append(f.notices, notice)
	return nil
}

// seqRand returns the queued values in order and 0 once exhausted.
type seqRand struct {
	values []int
}

func (s *seqRand) IntN(n int) int {
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[0]
	s.values = s.values[1:]
	return v % n
}

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

var (
	userA  = User{ID: "a", Name: "alice", Mention: "<@a>"}
	userB  = User{ID: "b", Name: "bob", Mention: "<@b>"}
	userC  = User{ID: "c", Name: "carol", Mention: "<@c>"}
	author = User{ID: "x", Name: "xavier", Mention: "<@x>"}
)

type fixture struct {
	service  *Service
	platform *fakePlatform
	tracker  *immunity.Tracker
	clock    *fakeClock
	journal  *audit.Journal
	notifier *fakeNotifier
}

func newFixture(t *testing.T, rolls ...int) *fixture {
	t.Helper()
	journal, err := audit.OpenJournal(filepath.Join(t.TempDir(), "timeout_wars.csv"))
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	auditLogger := audit.NewLogger(journal, zap.NewNop())
	auditLogger.SetNotifier(notifier)

	clock := &fakeClock{now: time.Unix(10_000, 0)}
	tracker := immunity.NewTracker()
	tracker.WithClock(clock)

	platform := &fakePlatform{reactors: []User{userA, userB, userC}}
	service := New(Config{
		Emoji:            "🔇",
		Threshold:        3,
		Timeout:          5 * time.Minute,
		Immunity:         30 * time.Minute,
		ChanceAllMute:    60,
		ChanceRandomMute: 30,
		MaxParallel:      3,
	}, platform, tracker, auditLogger, zap.NewNop())
	service.WithRand(&seqRand{values: rolls})

	return &fixture{service: service, platform: platform, tracker: tracker, clock: clock, journal: journal, notifier: notifier}
}

func qualifyingMessage() Message {
	return Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Author:    author,
		Reactions: []Reaction{{Emoji: "👍", Count: 9}, {Emoji: "🔇", Count: 3}},
	}
}

func (f *fixture) records(t *testing.T) []audit.Record {
	t.Helper()
	records, err := f.journal.ReadAll()
	require.NoError(t, err)
	return records
}

func isProcessed(d *Detector, messageID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.processed[messageID]
	return ok
}

func TestDetectorRequiresMuteReactionAtThreshold(t *testing.T) {
	detector := NewDetector("🔇", 3)

	_, ok := detector.Qualify(Message{ID: "m0", Reactions: []Reaction{{Emoji: "👍", Count: 10}}})
	assert.False(t, ok)
	assert.False(t, isProcessed(detector, "m0"))

	_, ok = detector.Qualify(Message{ID: "m1", Reactions: []Reaction{{Emoji: "🔇", Count: 2}}})
	assert.False(t, ok)
	assert.False(t, isProcessed(detector, "m1"))

	reaction, ok := detector.Qualify(Message{ID: "m1", Reactions: []Reaction{{Emoji: "🔇", Count: 3}}})
	require.True(t, ok)
	assert.Equal(t, 3, reaction.Count)
	assert.True(t, isProcessed(detector, "m1"))

	_, ok = detector.Qualify(Message{ID: "m1", Reactions: []Reaction{{Emoji: "🔇", Count: 7}}})
	assert.False(t, ok)
}

func TestDetectorQualifiesOnceUnderConcurrency(t *testing.T) {
	detector := NewDetector("🔇", 1)
	msg := Message{ID: "m1", Reactions: []Reaction{{Emoji: "🔇", Count: 5}}}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		passed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := detector.Qualify(msg); ok {
				mu.Lock()
				passed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, passed)
}

func TestSelectorClassify(t *testing.T) {
	selector := NewSelector(60, 30)
	for roll := 1; roll <= 100; roll++ {
		got := selector.Classify(roll)
		switch {
		case roll <= 60:
			assert.Equal(t, OutcomeAllMute, got, "roll %d", roll)
		case roll <= 90:
			assert.Equal(t, OutcomeRandomMute, got, "roll %d", roll)
		default:
			assert.Equal(t, OutcomeAuthorMute, got, "roll %d", roll)
		}
	}
}

func TestSelectorFullWeightsNeverPickAuthor(t *testing.T) {
	selector := NewSelector(50, 50)
	for roll := 1; roll <= 100; roll++ {
		assert.NotEqual(t, OutcomeAuthorMute, selector.Classify(roll))
	}
}

func TestSelectorDrawUsesOneToHundred(t *testing.T) {
	selector := NewSelector(60, 30)
	selector.WithRand(&seqRand{values: []int{0, 59, 60, 89, 90, 99}})

	want := []Outcome{OutcomeAllMute, OutcomeAllMute, OutcomeRandomMute, OutcomeRandomMute, OutcomeAuthorMute, OutcomeAuthorMute}
	for _, outcome := range want {
		assert.Equal(t, outcome, selector.Draw())
	}
}

func TestExecutorImmuneUserKeepsExpiry(t *testing.T) {
	f := newFixture(t)
	f.tracker.Grant(userA.ID, 120*time.Second)

	results := f.service.executor.Execute(context.Background(), "g1", []User{userA}, audit.ReasonAuthorMute)
	require.Len(t, results, 1)
	assert.Equal(t, StatusImmune, results[0].Status)
	assert.LessOrEqual(t, results[0].Remaining, 120*time.Second)

	lines := Lines(results, muteTemplate, 5*time.Minute)
	require.Len(t, lines, 1)
	assert.Equal(t, "alice is immune for another 120 seconds.", lines[0])

	left, ok := f.tracker.Remaining(userA.ID)
	require.True(t, ok)
	assert.Equal(t, 120*time.Second, left)
	assert.Empty(t, f.platform.timeouts)
}

func TestExecutorGrantsImmunityAfterMute(t *testing.T) {
	f := newFixture(t)

	results := f.service.executor.Execute(context.Background(), "g1", []User{userA}, audit.ReasonAuthorMute)
	require.Equal(t, StatusMuted, results[0].Status)

	left, ok := f.tracker.Remaining(userA.ID)
	require.True(t, ok)
	assert.Equal(t, 30*time.Minute, left)

	f.clock.now = f.clock.now.Add(29 * time.Minute)
	results = f.service.executor.Execute(context.Background(), "g1", []User{userA}, audit.ReasonAuthorMute)
	assert.Equal(t, StatusImmune, results[0].Status)
	assert.Equal(t, []string{"a"}, f.platform.timeouts)
}

// gatedPlatform holds every timeout until release is closed.
type gatedPlatform struct {
	fakePlatform
	entered chan struct{}
	release chan struct{}
}

func (g *gatedPlatform) Timeout(ctx context.Context, guildID, userID string, d time.Duration, reason string) error {
	g.entered <- struct{}{}
	<-g.release
	return g.fakePlatform.Timeout(ctx, guildID, userID, d, reason)
}

func TestExecutorConcurrentTargetsMuteOnce(t *testing.T) {
	tracker := immunity.NewTracker()
	platform := &gatedPlatform{entered: make(chan struct{}, 2), release: make(chan struct{})}
	executor := NewExecutor(platform, tracker, 5*time.Minute, 30*time.Minute, 1, zap.NewNop())

	first := make(chan []Result, 1)
	go func() {
		first <- executor.Execute(context.Background(), "g1", []User{userA}, audit.ReasonRandomMute)
	}()
	<-platform.entered

	second := executor.Execute(context.Background(), "g1", []User{userA}, audit.ReasonAllMute)
	require.Len(t, second, 1)
	assert.Equal(t, StatusImmune, second[0].Status)

	close(platform.release)
	results := <-first
	assert.Equal(t, StatusMuted, results[0].Status)
	assert.Equal(t, []string{"a"}, platform.timeouts)
}

func TestExecutorDeniedTimeoutReleasesImmunity(t *testing.T) {
	f := newFixture(t)
	f.platform.denied = map[string]bool{"a": true}

	results := f.service.executor.Execute(context.Background(), "g1", []User{userA}, audit.ReasonAuthorMute)
	assert.Equal(t, StatusDenied, results[0].Status)
	assert.False(t, f.tracker.IsImmune(userA.ID))
}

func TestExecutorFailedTimeoutIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.platform.failed = map[string]bool{"b": true}

	results := f.service.executor.Execute(context.Background(), "g1", []User{userA, userB}, audit.ReasonAllMute)
	require.Len(t, results, 2)
	assert.Equal(t, StatusMuted, results[0].Status)
	assert.Equal(t, StatusFailed, results[1].Status)
	assert.False(t, f.tracker.IsImmune(userB.ID))
	assert.Len(t, Lines(results, muteTemplate, 5*time.Minute), 1)
}

func TestAllMuteMixedResults(t *testing.T) {
	f := newFixture(t, 0)
	f.tracker.Grant(userB.ID, time.Hour)
	f.platform.denied = map[string]bool{"c": true}

	decision, err := f.service.HandleReactionUpdate(context.Background(), qualifyingMessage())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllMute, decision.Outcome)

	records := f.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"a"}, records[0].Muted)
	assert.Equal(t, []string{"a", "b", "c"}, records[0].Reacted)
	assert.Equal(t, "x", records[0].Author)
	assert.Equal(t, audit.ReasonAllMute, records[0].Reason)

	require.Len(t, f.platform.sent, 1)
	assert.Equal(t, "c1", f.platform.sent[0].channelID)
	lines := strings.Split(f.platform.sent[0].content, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "<@a> was silenced by the will of the people for 5 minutes.", lines[0])
	assert.Equal(t, "bob is immune for another 3600 seconds.", lines[1])
	assert.NotContains(t, f.platform.sent[0].content, "carol")

	require.Len(t, f.notifier.notices, 1)
	assert.Equal(t, []audit.Target{{ID: "a", Mention: "<@a>"}}, f.notifier.notices[0].Muted)
	assert.Equal(t, "https://discord.com/channels/g1/c1/m1", f.notifier.notices[0].JumpURL)
}

func TestRandomMutePicksOneReactor(t *testing.T) {
	f := newFixture(t, 70, 1)

	decision, err := f.service.HandleReactionUpdate(context.Background(), qualifyingMessage())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRandomMute, decision.Outcome)
	require.Len(t, decision.Results, 1)
	assert.Equal(t, userB, decision.Results[0].User)

	records := f.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"b"}, records[0].Muted)
	assert.Equal(t, []string{"a", "b", "c"}, records[0].Reacted)
	assert.Equal(t, audit.ReasonRandomMute, records[0].Reason)
}

func TestAuthorMuteTargetsAuthorOnly(t *testing.T) {
	f := newFixture(t, 95)

	decision, err := f.service.HandleReactionUpdate(context.Background(), qualifyingMessage())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthorMute, decision.Outcome)
	assert.Equal(t, []string{"x"}, f.platform.timeouts)

	records := f.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"x"}, records[0].Muted)
	assert.Equal(t, audit.ReasonAuthorMute, records[0].Reason)
}

func TestAllTargetsImmuneStillAudits(t *testing.T) {
	f := newFixture(t, 95)
	f.tracker.Grant(author.ID, time.Minute)

	_, err := f.service.HandleReactionUpdate(context.Background(), qualifyingMessage())
	require.NoError(t, err)

	records := f.records(t)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Muted)
	require.Len(t, f.platform.sent, 1)
	assert.Contains(t, f.platform.sent[0].content, "immune")
	assert.Empty(t, f.notifier.notices)
}

func TestDeniedOnlySendsNothing(t *testing.T) {
	f := newFixture(t, 95)
	f.platform.denied = map[string]bool{"x": true}

	_, err := f.service.HandleReactionUpdate(context.Background(), qualifyingMessage())
	require.NoError(t, err)
	assert.Empty(t, f.platform.sent)
	assert.Len(t, f.records(t), 1)
}

func TestReactionUpdateIsIdempotent(t *testing.T) {
	f := newFixture(t, 95, 95)
	msg := qualifyingMessage()

	_, err := f.service.HandleReactionUpdate(context.Background(), msg)
	require.NoError(t, err)
	decision, err := f.service.HandleReactionUpdate(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNone, decision.Outcome)
	assert.Len(t, f.records(t), 1)
	assert.Len(t, f.platform.sent, 1)
	assert.Equal(t, 1, f.platform.listCalls)
}

func TestBelowThresholdDoesNothing(t *testing.T) {
	f := newFixture(t)
	msg := qualifyingMessage()
	msg.Reactions = []Reaction{{Emoji: "🔇", Count: 2}}

	decision, err := f.service.HandleReactionUpdate(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, decision.Outcome)
	assert.Empty(t, f.records(t))
	assert.Equal(t, 0, f.platform.listCalls)
}

func TestMessageDeleteMutesAuthor(t *testing.T) {
	f := newFixture(t)
	msg := qualifyingMessage()
	msg.Reactions = []Reaction{{Emoji: "🔇", Count: 1}}

	decision, err := f.service.HandleMessageDelete(context.Background(), &msg)
	require.NoError(t, err)
	assert.Equal(t, audit.ReasonMessageDeleted, decision.Reason)
	assert.Equal(t, []string{"x"}, f.platform.timeouts)

	require.Len(t, f.platform.sent, 1)
	assert.Equal(t, "<@x> deleted a message marked for silence and was muted for 5 minutes.", f.platform.sent[0].content)

	require.Len(t, f.notifier.notices, 1)
	assert.Empty(t, f.notifier.notices[0].JumpURL)

	records := f.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, audit.ReasonMessageDeleted, records[0].Reason)
	assert.Equal(t, []string{"x"}, records[0].Muted)
	assert.Equal(t, 0, f.platform.listCalls)
}

func TestMessageDeleteIgnoresProcessedSet(t *testing.T) {
	f := newFixture(t, 0)
	msg := qualifyingMessage()

	_, err := f.service.HandleReactionUpdate(context.Background(), msg)
	require.NoError(t, err)
	_, err = f.service.HandleMessageDelete(context.Background(), &msg)
	require.NoError(t, err)

	records := f.records(t)
	require.Len(t, records, 2)
	assert.Equal(t, audit.ReasonMessageDeleted, records[1].Reason)
}

func TestMessageDeleteWithoutReactionOrCache(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.HandleMessageDelete(context.Background(), nil)
	require.NoError(t, err)

	msg := qualifyingMessage()
	msg.Reactions = []Reaction{{Emoji: "👍", Count: 4}}
	_, err = f.service.HandleMessageDelete(context.Background(), &msg)
	require.NoError(t, err)

	assert.Empty(t, f.platform.timeouts)
	assert.Empty(t, f.records(t))
}
