package timeoutwars

import (
	"context"
	"fmt"
	"time"

	"crowdmod/internal/immunity"
	"crowdmod/internal/modules/audit"

	"go.uber.org/zap"
)

type Config struct {
	Emoji            string
	Threshold        int
	Timeout          time.Duration
	Immunity         time.Duration
	ChanceAllMute    int
	ChanceRandomMute int
	MaxParallel      int
}

// Decision describes what one triggering event did.
type Decision struct {
	Outcome Outcome
	Reason  audit.Reason
	Results []Result
	Record  audit.Record
}

type Service struct {
	cfg      Config
	platform Platform
	detector *Detector
	selector *Selector
	executor *Executor
	audit    *audit.Logger
	logger   *zap.Logger
	rng      Rand
}

func New(cfg Config, platform Platform, tracker *immunity.Tracker, auditLogger *audit.Logger, logger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		platform: platform,
		detector: NewDetector(cfg.Emoji, cfg.Threshold),
		selector: NewSelector(cfg.ChanceAllMute, cfg.ChanceRandomMute),
		executor: NewExecutor(platform, tracker, cfg.Timeout, cfg.Immunity, cfg.MaxParallel, logger),
		audit:    auditLogger,
		logger:   logger,
		rng:      globalRand{},
	}
}

// WithRand replaces the source used for outcome draws and random picks.
func (s *Service) WithRand(rng Rand) {
	s.rng = rng
	s.selector.WithRand(rng)
}

func (s *Service) Emoji() string {
	return s.cfg.Emoji
}

// HandleReactionUpdate runs the threshold pipeline for msg. It returns a zero
// Decision when msg does not qualify or was already handled.
func (s *Service) HandleReactionUpdate(ctx context.Context, msg Message) (Decision, error) {
	if _, ok := s.detector.Qualify(msg); !ok {
		return Decision{}, nil
	}

	reactors, err := s.platform.Reactors(ctx, msg, s.cfg.Emoji)
	if err != nil {
		return Decision{}, fmt.Errorf("list reactors of %s: %w", msg.ID, err)
	}
	reactors = uniqueUsers(reactors)

	outcome := s.selector.Draw()
	reason := outcome.Reason()
	targets := Targets(outcome, msg.Author, reactors, s.rng)
	s.logger.Info("timeout wars triggered",
		zap.String("message_id", msg.ID),
		zap.String("outcome", outcome.String()),
		zap.Int("reactors", len(reactors)),
		zap.Int("targets", len(targets)),
	)

	results := s.executor.Execute(ctx, msg.GuildID, targets, reason)
	s.notify(ctx, msg.ChannelID, Lines(results, muteTemplate, s.executor.Duration()))
	s.audit.Announce(ctx, s.notice(msg, reason, results, msg.JumpURL()))

	record := audit.Record{
		Muted:   userIDs(Muted(results)),
		Reacted: userIDs(reactors),
		Author:  msg.Author.ID,
		Reason:  reason,
	}
	if err := s.audit.Log(ctx, record); err != nil {
		return Decision{}, fmt.Errorf("audit %s: %w", msg.ID, err)
	}
	return Decision{Outcome: outcome, Reason: reason, Results: results, Record: record}, nil
}

// HandleMessageDelete mutes the author of a deleted message that carried the
// mute reaction. cached is nil when the platform kept no copy.
func (s *Service) HandleMessageDelete(ctx context.Context, cached *Message) (Decision, error) {
	if cached == nil {
		return Decision{}, nil
	}
	if _, ok := FindReaction(cached.Reactions, s.cfg.Emoji); !ok {
		return Decision{}, nil
	}

	reason := audit.ReasonMessageDeleted
	results := s.executor.Execute(ctx, cached.GuildID, []User{cached.Author}, reason)
	s.notify(ctx, cached.ChannelID, Lines(results, deletedTemplate, s.executor.Duration()))
	s.audit.Announce(ctx, s.notice(*cached, reason, results, ""))

	record := audit.Record{
		Muted:  userIDs(Muted(results)),
		Author: cached.Author.ID,
		Reason: reason,
	}
	if err := s.audit.Log(ctx, record); err != nil {
		return Decision{}, fmt.Errorf("audit deleted %s: %w", cached.ID, err)
	}
	return Decision{Outcome: OutcomeAuthorMute, Reason: reason, Results: results, Record: record}, nil
}

func (s *Service) notify(ctx context.Context, channelID string, lines []string) {
	if len(lines) == 0 {
		return
	}
	if err := s.platform.Send(ctx, channelID, joinLines(lines)); err != nil {
		s.logger.Warn("timeout wars notice failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (s *Service) notice(msg Message, reason audit.Reason, results []Result, jumpURL string) audit.Notice {
	muted := Muted(results)
	targets := make([]audit.Target, 0, len(muted))
	for _, user := range muted {
		targets = append(targets, audit.Target{ID: user.ID, Mention: user.Mention})
	}
	return audit.Notice{
		Reason:     reason,
		Muted:      targets,
		AuthorID:   msg.Author.ID,
		AuthorName: msg.Author.Name,
		JumpURL:    jumpURL,
	}
}
