package timeoutwars

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crowdmod/internal/immunity"
	"crowdmod/internal/modules/audit"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

type Status int

const (
	StatusMuted Status = iota
	StatusImmune
	StatusDenied
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusMuted:
		return "muted"
	case StatusImmune:
		return "immune"
	case StatusDenied:
		return "denied"
	default:
		return "failed"
	}
}

type Result struct {
	User      User
	Status    Status
	Remaining time.Duration
	Err       error
}

// Executor times out users, honouring and granting immunity.
type Executor struct {
	platform    Platform
	immunity    *immunity.Tracker
	duration    time.Duration
	immuneFor   time.Duration
	maxParallel int
	logger      *zap.Logger
}

func NewExecutor(platform Platform, tracker *immunity.Tracker, duration, immuneFor time.Duration, maxParallel int, logger *zap.Logger) *Executor {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Executor{
		platform:    platform,
		immunity:    tracker,
		duration:    duration,
		immuneFor:   immuneFor,
		maxParallel: maxParallel,
		logger:      logger,
	}
}

func (e *Executor) Duration() time.Duration {
	return e.duration
}

// Execute mutes every target. One failing target never blocks the others and
// results come back in target order.
func (e *Executor) Execute(ctx context.Context, guildID string, targets []User, reason audit.Reason) []Result {
	targets = uniqueUsers(targets)
	results := make([]Result, len(targets))

	p := pool.New().WithMaxGoroutines(e.maxParallel)
	for i, target := range targets {
		i, target := i, target
		p.Go(func() {
			results[i] = e.executeOne(ctx, guildID, target, reason)
		})
	}
	p.Wait()

	return results
}

func (e *Executor) executeOne(ctx context.Context, guildID string, target User, reason audit.Reason) Result {
	left, expiry, reserved := e.immunity.Reserve(target.ID, e.immuneFor)
	if !reserved {
		return Result{User: target, Status: StatusImmune, Remaining: left}
	}

	err := e.platform.Timeout(ctx, guildID, target.ID, e.duration, string(reason))
	if err != nil {
		e.immunity.Release(target.ID, expiry)
	}
	switch {
	case err == nil:
		return Result{User: target, Status: StatusMuted}
	case errors.Is(err, ErrPermissionDenied):
		e.logger.Debug("timeout denied", zap.String("user_id", target.ID), zap.String("guild_id", guildID))
		return Result{User: target, Status: StatusDenied, Err: err}
	default:
		e.logger.Warn("timeout failed", zap.String("user_id", target.ID), zap.String("guild_id", guildID), zap.Error(err))
		return Result{User: target, Status: StatusFailed, Err: err}
	}
}

// Muted returns the users whose timeout succeeded.
func Muted(results []Result) []User {
	var users []User
	for _, result := range results {
		if result.Status == StatusMuted {
			users = append(users, result.User)
		}
	}
	return users
}

// Lines renders one notification line per muted or immune result. Denied and
// failed results produce nothing.
func Lines(results []Result, muteTemplate string, duration time.Duration) []string {
	var lines []string
	for _, result := range results {
		switch result.Status {
		case StatusMuted:
			lines = append(lines, fmt.Sprintf(muteTemplate, result.User.Mention, int(duration.Minutes())))
		case StatusImmune:
			lines = append(lines, fmt.Sprintf(immunityTemplate, result.User.Name, int(result.Remaining.Seconds())))
		}
	}
	return lines
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
