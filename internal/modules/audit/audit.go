package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Reason string

const (
	ReasonAllMute        Reason = "all mute"
	ReasonRandomMute     Reason = "random mute"
	ReasonAuthorMute     Reason = "author mute"
	ReasonMessageDeleted Reason = "message deleted"
)

// Record is one journal row. Muted lists only users whose timeout succeeded,
// Reacted lists every user who placed the mute reaction.
type Record struct {
	Muted     []string
	Reacted   []string
	Author    string
	Reason    Reason
	CreatedAt time.Time
}

type Target struct {
	ID      string
	Mention string
}

// Notice is the audit channel announcement for one decision. JumpURL is empty
// when the original message no longer exists.
type Notice struct {
	Reason     Reason
	Muted      []Target
	AuthorID   string
	AuthorName string
	JumpURL    string
}

type Notifier interface {
	Announce(ctx context.Context, notice Notice) error
}

type Logger struct {
	journal *Journal
	logger  *zap.Logger
	notify  Notifier
	now     func() time.Time
}

func NewLogger(journal *Journal, logger *zap.Logger) *Logger {
	return &Logger{journal: journal, logger: logger, now: time.Now}
}

func (l *Logger) SetNotifier(notify Notifier) {
	l.notify = notify
}

// Announce posts the notice to the audit channel. Failures are logged only.
func (l *Logger) Announce(ctx context.Context, notice Notice) {
	if l.notify == nil || len(notice.Muted) == 0 {
		return
	}
	if err := l.notify.Announce(ctx, notice); err != nil {
		l.logger.Warn("audit announce failed", zap.String("reason", string(notice.Reason)), zap.Error(err))
	}
}

func (l *Logger) Log(_ context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now()
	}
	l.logger.Info("audit",
		zap.String("reason", string(rec.Reason)),
		zap.String("author_id", rec.Author),
		zap.Strings("muted", rec.Muted),
		zap.Strings("reacted", rec.Reacted),
	)
	if l.journal == nil {
		return nil
	}
	return l.journal.Append(rec)
}

func (l *Logger) Records() ([]Record, error) {
	if l.journal == nil {
		return nil, nil
	}
	return l.journal.ReadAll()
}
