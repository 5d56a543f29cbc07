package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/future-messaging/internal/mailer"
	"github.com/LeventeLantos/future-messaging/internal/model"
	"github.com/LeventeLantos/future-messaging/internal/repo"
)

// LinkResolver turns a stored media reference into a time-limited URL.
type LinkResolver interface {
	SignedLink(ctx context.Context, storagePath string) (string, error)
}

type SweeperOptions struct {
	BatchSize      int
	Workers        int
	MessageTimeout time.Duration
	StaleClaim     time.Duration
	Timezone       *time.Location
}

// Sweeper runs the delivery sweep: claim due messages, resolve recipients and
// attachment links, render, dispatch, record the outcome. One invocation per
// ticker tick, plus ad hoc runs via the admin API.
type Sweeper struct {
	messages repo.MessageRepository
	profiles repo.ProfileRepository
	links    LinkResolver
	client   mailer.Mailer
	opts     SweeperOptions

	now func() time.Time

	onSent func(ctx context.Context, messageID, recipientEmail string, sentAt time.Time) error
}

func NewSweeper(
	messages repo.MessageRepository,
	profiles repo.ProfileRepository,
	links LinkResolver,
	client mailer.Mailer,
	opts SweeperOptions,
) *Sweeper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MessageTimeout <= 0 {
		opts.MessageTimeout = 30 * time.Second
	}
	if opts.StaleClaim <= 0 {
		opts.StaleClaim = time.Hour
	}
	if opts.Timezone == nil {
		opts.Timezone = time.UTC
	}
	return &Sweeper{
		messages: messages,
		profiles: profiles,
		links:    links,
		client:   client,
		opts:     opts,
		now:      time.Now,
	}
}

// WithHooks registers a callback fired after a message is marked sent.
// Hook errors are logged, never propagated.
func (s *Sweeper) WithHooks(onSent func(ctx context.Context, messageID, recipientEmail string, sentAt time.Time) error) *Sweeper {
	s.onSent = onSent
	return s
}

// WithClock overrides the wall clock; tests pin delivery times with it.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Sweep runs one delivery pass. Every claimed message leaves as sent or
// failed; a failure in one message never touches the others. A claim-query
// failure ends the sweep early, the next tick retries from scratch.
func (s *Sweeper) Sweep(ctx context.Context) (sent int, failed int) {
	now := s.now().UTC()

	if n, err := s.messages.RequeueStale(ctx, now.Add(-s.opts.StaleClaim)); err != nil {
		slog.Warn("sweep: requeue stale claims failed", "error", err)
	} else if n > 0 {
		slog.Info("sweep: requeued stale claims", "count", n)
	}

	msgs, err := s.messages.ClaimDue(ctx, now, s.opts.BatchSize)
	if err != nil {
		slog.Error("sweep: claiming due messages failed", "error", err)
		return 0, 0
	}
	if len(msgs) == 0 {
		return 0, 0
	}

	slog.Info("sweep: claimed due messages", "count", len(msgs))

	var sentCount, failedCount atomic.Int64

	g := &errgroup.Group{}
	g.SetLimit(s.opts.Workers)
	for _, m := range msgs {
		g.Go(func() error {
			mctx, cancel := context.WithTimeout(ctx, s.opts.MessageTimeout)
			defer cancel()

			if err := s.deliver(mctx, m); err != nil {
				failedCount.Add(1)
				slog.Error("sweep: delivery failed", "message_id", m.ID, "error", err)
				if mErr := s.messages.MarkFailed(ctx, m.ID, err.Error()); mErr != nil {
					slog.Error("sweep: recording failure failed", "message_id", m.ID, "error", mErr)
				}
				return nil
			}

			sentCount.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	sent = int(sentCount.Load())
	failed = int(failedCount.Load())
	slog.Info("sweep: completed", "claimed", len(msgs), "sent", sent, "failed", failed)
	return sent, failed
}

func (s *Sweeper) deliver(ctx context.Context, m model.Message) error {
	profile, err := s.profiles.GetByOwnerID(ctx, m.OwnerID)
	if err != nil {
		return fmt.Errorf("resolve owner profile: %w", err)
	}

	to := ""
	displayName := strings.TrimSpace(m.RecipientName)
	if m.SelfAddressed() {
		to = strings.TrimSpace(profile.Email)
		if displayName == "" {
			displayName = profile.DisplayName
		}
	} else {
		to = strings.TrimSpace(*m.RecipientEmail)
	}
	if to == "" {
		return fmt.Errorf("no deliverable email address for owner %s", m.OwnerID)
	}
	if displayName == "" {
		displayName = to
	}

	links := make([]AttachmentLink, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		url, err := s.links.SignedLink(ctx, a.StoragePath)
		if err != nil {
			// A dead reference costs that attachment, never the send.
			slog.Warn("sweep: attachment link skipped",
				"message_id", m.ID, "storage_path", a.StoragePath, "error", err)
			continue
		}
		links = append(links, AttachmentLink{Filename: a.Filename, URL: url})
	}

	content, err := RenderDelivery(displayName, m, links, s.opts.Timezone)
	if err != nil {
		return err
	}

	if err := s.client.Send(ctx, mailer.Email{To: to, Subject: content.Subject, HTML: content.HTML}); err != nil {
		return fmt.Errorf("dispatch mail: %w", err)
	}

	sentAt := s.now().UTC()
	if err := s.messages.MarkSent(ctx, m.ID, sentAt); err != nil {
		// The mail left the relay, so the message counts as sent even if the
		// status write lagged; the stale-claim requeue will pick the row up.
		slog.Error("sweep: recording sent status failed", "message_id", m.ID, "error", err)
		return nil
	}

	if s.onSent != nil {
		if err := s.onSent(ctx, m.ID, to, sentAt); err != nil {
			slog.Warn("sweep: sent hook failed", "message_id", m.ID, "error", err)
		}
	}
	return nil
}
