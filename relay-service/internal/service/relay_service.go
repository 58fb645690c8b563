package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkglog "github.com/weiawesome/wes-io-live/peer-relay/pkg/log"
	"github.com/weiawesome/wes-io-live/peer-relay/pkg/protocol"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/directory"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/hub"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/kafka"
)

var (
	// ErrNotAnnounced is returned when a pending session tries to signal.
	ErrNotAnnounced = errors.New("session has not announced")
	// ErrSessionClosed is returned when an announce races a disconnect.
	ErrSessionClosed = errors.New("session closed")
)

// Options tunes presence behaviour.
type Options struct {
	// ActivityWindow bounds the snapshot sent after announce.
	ActivityWindow time.Duration
	// PruneInterval drives directory pruning for backends that support it.
	// Records older than Retention are dropped. Zero disables pruning.
	PruneInterval time.Duration
	Retention     time.Duration
}

type relayService struct {
	hub           *hub.Hub
	directory     directory.Directory
	kafkaProducer kafka.PresenceEventProducer
	opts          Options

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelayService creates a new RelayService instance. kafkaProducer may be
// nil when presence events are disabled.
func NewRelayService(
	h *hub.Hub,
	dir directory.Directory,
	kafkaProducer kafka.PresenceEventProducer,
	opts Options,
) RelayService {
	if opts.ActivityWindow <= 0 {
		opts.ActivityWindow = 10 * time.Minute
	}
	return &relayService{
		hub:           h,
		directory:     dir,
		kafkaProducer: kafkaProducer,
		opts:          opts,
	}
}

func (s *relayService) HandleAnnounce(ctx context.Context, c *hub.Client, userID, displayName string) error {
	l := pkglog.Ctx(ctx)

	if !s.hub.BindUser(c, userID, displayName) {
		return ErrSessionClosed
	}

	if _, err := s.directory.Upsert(ctx, userID, displayName); err != nil {
		c.SendMessage(protocol.NewError(protocol.ErrCodeInternalError, "presence unavailable"))
		return fmt.Errorf("upsert user: %w", err)
	}

	records, err := s.directory.ActiveSince(ctx, s.opts.ActivityWindow)
	if err != nil {
		c.SendMessage(protocol.NewError(protocol.ErrCodeInternalError, "presence unavailable"))
		return fmt.Errorf("list active users: %w", err)
	}

	peers := make([]protocol.PeerInfo, 0, len(records))
	for _, r := range records {
		if r.ID == userID {
			continue
		}
		peers = append(peers, protocol.PeerInfo{UserID: r.ID, DisplayName: r.DisplayName})
	}
	if err := c.SendMessage(protocol.NewPeerList(peers)); err != nil {
		return err
	}

	joined := protocol.NewPeerList([]protocol.PeerInfo{{UserID: userID, DisplayName: displayName}})
	if err := s.hub.BroadcastActive(joined, c.ID); err != nil {
		return err
	}

	l.Info().
		Str(pkglog.FieldUserID, userID).
		Str(pkglog.FieldDisplayName, displayName).
		Int("peers", len(peers)).
		Msg("peer announced")

	if s.kafkaProducer != nil {
		if err := s.kafkaProducer.ProducePeerJoined(ctx, userID, displayName); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldUserID, userID).Msg("failed to publish peer_joined event")
		}
	}
	return nil
}

func (s *relayService) HandleSignal(ctx context.Context, c *hub.Client, to string, signal json.RawMessage) error {
	if !c.Session.IsActive() {
		c.SendMessage(protocol.NewError(protocol.ErrCodeNotAnnounced, "announce before signaling"))
		return ErrNotAnnounced
	}

	from, fromName := c.Session.Identity()
	delivered, err := s.hub.SendToUser(to, protocol.NewForwardedSignal(from, fromName, signal))
	if err != nil {
		return err
	}

	l := pkglog.Ctx(ctx)
	l.Debug().
		Str(pkglog.FieldUserID, from).
		Str(pkglog.FieldTarget, to).
		Bool("delivered", delivered).
		Msg("signal relayed")
	return nil
}

func (s *relayService) HandleDisconnect(ctx context.Context, c *hub.Client, dep hub.Departure) error {
	l := pkglog.Ctx(ctx)

	if dep.UserID == "" {
		l.Debug().Str("reason", dep.Reason).Msg("pending session closed")
		return nil
	}
	if !dep.Current {
		l.Debug().Str(pkglog.FieldUserID, dep.UserID).Msg("superseded session closed")
		return nil
	}

	if err := s.hub.BroadcastActive(protocol.NewPeerLeft(dep.UserID), c.ID); err != nil {
		return err
	}
	l.Info().Str(pkglog.FieldUserID, dep.UserID).Str("reason", dep.Reason).Msg("peer left")

	if s.kafkaProducer != nil && dep.Reason != hub.ReasonShutdown {
		if err := s.kafkaProducer.ProducePeerLeft(ctx, dep.UserID, dep.Reason); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldUserID, dep.UserID).Msg("failed to publish peer_left event")
		}
	}
	return nil
}

func (s *relayService) Start(ctx context.Context) error {
	pruner, ok := s.directory.(directory.Pruner)
	if !ok || s.opts.PruneInterval <= 0 || s.opts.Retention <= 0 {
		return nil
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.pruneLoop(ctx, pruner)
	return nil
}

func (s *relayService) pruneLoop(ctx context.Context, pruner directory.Pruner) {
	defer close(s.done)
	l := pkglog.Component("presence")

	ticker := time.NewTicker(s.opts.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := pruner.Prune(ctx, now.Add(-s.opts.Retention))
			if err != nil {
				l.Warn().Err(err).Msg("directory prune failed")
				continue
			}
			if n > 0 {
				l.Debug().Int64("removed", n).Msg("directory pruned")
			}
		}
	}
}

func (s *relayService) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}
