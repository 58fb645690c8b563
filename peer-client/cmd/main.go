package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-live/peer-relay/peer-client/internal/channel"
	"github.com/weiawesome/wes-io-live/peer-relay/peer-client/internal/config"
	"github.com/weiawesome/wes-io-live/peer-relay/peer-client/internal/session"
	"github.com/weiawesome/wes-io-live/peer-relay/peer-client/internal/transport"
	"github.com/weiawesome/wes-io-live/peer-relay/peer-client/internal/ui"
	pkglog "github.com/weiawesome/wes-io-live/peer-relay/pkg/log"
	"github.com/weiawesome/wes-io-live/peer-relay/pkg/protocol"
)

var (
	configFile string
	relayURL   string
	name       string
)

func main() {
	root := &cobra.Command{
		Use:          "peer",
		Short:        "Peer-to-peer chat over WebRTC data channels",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if cmd.Flags().Changed("relay") {
				cfg.Relay.URL = relayURL
			}
			if cmd.Flags().Changed("name") {
				cfg.User.Name = name
			}
			return run(cmd.Context(), cfg, os.Stdin, os.Stdout)
		},
	}

	root.Flags().StringVarP(&configFile, "config", "c", "", "path to a peer.yaml config file")
	root.Flags().StringVar(&relayURL, "relay", "", "relay websocket URL (e.g. ws://127.0.0.1:5000/ws)")
	root.Flags().StringVarP(&name, "name", "n", "", "display name shown to other peers")

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "peer", Output: os.Stderr})
	logger := pkglog.L()

	userID := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	displayName := fmt.Sprintf("%s:%s", cfg.User.Name, userID[:4])

	term := ui.NewTerminal(out)
	term.Printf("you are %s (id %s)", displayName, userID)

	ch := channel.New(channel.Options{
		URL:           cfg.Relay.URL,
		ReconnectBase: cfg.Relay.ReconnectBase,
		ReconnectMax:  cfg.Relay.ReconnectMax,
	})
	factory := transport.NewPionFactory(transport.PionOptions{ICEServers: cfg.WebRTC.GetICEServers()})
	mgr := session.NewManager(
		session.Identity{UserID: userID, DisplayName: displayName},
		ch, factory, term,
		session.Options{
			MaxPeers:           cfg.Peers.Max,
			NegotiationTimeout: cfg.Peers.NegotiationTimeout,
			ReapInterval:       cfg.Peers.ReapInterval,
		},
	)

	// Every (re)connect announces again so the relay rebinds our id.
	ch.OnOpen(func() {
		if err := ch.Send(protocol.NewAnnounce(userID, displayName)); err != nil {
			logger.Warn().Err(err).Msg("announce failed")
		}
	})
	ch.OnStateChange(term.OnNetworkStateChanged)
	ch.OnMessage(func(data []byte) {
		mgr.HandleEnvelope(data)
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return ch.Run(gCtx) })
	g.Go(func() error { return mgr.Run(gCtx) })
	g.Go(func() error {
		defer stop()
		return readInput(gCtx, in, mgr, term)
	})

	return g.Wait()
}

// readInput runs the line-oriented chat loop until EOF, /quit or ctx ends.
func readInput(ctx context.Context, in io.Reader, mgr *session.Manager, term *ui.Terminal) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := ui.ParseCommand(line)
			if err != nil {
				term.Printf("%v", err)
				continue
			}

			switch cmd.Kind {
			case ui.CmdQuit:
				return nil
			case ui.CmdPeers:
				peers := mgr.Peers()
				if len(peers) == 0 {
					term.Printf("no peers")
				}
				for _, p := range peers {
					term.Printf("%s  %-20s %-11s %s", p.PeerID, p.DisplayName, p.State, p.Role)
				}
			case ui.CmdDirect:
				if _, err := mgr.Send(cmd.Target, cmd.Text); err != nil {
					if errors.Is(err, session.ErrPeerNotConnected) {
						term.Printf("%s is not connected", cmd.Target)
						continue
					}
					term.Printf("send failed: %v", err)
				}
			case ui.CmdBroadcast:
				if n := mgr.Broadcast(cmd.Text); n == 0 {
					term.Printf("no connected peers, message not sent")
				}
			}
		}
	}
}
