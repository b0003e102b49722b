// Package session is the façade that ties the tracker and peer
// packages together: it runs one tracker announce and hands the
// resulting peer set to a bounded worker pool, each worker performing
// one peer's handshake and message loop. Piece selection, on-disk
// storage and retry policy are the caller's concern; this package's
// job ends at handing the caller a connected, handshaken
// peer.PeerConnection.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/arjunmenon/gobt/metainfo"
	"github.com/arjunmenon/gobt/peer"
	"github.com/arjunmenon/gobt/peerid"
	"github.com/arjunmenon/gobt/tracker"
)

// Config is the session-wide, caller-supplied configuration for one
// download run.
type Config struct {
	// Workers is the number of concurrent peer-connection goroutines.
	// Zero is a configuration error, caught eagerly at New.
	Workers int
	// ConnectTimeout bounds each peer's transport connect call.
	// Zero means peer.DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// ListenPort is advertised to the tracker as our listening port.
	// Conventionally TCP 6881, reserved by this process even though
	// it does not accept inbound connections.
	ListenPort uint16
}

// ConfigError reports a configuration value rejected at construction.
type ConfigError struct {
	Field string
	Value int
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("session: invalid configuration: %s = %d", e.Field, e.Value)
}

// PeerHandler is the caller-supplied function applied to each
// connected, handshaken peer. Its error is logged and the connection
// is dropped without retry; it does not propagate to Download.
type PeerHandler func(ctx context.Context, pc *peer.PeerConnection) error

// Client drives tracker announces and the peer worker pool for one
// process. Its PeerID and torrent Info (once a download starts) are
// shared, read-only, across every worker goroutine.
type Client struct {
	id     peerid.ID
	cfg    Config
	runID  uuid.UUID
	logger zerolog.Logger
}

// New constructs a Client. It is a configuration error, reported
// eagerly, for cfg.Workers to be zero.
func New(id peerid.ID, cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.Workers == 0 {
		return nil, &ConfigError{Field: "Workers", Value: cfg.Workers}
	}
	runID, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.Wrap(err, "session: generating run id")
	}
	return &Client{
		id:     id,
		cfg:    cfg,
		runID:  runID,
		logger: logger.With().Str("run_id", runID.String()).Logger(),
	}, nil
}

// Download performs one tracker announce for td and dispatches the
// returned peers across a bounded worker pool, each worker calling
// handle once it has completed the handshake. Download blocks until
// every worker has returned.
func (c *Client) Download(ctx context.Context, td *metainfo.TorrentDescriptor, handle PeerHandler) error {
	left := uint64(td.Info.TotalLength())
	params := tracker.AnnounceParameters{
		InfoHash: td.Info.Hash,
		PeerID:   c.id,
		Port:     c.cfg.ListenPort,
		Left:     left,
		Mode:     tracker.Compact,
		Event:    tracker.EventStarted,
	}

	resp, err := tracker.Announce(td.Announce, params)
	if err != nil {
		return errors.Wrap(err, "session: announcing to tracker")
	}
	c.logger.Info().Int("peer_count", len(resp.Peers)).Msg("received peers from tracker")

	queue := make(chan tracker.Peer, len(resp.Peers))
	for _, p := range resp.Peers {
		queue <- p
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerIndex int) {
			defer wg.Done()
			c.runWorker(ctx, workerIndex, td.Info.Hash, queue, handle)
		}(i)
	}
	wg.Wait()
	return nil
}

func (c *Client) runWorker(ctx context.Context, workerIndex int, infoHash metainfo.Fingerprint, queue <-chan tracker.Peer, handle PeerHandler) {
	log := c.logger.With().Int("worker", workerIndex).Logger()
	for p := range queue {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pc, err := peer.Connect(p.Addr(), infoHash, c.id, c.cfg.ConnectTimeout)
		if err != nil {
			log.Warn().Err(err).Str("peer", p.Addr()).Msg("could not connect to peer")
			continue
		}
		log.Info().Str("peer", p.Addr()).Msg("connected to peer")

		if err := handle(ctx, pc); err != nil {
			log.Warn().Err(err).Str("peer", p.Addr()).Msg("disconnecting from peer")
		}
		pc.Close()
	}
}
