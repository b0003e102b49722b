// Command gobt drives one torrent download from the command line: it
// reads a .torrent file, binds its metainfo, announces to the tracker,
// and hands each connected peer to a handler that logs the first
// message it receives. Piece selection and on-disk assembly are out of scope;
// this is the reference driver for the session package, not a full
// client.
package main

import (
	"context"
	"net"
	"os"
	"strconv"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/arjunmenon/gobt/bencode"
	"github.com/arjunmenon/gobt/metainfo"
	"github.com/arjunmenon/gobt/peer"
	"github.com/arjunmenon/gobt/peerid"
	"github.com/arjunmenon/gobt/session"
)

// defaultListenPort is the TCP port conventionally reserved by a
// BitTorrent client for inbound peer connections. run opens a listener
// on it but never accepts from it.
const defaultListenPort = 6881

var cli struct {
	TorrentFile string `arg:"" help:"Path to the .torrent file to download."`
	Workers     int    `short:"w" default:"8" help:"Number of concurrent peer connections."`
	Port        uint16 `name:"announce-port" default:"6881" help:"Port advertised to the tracker."`
	Verbose     bool   `short:"v" help:"Enable debug logging."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("gobt"),
		kong.Description("A minimal BitTorrent peer-wire client core."),
	)

	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	if cli.Verbose {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("download failed")
	}
}

func run(logger zerolog.Logger) error {
	raw, err := os.ReadFile(cli.TorrentFile)
	if err != nil {
		return errors.Wrap(err, "reading torrent file")
	}

	decoded, err := bencode.Decode(raw)
	if err != nil {
		return errors.Wrap(err, "parsing bencode")
	}

	td, err := metainfo.Bind(decoded)
	if err != nil {
		return errors.Wrap(err, "binding metainfo")
	}
	logger.Info().
		Str("name", td.Info.Name).
		Int64("length", td.Info.TotalLength()).
		Int("pieces", len(td.Info.Pieces)).
		Msg("loaded torrent")

	// Reserve the conventional listening port even though this core
	// never accepts inbound connections on it.
	if ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(defaultListenPort))); err == nil {
		defer ln.Close()
	}

	id, err := peerid.New()
	if err != nil {
		return errors.Wrap(err, "generating peer id")
	}

	client, err := session.New(id, session.Config{
		Workers:        cli.Workers,
		ListenPort:     cli.Port,
		ConnectTimeout: peer.DefaultConnectTimeout,
	}, logger)
	if err != nil {
		return errors.Wrap(err, "constructing session")
	}

	handle := func(ctx context.Context, pc *peer.PeerConnection) error {
		m, err := pc.Recv()
		if err != nil {
			return err
		}
		logger.Debug().
			Str("peer", pc.RemoteID().String()).
			Str("message", m.ID.String()).
			Msg("received message")
		return nil
	}

	return client.Download(context.Background(), td, handle)
}
