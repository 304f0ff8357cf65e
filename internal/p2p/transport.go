// Package p2p carries ceremony frames between engines over libp2p streams.
//
// Every frame travels on its own stream of ProtocolID. Peers are a static table
// mapping validator accounts to libp2p addresses, and streams from any other
// peer are reset.
package p2p

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bridgeval/engine/internal/wire"
	"github.com/bridgeval/engine/pkg/ceremony"
	"github.com/bridgeval/engine/pkg/party"
	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ProtocolID is the libp2p protocol of ceremony frames.
const ProtocolID = protocol.ID("/bridgeval/ceremony/1.0.0")

const (
	// DefaultQueueSize is the number of frames buffered per peer.
	DefaultQueueSize = 256
	// DefaultSendTimeout bounds opening a stream and writing a frame.
	DefaultSendTimeout = 5 * time.Second
)

var (
	// ErrUnknownPeer is returned when sending to an account missing from the peer table.
	ErrUnknownPeer = errors.New("p2p: unknown peer")
	// ErrQueueFull is returned when the outbound queue of a peer is full.
	ErrQueueFull = errors.New("p2p: outbound queue full")
)

// Peer is an entry of the static peer table.
type Peer struct {
	AccountID party.AccountID
	// Address is a multiaddr ending in /p2p/<peer id>.
	Address string
}

// Config of a Transport.
type Config struct {
	Listen      []string
	Identity    crypto.PrivKey
	Peers       []Peer
	QueueSize   int
	SendTimeout time.Duration
}

type outbound struct {
	id    peer.ID
	queue chan []byte
}

// Transport implements ceremony.Transport on a libp2p host.
type Transport struct {
	host        host.Host
	inbound     chan<- ceremony.InboundFrame
	queueSize   int
	sendTimeout time.Duration

	mtx      sync.RWMutex
	peers    map[party.AccountID]*outbound
	accounts map[peer.ID]party.AccountID

	closing chan struct{}
	frames  *prometheus.CounterVec
	log     zerolog.Logger
}

// New starts a libp2p host listening on cfg.Listen. Frames received from known
// peers are delivered on inbound.
func New(cfg Config, inbound chan<- ceremony.InboundFrame, reg prometheus.Registerer, logger zerolog.Logger) (*Transport, error) {
	if cfg.Identity == nil {
		return nil, errors.New("p2p: missing identity key")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}

	opts := []libp2p.Option{libp2p.Identity(cfg.Identity)}
	var addrs []ma.Multiaddr
	for _, s := range cfg.Listen {
		if strings.TrimSpace(s) == "" {
			continue
		}
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, errors.Wrapf(err, "p2p: listen address %q", s)
		}
		addrs = append(addrs, a)
	}
	if len(addrs) > 0 {
		opts = append(opts, libp2p.ListenAddrs(addrs...))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "p2p: create host")
	}

	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	t := &Transport{
		host:        h,
		inbound:     inbound,
		queueSize:   cfg.QueueSize,
		sendTimeout: cfg.SendTimeout,
		peers:       make(map[party.AccountID]*outbound, len(cfg.Peers)),
		accounts:    make(map[peer.ID]party.AccountID, len(cfg.Peers)),
		closing:     make(chan struct{}),
		frames: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "p2p",
			Name:      "frames_total",
			Help:      "Frames exchanged with peers",
		}, []string{"direction", "result"}),
		log: logger.With().Str("component", "p2p").Str("peer_id", h.ID().String()).Logger(),
	}
	for _, p := range cfg.Peers {
		info, err := parsePeer(p.Address)
		if err != nil {
			_ = h.Close()
			return nil, errors.Wrapf(err, "p2p: peer %s", p.AccountID.Short())
		}
		t.AddPeer(p.AccountID, info)
	}
	h.SetStreamHandler(ProtocolID, t.handleStream)

	for _, a := range h.Addrs() {
		t.log.Info().Str("addr", a.String()).Msg("listening")
	}
	return t, nil
}

func parsePeer(addr string) (peer.AddrInfo, error) {
	maAddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return peer.AddrInfo{}, err
	}
	info, err := peer.AddrInfoFromP2pAddr(maAddr)
	if err != nil {
		return peer.AddrInfo{}, err
	}
	return *info, nil
}

// ID returns the libp2p identity of the host.
func (t *Transport) ID() peer.ID {
	return t.host.ID()
}

// Addrs returns the listen addresses of the host.
func (t *Transport) Addrs() []ma.Multiaddr {
	return t.host.Addrs()
}

// AddPeer registers the libp2p address of a validator account.
// It must be called before Run.
func (t *Transport) AddPeer(account party.AccountID, info peer.AddrInfo) {
	t.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.peers[account] = &outbound{id: info.ID, queue: make(chan []byte, t.queueSize)}
	t.accounts[info.ID] = account
}

// Send enqueues a frame for the account to. It never blocks.
func (t *Transport) Send(to party.AccountID, frame []byte) error {
	t.mtx.RLock()
	out, ok := t.peers[to]
	t.mtx.RUnlock()
	if !ok {
		return errors.Wrap(ErrUnknownPeer, to.Short())
	}
	select {
	case out.queue <- frame:
		return nil
	default:
		t.frames.WithLabelValues("tx", "queue_full").Inc()
		return errors.Wrap(ErrQueueFull, to.Short())
	}
}

// Run writes queued frames to their peers until ctx is done, then closes the host.
func (t *Transport) Run(ctx context.Context) error {
	defer close(t.closing)
	defer t.host.Close()

	t.mtx.RLock()
	g, ctx := errgroup.WithContext(ctx)
	for account, out := range t.peers {
		account, out := account, out
		g.Go(func() error {
			t.writeLoop(ctx, account, out)
			return nil
		})
	}
	t.mtx.RUnlock()
	return g.Wait()
}

func (t *Transport) writeLoop(ctx context.Context, account party.AccountID, out *outbound) {
	log := t.log.With().Str("to", account.Short()).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-out.queue:
			if err := t.deliver(ctx, out.id, frame); err != nil {
				t.frames.WithLabelValues("tx", "error").Inc()
				log.Warn().Err(err).Msg("failed to deliver frame")
				continue
			}
			t.frames.WithLabelValues("tx", "ok").Inc()
		}
	}
}

func (t *Transport) deliver(ctx context.Context, id peer.ID, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, t.sendTimeout)
	defer cancel()
	s, err := t.host.NewStream(ctx, id, ProtocolID)
	if err != nil {
		return errors.Wrap(err, "p2p: open stream")
	}
	_ = s.SetWriteDeadline(time.Now().Add(t.sendTimeout))
	if _, err := s.Write(frame); err != nil {
		_ = s.Reset()
		return errors.Wrap(err, "p2p: write frame")
	}
	return s.Close()
}

func (t *Transport) handleStream(s network.Stream) {
	remote := s.Conn().RemotePeer()
	t.mtx.RLock()
	account, ok := t.accounts[remote]
	t.mtx.RUnlock()
	if !ok {
		t.frames.WithLabelValues("rx", "unknown_peer").Inc()
		t.log.Debug().Str("remote", remote.String()).Msg("resetting stream from unknown peer")
		_ = s.Reset()
		return
	}

	_ = s.SetReadDeadline(time.Now().Add(t.sendTimeout))
	data, err := io.ReadAll(io.LimitReader(s, wire.MaxFrameSize+1))
	if err != nil || len(data) > wire.MaxFrameSize {
		t.frames.WithLabelValues("rx", "error").Inc()
		t.log.Warn().Err(err).Str("from", account.Short()).Int("size", len(data)).Msg("failed to read frame")
		_ = s.Reset()
		return
	}
	_ = s.Close()

	select {
	case t.inbound <- ceremony.InboundFrame{From: account, Frame: data}:
		t.frames.WithLabelValues("rx", "ok").Inc()
	case <-t.closing:
	}
}
