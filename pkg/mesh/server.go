package mesh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/crgwbr/knit/pkg/cache"
	"github.com/crgwbr/knit/pkg/metrics"
)

// ErrBindExhausted is returned by Listen when every port in the configured
// range is already in use.
var ErrBindExhausted = errors.New("mesh: no free port in configured range")

// maxBroadcastConcurrency bounds how many peers a single cache-entry
// replication fans out to at once.
const maxBroadcastConcurrency = 8

// Config controls a Server's bind address, port-scan range and timeouts.
type Config struct {
	// Host is the interface to listen on.
	Host string
	// AdvertiseHost is the host peers should use to dial back; defaults to
	// Host when empty.
	AdvertiseHost string
	BasePort      int
	PortRange     int
	AcceptTimeout time.Duration
	DialTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PortRange <= 0 {
		c.PortRange = 1000
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.AdvertiseHost == "" {
		c.AdvertiseHost = c.Host
	}
	return c
}

// dispatch maps each known action to the Server method that handles it.
// Replacing the original's reflection-based action lookup with a fixed
// table makes the set of valid actions explicit and removes any risk of an
// attacker-controlled string resolving to an arbitrary method.
type handlerFunc func(s *Server, senderToken string, raw []byte) (interface{}, error)

var dispatch = map[Action]handlerFunc{
	ActionRegisterNewServer: (*Server).handleRegisterNewServer,
	ActionGetNodeList:       (*Server).handleGetNodeList,
	ActionSaveCacheEntry:    (*Server).handleSaveCacheEntry,
}

// Server is one node of the mesh: it accepts inbound frames, maintains a
// membership table of known peers, and replicates cache writes out to them.
type Server struct {
	cfg Config
	log *zap.Logger

	tokenOnce sync.Once
	token     string

	listener  net.Listener
	localAddr Address

	mu      sync.RWMutex
	members map[string]Address

	cache cache.Backend

	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewServer creates a Server. Listen must be called before Serve.
func NewServer(cfg Config, log *zap.Logger) *Server {
	return &Server{
		cfg:     cfg.withDefaults(),
		log:     log,
		members: make(map[string]Address),
		stopCh:  make(chan struct{}),
	}
}

// SetCacheBackend installs the backend that inbound SaveCacheEntry frames
// write into. Writes taken this path are never re-replicated.
func (s *Server) SetCacheBackend(b cache.Backend) {
	s.cache = b
}

// Token returns the server's identity token, generating it on first use.
func (s *Server) Token() string {
	s.tokenOnce.Do(func() {
		s.token = generateToken()
	})
	return s.token
}

// Address returns the server's advertised dial address. Valid only after
// Listen.
func (s *Server) Address() string {
	return s.localAddr.String()
}

func generateToken() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	seed := fmt.Sprintf("%d-%s-%s", time.Now().UnixNano(), uuid.NewString(), host)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:16])
}

// Listen binds the server's socket, scanning forward from cfg.BasePort
// across cfg.PortRange ports and stopping at the first free one. Unlike a
// loop bounded by "port <= port + range", which never terminates because
// the upper bound moves with the cursor, this scans a fixed number of
// candidate ports.
func (s *Server) Listen() error {
	for i := 0; i < s.cfg.PortRange; i++ {
		port := s.cfg.BasePort + i
		addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			continue
		}
		s.listener = ln
		boundPort := port
		if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
			boundPort = tcpAddr.Port
		}
		s.localAddr = Address{Host: s.cfg.AdvertiseHost, Port: boundPort}
		s.log.Info("mesh listening", zap.String("address", s.Address()), zap.String("token", s.Token()))
		return nil
	}
	return fmt.Errorf("%w: base=%d range=%d", ErrBindExhausted, s.cfg.BasePort, s.cfg.PortRange)
}

// Serve runs the accept loop until Stop is called or ctx is done. It is
// meant to be run in its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	tcpListener, _ := s.listener.(*net.TCPListener)
	for {
		select {
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			s.Stop()
			return nil
		default:
		}

		if tcpListener != nil {
			_ = tcpListener.SetDeadline(time.Now().Add(s.cfg.AcceptTimeout))
		}
		conn, err := s.listener.Accept()
		if err != nil {
			if isTemporary(err) {
				continue
			}
			select {
			case <-s.stopCh:
				return nil
			default:
			}
			s.log.Warn("mesh accept failed", zap.Error(err))
			continue
		}
		s.handleConn(conn)
	}
}

// Stop requests the accept loop exit and closes the listening socket.
// Shutdown completes once the in-flight Accept call (bounded by
// AcceptTimeout) or the current handler returns.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

// handleConn dispatches a single inbound frame and replies with an
// acknowledgement. A panic in a handler is caught and logged rather than
// taking the accept loop down with it.
func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("mesh handler panic", zap.Any("recover", r))
		}
	}()

	c := NewConn(conn, s.Token())
	defer c.Close()

	frame, err := c.Receive()
	if err != nil {
		s.log.Debug("mesh receive failed", zap.Error(err))
		return
	}

	s.learnPeer(frame.SenderToken, conn.RemoteAddr().String())

	var reply interface{}
	if handler, ok := dispatch[frame.Action]; ok {
		reply, err = handler(s, frame.SenderToken, frame.RawPayload)
		if err != nil {
			s.log.Warn("mesh handler error", zap.String("action", string(frame.Action)), zap.Error(err))
			reply = nil
		}
	}

	if err := c.Send(ActionOk, reply); err != nil {
		s.log.Debug("mesh reply failed", zap.Error(err))
	}
}

// learnPeer records a sender passively observed on an inbound connection.
// The recorded address is the connection's remote socket address, which for
// a peer that only ever calls us (never registers) will be an ephemeral
// port rather than its listening port.
func (s *Server) learnPeer(token, remoteAddr string) {
	if token == "" || token == s.Token() {
		return
	}
	s.mu.RLock()
	_, known := s.members[token]
	s.mu.RUnlock()
	if known {
		return
	}
	addr, err := ParseAddress(remoteAddr)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.members[token] = addr
	metrics.PeerCount.Set(float64(len(s.members)))
	s.mu.Unlock()
}

// Members returns a snapshot copy of the membership table.
func (s *Server) Members() map[string]Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Address, len(s.members))
	for k, v := range s.members {
		out[k] = v
	}
	return out
}

// addNode registers with a peer at address, announcing our own address to
// it in the process, and records it in the membership table. Registering
// even when the peer's token is already known (as after a GetNodeList
// fetch) is what makes discovery mutual: the peer learns about us too,
// rather than only ever seeing our ephemeral source port if we happen to
// connect to it later.
func (s *Server) addNode(ctx context.Context, address, token string) (*Node, error) {
	if token != "" && token == s.Token() {
		return &Node{Address: address, Token: token}, nil
	}
	n := &Node{Address: address, Token: token}
	if err := n.register(ctx, s, s.cfg.DialTimeout); err != nil {
		return nil, err
	}
	if n.Token == s.Token() {
		return n, nil
	}
	addr, err := ParseAddress(address)
	if err != nil {
		return n, nil
	}
	s.mu.Lock()
	s.members[n.Token] = addr
	metrics.PeerCount.Set(float64(len(s.members)))
	s.mu.Unlock()
	return n, nil
}

// DiscoverMesh joins the mesh via seedAddr: it registers with the seed,
// fetches its membership table, and registers with every peer found there.
func (s *Server) DiscoverMesh(ctx context.Context, seedAddr string) error {
	seed, err := s.addNode(ctx, seedAddr, "")
	if err != nil {
		return fmt.Errorf("mesh: discover via %s: %w", seedAddr, err)
	}

	frame, err := seed.SendMessage(ctx, s, ActionGetNodeList, nil, s.cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("mesh: fetch node list from %s: %w", seedAddr, err)
	}
	var list NodeList
	if err := frame.Decode(&list); err != nil {
		return fmt.Errorf("mesh: decode node list from %s: %w", seedAddr, err)
	}

	for token, addr := range list {
		if token == s.Token() {
			continue
		}
		if _, err := s.addNode(ctx, addr.String(), token); err != nil {
			s.log.Warn("mesh: failed to register with discovered peer", zap.String("peer", token), zap.Error(err))
		}
	}
	return nil
}

// ReplicateCacheEntry fans a cache write out to every known peer in the
// background. Individual peer failures are logged and do not affect the
// caller or other peers; there is no delivery guarantee.
func (s *Server) ReplicateCacheEntry(key string, entry cache.Entry, ttl time.Duration) {
	if s.stopped.Load() {
		return
	}
	members := s.Members()
	if len(members) == 0 {
		return
	}
	go func() {
		g, ctx := errgroup.WithContext(context.Background())
		g.SetLimit(maxBroadcastConcurrency)
		for token, addr := range members {
			token, addr := token, addr
			g.Go(func() error {
				n := &Node{Address: addr.String(), Token: token}
				payload := SaveCacheEntryPayload{Key: key, Value: entry, TTLSeconds: int(ttl.Seconds())}
				_, err := n.SendMessage(ctx, s, ActionSaveCacheEntry, payload, s.cfg.DialTimeout)
				if err != nil {
					s.log.Debug("mesh: replication to peer failed", zap.String("peer", token), zap.Error(err))
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// handleRegisterNewServer adds the sender to the membership table at its
// self-reported address.
func (s *Server) handleRegisterNewServer(senderToken string, raw []byte) (interface{}, error) {
	var addr Address
	if err := yaml.Unmarshal(raw, &addr); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	if senderToken != "" && senderToken != s.Token() {
		s.mu.Lock()
		s.members[senderToken] = addr
		metrics.PeerCount.Set(float64(len(s.members)))
		s.mu.Unlock()
	}
	return nil, nil
}

// handleGetNodeList returns every known peer except the requester.
func (s *Server) handleGetNodeList(senderToken string, _ []byte) (interface{}, error) {
	list := s.Members()
	delete(list, senderToken)
	return list, nil
}

// SaveCacheEntryPayload is the body of an ActionSaveCacheEntry frame.
type SaveCacheEntryPayload struct {
	Key        string      `yaml:"key"`
	Value      cache.Entry `yaml:"value"`
	TTLSeconds int         `yaml:"ttl_seconds"`
}

// handleSaveCacheEntry writes the pushed entry directly to the local cache
// backend. This bypasses any replication wrapper, so the write is never
// re-broadcast.
func (s *Server) handleSaveCacheEntry(_ string, raw []byte) (interface{}, error) {
	var payload SaveCacheEntryPayload
	if err := yaml.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	if s.cache == nil {
		return nil, nil
	}
	ttl := time.Duration(payload.TTLSeconds) * time.Second
	if err := s.cache.Set(payload.Key, payload.Value, ttl); err != nil {
		return nil, fmt.Errorf("store replicated entry: %w", err)
	}
	return nil, nil
}
