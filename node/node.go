// Package node wires the consensus components to one event bus and one
// ledger store and runs them until their context ends or one of them fails.
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tendermint/lattice/config"
	"github.com/tendermint/lattice/internal/election"
	"github.com/tendermint/lattice/internal/eventbus"
	"github.com/tendermint/lattice/internal/guardian"
	"github.com/tendermint/lattice/internal/p2p"
	"github.com/tendermint/lattice/internal/state"
	"github.com/tendermint/lattice/internal/validation"
	"github.com/tendermint/lattice/internal/votes"
	"github.com/tendermint/lattice/internal/weights"
	"github.com/tendermint/lattice/libs/log"
	"github.com/tendermint/lattice/libs/service"
	"github.com/tendermint/lattice/types"
	"github.com/tendermint/lattice/version"
)

// Node is the highest level interface to a full lattice node.
type Node struct {
	config  *config.Config
	logger  log.Logger
	genesis *types.GenesisDoc
	nodeKey types.NodeKey

	eventBus    *eventbus.EventBus
	store       *state.Store
	peers       *p2p.PeerSet
	router      *p2p.Router
	processor   *validation.Processor
	weighter    *weights.Weighter
	prioritizer *votes.Prioritizer
	elections   *election.Manager
	guardian    *guardian.Guardian

	routes []*route
}

// NewDefault constructs a node from the files under cfg.RootDir. It has no
// network transport; peers are attached by publishing NodeConnected and
// InboundNetworkMessage events on EventBus.
func NewDefault(ctx context.Context, cfg *config.Config, logger log.Logger) (*Node, error) {
	nodeKey, err := types.LoadOrGenNodeKey(cfg.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load or gen node key %s: %w", cfg.NodeKeyFile(), err)
	}
	genDoc, err := types.GenesisDocFromFile(cfg.GenesisFile())
	if err != nil {
		return nil, err
	}

	return New(ctx, cfg, logger, nodeKey, genDoc,
		config.DefaultDBProvider,
		p2p.DiscardTransport{},
		clock.New(),
		DefaultMetricsProvider(cfg.Instrumentation, genDoc.ChainID),
	)
}

// New returns a node with all components constructed and subscribed, but
// not started. The weight table is rebuilt from the ledger before New
// returns.
func New(
	ctx context.Context,
	cfg *config.Config,
	logger log.Logger,
	nodeKey types.NodeKey,
	genDoc *types.GenesisDoc,
	dbProvider config.DBProvider,
	transport p2p.Transport,
	clk clock.Clock,
	metricsProvider MetricsProvider,
) (*Node, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := dbProvider(&config.DBContext{ID: "ledger", Config: cfg})
	if err != nil {
		return nil, err
	}
	store, err := state.NewStore(db)
	if err != nil {
		return nil, err
	}
	if err := initLedger(ctx, store, genDoc); err != nil {
		return nil, err
	}

	metrics := metricsProvider()
	eventBus := eventbus.NewDefault(logger)

	weighter := weights.NewWeighter(logger.With("module", "weights"),
		cfg.Weights, nodeKey.PublicKey(), clk, metrics.Weights)
	if err := weighter.Rebuild(ctx, store); err != nil {
		return nil, fmt.Errorf("rebuilding weights: %w", err)
	}

	peers := p2p.NewPeerSet(metrics.P2P)
	router := p2p.NewRouter(logger.With("module", "p2p"), peers, transport, metrics.P2P)

	processor := validation.NewProcessor(logger.With("module", "validation"),
		store.Accounts(), validation.DefaultChain(store.Receivables()), eventBus, metrics.Validation)

	elections := election.NewManager(logger.With("module", "election"),
		cfg.Election, cfg.Voter, nodeKey.PrivateKey, weighter, router, eventBus, clk, metrics.Election)

	prioritizer := votes.NewPrioritizer(logger.With("module", "votes"),
		cfg.Votes, eventBus, weighter, elections, elections.ProcessVote, clk, metrics.Votes)

	guard := guardian.NewGuardian(logger.With("module", "guardian"),
		cfg.Guardian, peers, weighter, eventBus, clk, metrics.Guardian)

	n := &Node{
		config:      cfg,
		logger:      logger.With("module", "node"),
		genesis:     genDoc,
		nodeKey:     nodeKey,
		eventBus:    eventBus,
		store:       store,
		peers:       peers,
		router:      router,
		processor:   processor,
		weighter:    weighter,
		prioritizer: prioritizer,
		elections:   elections,
		guardian:    guard,
	}
	if err := n.subscribe(); err != nil {
		return nil, err
	}
	return n, nil
}

// initLedger seeds an empty ledger from the genesis document.
func initLedger(ctx context.Context, store *state.Store, genDoc *types.GenesisDoc) error {
	existing, err := store.GenesisAccounts(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	return store.Genesis(ctx, genDoc.LedgerAccounts())
}

// Run starts every component and blocks until ctx is canceled or a
// component fails. The returned error is nil after a clean shutdown.
func (n *Node) Run(ctx context.Context) error {
	n.logger.Info("Version info", "version", version.Version,
		"vote", version.VoteProtocol, "ledger", version.LedgerProtocol)
	n.logger.Info("starting node", "chain_id", n.genesis.ChainID,
		"public_key", n.nodeKey.PublicKey(), "voter", n.config.Voter,
		"weight", n.weighter.Self(), "total", n.weighter.Total())

	g, gctx := errgroup.WithContext(ctx)

	services := []service.Service{n.eventBus, n.weighter, n.prioritizer, n.elections, n.guardian}
	for i, s := range services {
		if err := s.Start(gctx); err != nil {
			stopServices(n.logger, services[:i])
			return fmt.Errorf("starting %s: %w", s, err)
		}
	}

	for _, r := range n.routes {
		r := r
		g.Go(func() error { return n.runRoute(gctx, r) })
	}

	if n.config.Instrumentation.Prometheus {
		srv := n.startPrometheusServer(g)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	stopServices(n.logger, services)
	if cerr := n.store.Close(); cerr != nil {
		n.logger.Error("closing ledger", "err", cerr)
	}

	if err != nil {
		n.logger.Error("node stopped with error", "err", err)
		return err
	}
	n.logger.Info("node stopped")
	return nil
}

func stopServices(logger log.Logger, services []service.Service) {
	for i := len(services) - 1; i >= 0; i-- {
		s := services[i]
		if err := s.Stop(); err != nil && !errors.Is(err, service.ErrAlreadyStopped) {
			logger.Error("stopping service", "service", s, "err", err)
		}
	}
}

func (n *Node) startPrometheusServer(g *errgroup.Group) *http.Server {
	srv := &http.Server{
		Addr:              n.config.Instrumentation.PrometheusListenAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		n.logger.Info("prometheus server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("prometheus server: %w", err)
		}
		return nil
	})
	return srv
}

// EventBus returns the node's event bus. Transports publish inbound traffic
// and connection changes on it.
func (n *Node) EventBus() *eventbus.EventBus { return n.eventBus }

// Store returns the node's ledger.
func (n *Node) Store() *state.Store { return n.store }

// Weighter returns the node's weight table.
func (n *Node) Weighter() *weights.Weighter { return n.weighter }

// Elections returns the election manager.
func (n *Node) Elections() *election.Manager { return n.elections }

// Peers returns the node's peer set.
func (n *Node) Peers() *p2p.PeerSet { return n.peers }

// PublicKey returns the key this node votes with.
func (n *Node) PublicKey() types.PublicKey { return n.nodeKey.PublicKey() }
