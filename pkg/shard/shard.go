package shard

import (
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/dd0wney/shardedge/pkg/logging"
	"github.com/dd0wney/shardedge/pkg/metrics"
)

// Shard is one logical engine instance bound to one physical backing
// store, holding a pair of tables (<prefix>_edges, <prefix>_metadata).
// It has no mutable shared state beyond its handle: the connection pool,
// if any, lives behind the Executor and may be shared across every
// shard in a process (§5).
type Shard struct {
	id     string
	exec   Executor
	schema schema
	cfg    Config
	clock  Clock
	log    logging.Logger
	mx     *metrics.Registry
	rng    *rand.Rand
}

// Option customizes a Shard at construction time.
type Option func(*Shard)

// WithLogger overrides the default no-op logger.
func WithLogger(log logging.Logger) Option {
	return func(s *Shard) { s.log = log }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(mx *metrics.Registry) Option {
	return func(s *Shard) { s.mx = mx }
}

// WithClock overrides the engine's source of "now", letting tests drive
// UpdatedAt deterministically.
func WithClock(clock Clock) Option {
	return func(s *Shard) { s.clock = clock }
}

// New builds a Shard bound to exec, identified for error-tagging and
// logging purposes by id (typically the physical shard's address or
// numeric index — owned by the caller, not interpreted here).
func New(id string, exec Executor, cfg Config, opts ...Option) (*Shard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Shard{
		id:     id,
		exec:   exec,
		schema: newSchema(cfg.TablePrefix),
		cfg:    cfg,
		clock:  func() uint32 { return uint32(time.Now().Unix()) },
		log:    logging.NewNopLogger(),
		mx:     metrics.Default(),
		rng:    rand.New(rand.NewPCG(idSeed(id), 0xa5a5a5a5)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the shard's identity string.
func (s *Shard) ID() string {
	return s.id
}

// idSeed hashes a shard identity into a PRNG seed, grounded on the
// fnv-based hash partitioning in pkg/partition.
func idSeed(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}
