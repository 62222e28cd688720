package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/cortexmemory/cortex/pkg/models"
)

// Consolidator runs the five-stage pipeline against a Store, one
// horizon at a time. Runs are serialized per process: a run already in
// flight rejects a concurrent Run call rather than interleaving stages
// against the same storage instance.
type Consolidator struct {
	store Store
	log   *slog.Logger
	archive *ArchiveWriter

	creativeAssociationCap int
	simFloor, simCeil      float32
	dbscanMinSize          int
	dbscanEpsilon          float32
	compressionMaxChars    int
	archiveThreshold       float64
	accessThresholdDays    int

	mu      sync.Mutex
	running bool
}

// New builds a Consolidator from cfg, resolving zero fields to the
// pipeline's defaults.
func New(cfg Config) *Consolidator {
	if cfg.CreativeAssociationCap == 0 {
		cfg.CreativeAssociationCap = 100
	}
	if cfg.SimilarityFloor == 0 {
		cfg.SimilarityFloor = 0.3
	}
	if cfg.SimilarityCeil == 0 {
		cfg.SimilarityCeil = 0.7
	}
	if cfg.DBSCANMinClusterSize == 0 {
		cfg.DBSCANMinClusterSize = 5
	}
	if cfg.DBSCANEpsilon == 0 {
		cfg.DBSCANEpsilon = 0.15
	}
	if cfg.CompressionMaxChars == 0 {
		cfg.CompressionMaxChars = 500
	}
	if cfg.ArchiveThreshold == 0 {
		cfg.ArchiveThreshold = 0.1
	}
	if cfg.AccessThresholdDays == 0 {
		cfg.AccessThresholdDays = 90
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Consolidator{
		store: cfg.Store,
		log:   cfg.Logger,
		archive: &ArchiveWriter{BasePath: cfg.ArchivePath, S3: cfg.S3},

		creativeAssociationCap: cfg.CreativeAssociationCap,
		simFloor:               cfg.SimilarityFloor,
		simCeil:                cfg.SimilarityCeil,
		dbscanMinSize:          cfg.DBSCANMinClusterSize,
		dbscanEpsilon:          cfg.DBSCANEpsilon,
		compressionMaxChars:    cfg.CompressionMaxChars,
		archiveThreshold:       cfg.ArchiveThreshold,
		accessThresholdDays:    cfg.AccessThresholdDays,
	}
}

// Stats summarizes one completed run.
type Stats struct {
	Processed    int           `json:"processed"`
	Associations int           `json:"associations"`
	Clusters     int           `json:"clusters"`
	Summaries    int           `json:"summaries"`
	Archived     int           `json:"archived"`
	Duration     time.Duration `json:"-"`
}

func (s Stats) asMap() map[string]any {
	return map[string]any{
		"processed":    s.Processed,
		"associations": s.Associations,
		"clusters":     s.Clusters,
		"summaries":    s.Summaries,
		"archived":     s.Archived,
		"duration_ms":  s.Duration.Milliseconds(),
	}
}

// Run executes all five stages for horizon against memories selected
// as of now.
func (c *Consolidator) Run(ctx context.Context, horizon Horizon) (Stats, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return Stats{}, fmt.Errorf("consolidate: a run is already in progress")
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	start := time.Now().UTC()
	runID, err := c.store.StartConsolidationRun(ctx, string(horizon))
	if err != nil {
		return Stats{}, err
	}

	stats, stage, runErr := c.runStages(ctx, horizon, start)
	state := StateSuccess
	if runErr != nil {
		state = StateFailed
	}
	stats.Duration = time.Since(start)

	if ferr := c.store.FinishConsolidationRun(ctx, runID, string(state), string(stage), stats.asMap(), errString(runErr)); ferr != nil {
		c.log.Error("consolidate: record run finish", "error", ferr)
	}
	return stats, runErr
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (c *Consolidator) runStages(ctx context.Context, horizon Horizon, now time.Time) (Stats, Stage, error) {
	var stats Stats

	cutoff := now.Add(-horizonAge[horizon])
	selected, err := c.store.SelectOlderThan(ctx, cutoff)
	if err != nil {
		return stats, StageDecay, err
	}
	stats.Processed = len(selected)
	if len(selected) == 0 {
		return stats, "", nil
	}

	// Stage 1: decay. A memory's connection count comes from the graph
	// so a well-connected memory fades slower than an isolated one.
	relevance := make(map[string]float64, len(selected))
	for _, m := range selected {
		connected, cerr := c.store.FindConnected(ctx, m.ContentHash, 1, nil, models.DirectionBoth)
		if cerr != nil {
			c.log.Warn("consolidate: find connected", "hash", m.ContentHash, "error", cerr)
		}
		relevance[m.ContentHash] = DecayScore(&m, len(connected), now)
	}

	// Stage 2: creative association.
	rng := rand.New(rand.NewSource(now.UnixNano()))
	pairs := DiscoverAssociations(selected, c.simFloor, c.simCeil, c.creativeAssociationCap, rng)
	assocCount, err := ApplyAssociations(ctx, c.store, pairs)
	if err != nil {
		return stats, StageAssociate, err
	}
	stats.Associations = assocCount

	// Stage 3: semantic clustering.
	clusters := DBSCAN(selected, c.dbscanEpsilon, c.dbscanMinSize)
	stats.Clusters = len(clusters)

	// Stage 4: semantic compression. Originals are left in place;
	// compression only adds a summary memory alongside them.
	for _, cl := range clusters {
		members := make([]models.Memory, len(cl.Members))
		for i, idx := range cl.Members {
			members[i] = selected[idx]
		}
		summary := Summarize(members, c.compressionMaxChars)
		if _, serr := c.store.Store(ctx, &summary); serr != nil {
			c.log.Warn("consolidate: store cluster summary", "error", serr)
			continue
		}
		stats.Summaries++
	}

	// Stage 5: controlled forgetting. Never tombstones without a
	// successful archive write first.
	for _, m := range selected {
		if !ShouldForget(m, relevance[m.ContentHash], c.archiveThreshold, c.accessThresholdDays, now) {
			continue
		}
		if err := c.archive.Write(ctx, horizon, m); err != nil {
			c.log.Error("consolidate: archive before forget", "hash", m.ContentHash, "error", err)
			continue
		}
		if _, derr := c.store.Delete(ctx, m.ContentHash); derr != nil {
			c.log.Error("consolidate: forget", "hash", m.ContentHash, "error", derr)
			continue
		}
		stats.Archived++
	}

	return stats, "", nil
}
