// Package archive implements the tiered memory archive: three append-only
// transcript stores of increasing coldness. Tier 1 receives every new record;
// when a bounded tier grows past its threshold, its oldest records are demoted
// into the next tier so each task can be given a bounded amount of history.
//
// The archive assumes a single writer per root. Two runners sharing one root
// can interleave demotions and duplicate or drop records.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gitclauder/internal/atomicfile"
	"gitclauder/pkg/protocol"

	"go.uber.org/zap"
)

// Tier numbers. Tier 3 is the terminal store and is never split.
const (
	TierHot  = 1
	TierWarm = 2
	TierCold = 3

	tierCount = 3
)

const filePerm = 0o600

// Archive manages the three tier files under one root directory.
type Archive struct {
	root      string
	threshold int
	log       *zap.Logger
}

// Option configures an Archive.
type Option func(*Archive)

// WithThreshold overrides the per-tier byte bound (default 30 KiB).
func WithThreshold(n int) Option {
	return func(a *Archive) {
		if n > 0 {
			a.threshold = n
		}
	}
}

// WithLogger attaches a logger for recoverable read failures.
func WithLogger(l *zap.Logger) Option {
	return func(a *Archive) {
		if l != nil {
			a.log = l
		}
	}
}

// New returns an Archive rooted at root. Nothing is created on disk until the
// first Append.
func New(root string, opts ...Option) *Archive {
	a := &Archive{
		root:      root,
		threshold: protocol.TierThreshold,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Root returns the archive directory.
func (a *Archive) Root() string { return a.root }

// Threshold returns the byte bound applied to tiers 1 and 2.
func (a *Archive) Threshold() int { return a.threshold }

// TierPath returns the file backing tier (1..3).
func (a *Archive) TierPath(tier int) string {
	return filepath.Join(a.root, fmt.Sprintf("priority-%d.md", tier))
}

// Append writes r to the end of tier 1, creating the archive root if needed.
func (a *Archive) Append(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(a.root, 0o750); err != nil {
		return fmt.Errorf("archive: create root %s: %w", a.root, err)
	}

	path := a.TierPath(TierHot)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm) //nolint:gosec // path derives from the configured archive root
	if err != nil {
		return fmt.Errorf("archive: open tier 1: %w", err)
	}
	if _, err := f.Write(Encode(r)); err != nil {
		_ = f.Close()
		return fmt.Errorf("archive: append tier 1: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("archive: close tier 1: %w", err)
	}
	return nil
}

// Move describes one demotion performed by Rebalance.
type Move struct {
	From    int
	To      int
	Records int
	Bytes   int
}

// Rebalance enforces the size bound on tiers 1 and 2. While tier 1 exceeds
// the threshold, the oldest half of its records (rounded down, but at least
// one) is demoted to tier 2. Tier 2 is then bounded the same way against
// tier 3. Tier 3 is never split.
//
// The colder tier is written before the hotter one, so an interrupted
// rebalance can leave a record in both tiers but never in neither.
func (a *Archive) Rebalance(ctx context.Context) ([]Move, error) {
	var moves []Move
	for from := TierHot; from < tierCount; from++ {
		if err := ctx.Err(); err != nil {
			return moves, err
		}
		m, err := a.demote(from, from+1)
		if err != nil {
			return moves, err
		}
		if m.Records > 0 {
			moves = append(moves, m)
		}
	}
	return moves, nil
}

// demote moves the oldest records of tier from into the tail of tier to until
// tier from is at or below the threshold.
func (a *Archive) demote(from, to int) (Move, error) {
	m := Move{From: from, To: to}

	data, err := a.readTier(from)
	if err != nil {
		return m, err
	}
	if len(data) <= a.threshold {
		return m, nil
	}

	chunks := Split(data)
	keepFrom := 0
	size := len(data)
	for size > a.threshold && keepFrom < len(chunks) {
		remaining := len(chunks) - keepFrom
		n := remaining / 2
		if n == 0 {
			// A lone record larger than the threshold: move it anyway,
			// otherwise this tier could grow without bound.
			n = 1
		}
		for _, c := range chunks[keepFrom : keepFrom+n] {
			size -= len(c)
			m.Bytes += len(c)
		}
		keepFrom += n
		m.Records += n
	}
	if m.Records == 0 {
		return m, nil
	}

	colder, err := a.readTier(to)
	if err != nil {
		return m, err
	}
	moved := make([]byte, 0, len(colder)+m.Bytes)
	moved = append(moved, colder...)
	for _, c := range chunks[:keepFrom] {
		moved = append(moved, c...)
	}
	if err := a.writeTier(to, moved); err != nil {
		return m, err
	}

	kept := make([]byte, 0, size)
	for _, c := range chunks[keepFrom:] {
		kept = append(kept, c...)
	}
	if err := a.writeTier(from, kept); err != nil {
		return m, err
	}

	a.log.Debug("demoted records",
		zap.Int("from", from), zap.Int("to", to),
		zap.Int("records", m.Records), zap.Int("bytes", m.Bytes))
	return m, nil
}

// readTier returns the raw bytes of a tier; a missing file is empty.
func (a *Archive) readTier(tier int) ([]byte, error) {
	data, err := os.ReadFile(a.TierPath(tier))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("archive: read tier %d: %w", tier, err)
	}
	return data, nil
}

func (a *Archive) writeTier(tier int, data []byte) error {
	if err := atomicfile.Write(a.TierPath(tier), data, filePerm); err != nil {
		return fmt.Errorf("archive: write tier %d: %w", tier, err)
	}
	return nil
}

// Records returns the chunks of one tier, oldest first.
func (a *Archive) Records(tier int) ([][]byte, error) {
	data, err := a.readTier(tier)
	if err != nil {
		return nil, err
	}
	return Split(data), nil
}

// TierStat is a size snapshot of one tier.
type TierStat struct {
	Tier    int
	Bytes   int
	Records int
}

// Stats reports byte size and record count for every tier.
func (a *Archive) Stats(ctx context.Context) ([]TierStat, error) {
	stats := make([]TierStat, 0, tierCount)
	for tier := TierHot; tier <= tierCount; tier++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := a.readTier(tier)
		if err != nil {
			return nil, err
		}
		stats = append(stats, TierStat{Tier: tier, Bytes: len(data), Records: len(Split(data))})
	}
	return stats, nil
}
