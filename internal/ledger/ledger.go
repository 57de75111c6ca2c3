// Package ledger tracks real provider spend. Every non-cached call appends
// one immutable entry; aggregates answer budget checks and the costs API.
// The ledger is the request-path authority on the hard ceiling: the router
// asks CheckBudget before any paid network call and aborts on a breach.
//
// State survives restarts as a JSON snapshot next to the cache db, written
// by a debounced background loop and flushed on Close.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Ai-Whisperers/LangAi-sub002/pkg/contracts"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const saveDebounce = 500 * time.Millisecond

// BudgetError reports a call refused because it would break the hard
// spend ceiling.
type BudgetError struct {
	Total       float64 // spend recorded so far, USD
	Prospective float64 // cost of the refused call, USD
	Ceiling     float64 // configured hard ceiling, USD
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("budget exceeded: $%.4f spent + $%.4f prospective > $%.2f ceiling",
		e.Total, e.Prospective, e.Ceiling)
}

// Options configure the ledger. Zero ceilings disable the corresponding
// check; an empty snapshot path disables persistence.
type Options struct {
	WarnUSD      float64
	MaxUSD       float64
	SnapshotPath string
}

// Ledger is the append-only cost ledger.
type Ledger struct {
	mu             sync.RWMutex
	entries        []models.LedgerEntry
	total          float64
	spend          map[string]float64
	calls          map[string]int64
	warned         bool // warn advisory fired for the current accumulation
	ceilingAlerted bool

	opts   Options
	alerts contracts.AlertSink

	saveCh chan struct{}
	doneCh chan struct{}
}

// New builds a ledger, loading the previous snapshot when one exists.
// alerts may be nil.
func New(opts Options, alerts contracts.AlertSink) *Ledger {
	l := &Ledger{
		spend:  make(map[string]float64),
		calls:  make(map[string]int64),
		opts:   opts,
		alerts: alerts,
		saveCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
	if opts.SnapshotPath != "" {
		if err := l.loadSnapshot(); err != nil {
			log.Warn().Err(err).Msg("Failed to load ledger snapshot, starting fresh")
		}
		go l.saveLoop()
	}
	return l
}

// CheckBudget reports whether spending prospective more dollars would
// break the hard ceiling. Call it before the network call it guards.
func (l *Ledger) CheckBudget(prospective float64) error {
	if l.opts.MaxUSD <= 0 {
		return nil
	}
	l.mu.Lock()
	if l.total+prospective <= l.opts.MaxUSD {
		l.mu.Unlock()
		return nil
	}
	err := &BudgetError{Total: l.total, Prospective: prospective, Ceiling: l.opts.MaxUSD}
	first := !l.ceilingAlerted
	l.ceilingAlerted = true
	l.mu.Unlock()

	if first {
		log.Error().
			Float64("total_usd", err.Total).
			Float64("ceiling_usd", err.Ceiling).
			Msg("🚫 Budget ceiling reached, refusing paid calls")
		l.publish(models.AlertEvent{
			Kind:      models.AlertBudgetExceeded,
			Message:   "hard budget ceiling reached",
			Value:     err.Total + err.Prospective,
			Threshold: err.Ceiling,
		})
	}
	return err
}

// Record appends one cost entry and returns it. Crossing the warn
// threshold fires a one-time advisory; it never blocks the call.
func (l *Ledger) Record(provider string, capability models.Capability, query string, cost float64) models.LedgerEntry {
	l.mu.Lock()
	l.total += cost
	l.spend[provider] += cost
	l.calls[provider]++
	entry := models.LedgerEntry{
		ID:         uuid.New().String(),
		Provider:   provider,
		Capability: capability,
		Query:      query,
		Cost:       cost,
		Total:      l.total,
		At:         time.Now().UTC(),
	}
	l.entries = append(l.entries, entry)
	crossedWarn := !l.warned && l.opts.WarnUSD > 0 && l.total >= l.opts.WarnUSD
	if crossedWarn {
		l.warned = true
	}
	l.mu.Unlock()

	if crossedWarn {
		log.Warn().
			Float64("total_usd", entry.Total).
			Float64("warn_usd", l.opts.WarnUSD).
			Msg("💸 Budget warn threshold crossed")
		l.publish(models.AlertEvent{
			Kind:      models.AlertBudgetWarning,
			Provider:  provider,
			Message:   "budget warn threshold crossed",
			Value:     entry.Total,
			Threshold: l.opts.WarnUSD,
		})
	}
	l.requestSave()
	return entry
}

// Total returns the cumulative spend in USD.
func (l *Ledger) Total() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Summary aggregates the ledger for the costs API and stats document.
func (l *Ledger) Summary() models.CostSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byProvider := make(map[string]float64, len(l.spend))
	for k, v := range l.spend {
		byProvider[k] = v
	}
	callsByProvider := make(map[string]int64, len(l.calls))
	for k, v := range l.calls {
		callsByProvider[k] = v
	}
	return models.CostSummary{
		TotalCostUSD:    l.total,
		TotalCalls:      int64(len(l.entries)),
		ByProvider:      byProvider,
		CallsByProvider: callsByProvider,
		WarnThreshold:   l.opts.WarnUSD,
		HardCeiling:     l.opts.MaxUSD,
		WarnCrossed:     l.warned,
	}
}

// Recent returns up to n entries, newest first. n <= 0 returns everything.
func (l *Ledger) Recent(n int) []models.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]models.LedgerEntry, 0, n)
	for i := len(l.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// Reset clears all entries and aggregates. Operator-initiated only;
// nothing in the request path ever resets the ledger.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.total = 0
	l.spend = make(map[string]float64)
	l.calls = make(map[string]int64)
	l.warned = false
	l.ceilingAlerted = false
	l.mu.Unlock()

	log.Info().Msg("Cost ledger reset")
	l.requestSave()
}

// Close stops the save loop and flushes a final snapshot. Idempotent.
func (l *Ledger) Close() error {
	select {
	case <-l.doneCh:
		return nil
	default:
		close(l.doneCh)
	}
	if l.opts.SnapshotPath != "" {
		return l.saveSnapshot()
	}
	return nil
}

func (l *Ledger) publish(event models.AlertEvent) {
	if l.alerts == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	l.alerts.Publish(context.Background(), event)
}

// ── Snapshot persistence ─────────────────────────────────────

type snapshot struct {
	Entries     []models.LedgerEntry `json:"entries"`
	WarnCrossed bool                 `json:"warn_crossed"`
}

// requestSave schedules a snapshot write without blocking the caller.
func (l *Ledger) requestSave() {
	if l.opts.SnapshotPath == "" {
		return
	}
	select {
	case l.saveCh <- struct{}{}:
	default:
	}
}

// saveLoop debounces bursts of writes into one snapshot.
func (l *Ledger) saveLoop() {
	for {
		select {
		case <-l.doneCh:
			return
		case <-l.saveCh:
			time.Sleep(saveDebounce)
			if err := l.saveSnapshot(); err != nil {
				log.Error().Err(err).Msg("Failed to save ledger snapshot")
			}
		}
	}
}

func (l *Ledger) saveSnapshot() error {
	l.mu.RLock()
	snap := snapshot{
		Entries:     append([]models.LedgerEntry(nil), l.entries...),
		WarnCrossed: l.warned,
	}
	l.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger snapshot: %w", err)
	}
	tmp := l.opts.SnapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing ledger snapshot: %w", err)
	}
	return os.Rename(tmp, l.opts.SnapshotPath)
}

func (l *Ledger) loadSnapshot() error {
	data, err := os.ReadFile(l.opts.SnapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading ledger snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding ledger snapshot: %w", err)
	}

	l.entries = snap.Entries
	l.warned = snap.WarnCrossed
	for _, e := range l.entries {
		l.total += e.Cost
		l.spend[e.Provider] += e.Cost
		l.calls[e.Provider]++
	}
	log.Info().
		Int("entries", len(l.entries)).
		Float64("total_usd", l.total).
		Msg("📂 Cost ledger snapshot loaded")
	return nil
}
