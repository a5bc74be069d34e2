package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"friend-graph-service/internal/graph"
	"friend-graph-service/internal/metrics"
	"friend-graph-service/internal/observability"
	"friend-graph-service/internal/rabbitmq"
	"friend-graph-service/internal/repositories"
	"friend-graph-service/internal/telemetry"
)

// RepairLog records mutations left unapplied by a half-finished operation.
type RepairLog interface {
	Record(ctx context.Context, repair Repair) error
}

type Repair = repositories.Repair

func NewRepair(operation string, remaining []graph.Mutation, cause error) Repair {
	repair := Repair{
		ID:         uuid.NewString(),
		Operation:  operation,
		Mutations:  append([]graph.Mutation(nil), remaining...),
		RecordedAt: time.Now().UTC(),
	}
	if cause != nil {
		repair.Cause = cause.Error()
	}
	return repair
}

// Reconciler re-applies pending repairs. The journal is the durable record; the in-memory
// view is rebuilt from it every round, so repairs survive a restart and any instance
// sharing the journal can finish them. Set mutations are idempotent, so a repair can be
// retried any number of times.
type Reconciler struct {
	store   repositories.AccountStore
	journal repositories.RepairStore
	events  rabbitmq.Publisher
	logger  logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]*Repair
	order   []string
	// unsaved holds repairs the journal has not accepted yet.
	unsaved map[string]bool
}

func NewReconciler(store repositories.AccountStore, journal repositories.RepairStore, events rabbitmq.Publisher, logger logrus.FieldLogger) *Reconciler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if events == nil {
		events = rabbitmq.NewNoopPublisher(logger)
	}
	if journal == nil {
		journal = repositories.NewMemoryRepairRepository()
	}
	return &Reconciler{
		store:   store,
		journal: journal,
		events:  events,
		logger:  logger,
		pending: make(map[string]*Repair),
		unsaved: make(map[string]bool),
	}
}

// Record keeps the repair in memory and writes it to the journal. A journal failure is
// returned, but the repair stays pending in this process.
func (r *Reconciler) Record(ctx context.Context, repair Repair) error {
	if repair.ID == "" {
		return repositories.ErrInvalidRepair
	}
	if len(repair.Mutations) == 0 {
		return nil
	}

	r.mu.Lock()
	if _, exists := r.pending[repair.ID]; !exists {
		r.order = append(r.order, repair.ID)
	}
	stored := repair
	r.pending[repair.ID] = &stored
	r.unsaved[repair.ID] = true
	observability.SetRepairsPending(len(r.order))
	r.mu.Unlock()

	evt := telemetry.NewRepairEvent(telemetry.EventRepairRecorded, repair.ID, repair.Operation, len(repair.Mutations), repair.Cause)
	if err := r.events.Publish(ctx, telemetry.EventRepairRecorded, evt); err != nil {
		r.logger.WithError(err).WithField("repair_id", repair.ID).Warn("warning: failed to publish repair event")
	}

	if err := r.persist(ctx, repair); err != nil {
		return fmt.Errorf("journal repair %s: %w", repair.ID, err)
	}
	return nil
}

// Restore rebuilds the pending view from the journal and returns how many repairs are
// pending. Repairs the journal has not accepted are kept.
func (r *Reconciler) Restore(ctx context.Context) (int, error) {
	stored, err := r.journal.ListRepairs(ctx)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make(map[string]*Repair, len(stored))
	order := make([]string, 0, len(stored))
	for i := range stored {
		repair := stored[i]
		if local, ok := r.pending[repair.ID]; ok && r.unsaved[repair.ID] {
			pending[repair.ID] = local
		} else {
			pending[repair.ID] = &repair
		}
		order = append(order, repair.ID)
	}
	for _, id := range r.order {
		if _, ok := pending[id]; !ok && r.unsaved[id] {
			pending[id] = r.pending[id]
			order = append(order, id)
		}
	}
	r.pending, r.order = pending, order
	observability.SetRepairsPending(len(order))
	return len(order), nil
}

// Pending returns a snapshot of the repairs not yet completed, oldest first.
func (r *Reconciler) Pending() []Repair {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Repair, 0, len(r.order))
	for _, id := range r.order {
		repair := *r.pending[id]
		repair.Mutations = append([]graph.Mutation(nil), repair.Mutations...)
		out = append(out, repair)
	}
	return out
}

// RepairPending retries every pending repair once and returns how many completed.
// Repairs that fail keep their unapplied tail for the next round.
func (r *Reconciler) RepairPending(ctx context.Context) (int, error) {
	var (
		repaired int
		errs     []error
	)

	if _, err := r.Restore(ctx); err != nil {
		r.logger.WithError(err).Warn("warning: repair journal unavailable, retrying known repairs only")
		errs = append(errs, fmt.Errorf("restore repairs: %w", err))
	}

	for _, repair := range r.Pending() {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}

		log := r.logger.WithFields(logrus.Fields{
			"repair_id": repair.ID,
			"operation": repair.Operation,
		})

		done, err := r.replay(ctx, repair)
		switch {
		case err == nil:
			r.complete(ctx, repair.ID)
			repaired++
			metrics.IncRepair(metrics.StatusSuccess)
			log.Info("repair completed")
			evt := telemetry.NewRepairEvent(telemetry.EventRepairCompleted, repair.ID, repair.Operation, 0, "")
			if pubErr := r.events.Publish(ctx, telemetry.EventRepairCompleted, evt); pubErr != nil {
				log.WithError(pubErr).Warn("warning: failed to publish repair event")
			}
		case errors.Is(err, repositories.ErrAccountNotFound):
			// The record is gone; nothing is left to make consistent.
			r.complete(ctx, repair.ID)
			metrics.IncRepair(metrics.StatusFailed)
			log.WithError(err).Warn("warning: dropping repair for missing account")
		default:
			r.retain(ctx, repair.ID, repair.Mutations[done:])
			metrics.IncRepair(metrics.StatusFailed)
			log.WithError(err).Error("repair attempt failed")
			errs = append(errs, fmt.Errorf("repair %s: %w", repair.ID, err))
		}
	}
	return repaired, errors.Join(errs...)
}

// Run retries pending repairs every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RepairPending(ctx); err != nil && ctx.Err() == nil {
				r.logger.WithError(err).Warn("warning: reconcile round left repairs pending")
			}
		}
	}
}

func (r *Reconciler) replay(ctx context.Context, repair Repair) (int, error) {
	for i, m := range repair.Mutations {
		if _, err := applyMutation(ctx, r.store, m); err != nil {
			return i, err
		}
	}
	return len(repair.Mutations), nil
}

func (r *Reconciler) complete(ctx context.Context, id string) {
	r.mu.Lock()
	delete(r.pending, id)
	delete(r.unsaved, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	observability.SetRepairsPending(len(r.order))
	r.mu.Unlock()

	if err := r.journal.DeleteRepair(ctx, id); err != nil {
		r.logger.WithError(err).WithField("repair_id", id).Warn("warning: completed repair left in journal")
	}
}

func (r *Reconciler) retain(ctx context.Context, id string, remaining []graph.Mutation) {
	r.mu.Lock()
	repair, ok := r.pending[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	repair.Mutations = append([]graph.Mutation(nil), remaining...)
	repair.Attempts++
	snapshot := *repair
	r.unsaved[id] = true
	r.mu.Unlock()

	if err := r.persist(ctx, snapshot); err != nil {
		r.logger.WithError(err).WithField("repair_id", id).Warn("warning: failed to journal repair progress")
	}
}

func (r *Reconciler) persist(ctx context.Context, repair Repair) error {
	if err := r.journal.SaveRepair(ctx, repair); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.unsaved, repair.ID)
	r.mu.Unlock()
	return nil
}
