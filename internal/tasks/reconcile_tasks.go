package tasks

import (
	"context"
	"fmt"
	"log"
	"time"
)

// ReconcilePendingHoldsTaskName identifies the recurring sweep that resolves
// payment records stuck in pending after an ambiguous gateway outcome.
const ReconcilePendingHoldsTaskName = "reconcile_pending_holds"

const defaultReconcileAgeMinutes = 5

// ReconcilePendingHoldsHandler asks the gateway what happened to each stale
// pending hold and moves the record forward. Records younger than the
// configured age are skipped so an in-flight join is never raced.
func ReconcilePendingHoldsHandler(ctx context.Context, deps Deps, args map[string]interface{}) (map[string]interface{}, error) {
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator not configured")
	}

	minutes := defaultReconcileAgeMinutes
	// JSON round-trips numbers as float64.
	if v, ok := args["older_than_minutes"].(float64); ok && v >= 0 {
		minutes = int(v)
	}

	resolved, err := deps.Coordinator.ReconcilePending(ctx, time.Duration(minutes)*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("reconcile sweep: %w", err)
	}

	log.Printf("[Task: %s] resolved %d pending records", ReconcilePendingHoldsTaskName, resolved)

	return map[string]interface{}{
		"status":             "success",
		"resolved_count":     resolved,
		"older_than_minutes": minutes,
	}, nil
}
