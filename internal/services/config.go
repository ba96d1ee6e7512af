package services

import (
	"log"
	"os"
	"strconv"
	"time"
)

const (
	envGatewayTimeout = "GATEWAY_TIMEOUT_SECONDS"
	envReconcileAfter = "RECONCILE_AFTER_MINUTES"
)

// GatewayTimeoutFromEnv reads GATEWAY_TIMEOUT_SECONDS. Zero means unset (or
// unparseable), letting the coordinator default apply.
func GatewayTimeoutFromEnv() time.Duration {
	return time.Duration(positiveIntFromEnv(envGatewayTimeout)) * time.Second
}

// ReconcileAfterFromEnv reads RECONCILE_AFTER_MINUTES, the minimum age a
// pending record must reach before the reconciliation sweep picks it up.
// Zero means unset, letting the task default apply.
func ReconcileAfterFromEnv() int {
	return positiveIntFromEnv(envReconcileAfter)
}

func positiveIntFromEnv(name string) int {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("Warning: ignoring %s=%q, expected a positive integer", name, raw)
		return 0
	}
	return n
}
