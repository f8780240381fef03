package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateRunID generates an optimization run ID with a timestamp prefix
func GenerateRunID() string {
	timestamp := time.Now().Format("20060102-150405")
	id := uuid.New()
	return fmt.Sprintf("run-%s-%x", timestamp, id[:4])
}

// GenerateBatchID generates the ID of the n-th sample batch of a run,
// counting from 1. One iteration may submit several batches.
func GenerateBatchID(runID string, batch int) string {
	return fmt.Sprintf("%s/batch-%05d", runID, batch)
}

// GenerateExecutionID generates a globally unique ID for a dispatched batch execution
func GenerateExecutionID() string {
	return uuid.NewString()
}
