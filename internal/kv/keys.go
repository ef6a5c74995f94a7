package kv

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	// JobKeyPrefix prefixes every persisted bulk job.
	JobKeyPrefix = "bulk:job:"
	// QueueKey holds the pending queue entries as a JSON array.
	QueueKey = "bulk:queue"
)

func JobKey(jobID uuid.UUID) string {
	return JobKeyPrefix + jobID.String()
}

func AnalysisCacheKey(url, contentHash string) string {
	return fmt.Sprintf("analysis:%s:%s", contentHash, url)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
