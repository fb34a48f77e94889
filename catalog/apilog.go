// CLAUDE:SUMMARY External API usage log for quota surfacing (search provider, LLM, transcript).
package catalog

import (
	"context"
	"time"
)

// APICall is one logged call to an external API. Used only for quota
// surfacing in status reports, never consulted on the hot path.
type APICall struct {
	APIName        string `json:"api_name"`
	CalledAt       int64  `json:"called_at"`
	Success        bool   `json:"success"`
	LatencyMs      int64  `json:"latency_ms"`
	RemainingQuota *int   `json:"remaining_quota,omitempty"`
}

// LogAPICall records one external API call. Errors are returned but callers
// typically log and continue; the log is not load-bearing.
func (s *Store) LogAPICall(ctx context.Context, c APICall) error {
	if c.CalledAt == 0 {
		c.CalledAt = time.Now().UnixMilli()
	}
	var quota any
	if c.RemainingQuota != nil {
		quota = *c.RemainingQuota
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO api_call_log (api_name, called_at, success, latency_ms, remaining_quota)
		VALUES (?, ?, ?, ?, ?)`,
		c.APIName, c.CalledAt, boolToInt(c.Success), c.LatencyMs, quota)
	return err
}

// APIUsage summarizes calls per API since the given time.
type APIUsage struct {
	Calls          int  `json:"calls"`
	Failures       int  `json:"failures"`
	RemainingQuota *int `json:"remaining_quota,omitempty"`
}

// APIUsageSince aggregates the call log per API name since a point in time.
// RemainingQuota carries the most recent value the provider reported.
func (s *Store) APIUsageSince(ctx context.Context, since time.Time) (map[string]APIUsage, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT api_name, success, remaining_quota FROM api_call_log
		WHERE called_at >= ? ORDER BY called_at ASC`, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]APIUsage)
	for rows.Next() {
		var name string
		var success int
		var quota *int
		if err := rows.Scan(&name, &success, &quota); err != nil {
			return nil, err
		}
		u := out[name]
		u.Calls++
		if success == 0 {
			u.Failures++
		}
		if quota != nil {
			u.RemainingQuota = quota
		}
		out[name] = u
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
