// Package alert is the fire-and-forget operator notification boundary.
// Notifier failures must never affect scheduling, so implementations do not
// return errors.
package alert

import (
	"github.com/rs/zerolog"
)

// Notifier receives operator-relevant events.
type Notifier interface {
	JobFailed(jobID, contentItemID int64, lastError string)
	RuleMisconfigured(ruleID, contentItemID int64, reason string)
	BreakingDetected(contentItemID int64, priority int, reason string)
	ChannelDegraded(channel string, authError, rateLimited bool, err error)
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert").Logger()}
}

func (n *LogNotifier) JobFailed(jobID, contentItemID int64, lastError string) {
	n.logger.Error().
		Int64("job_id", jobID).
		Int64("content_item_id", contentItemID).
		Str("last_error", lastError).
		Msg("Publish job permanently failed")
}

func (n *LogNotifier) RuleMisconfigured(ruleID, contentItemID int64, reason string) {
	n.logger.Warn().
		Int64("rule_id", ruleID).
		Int64("content_item_id", contentItemID).
		Str("reason", reason).
		Msg("Rule misconfiguration detected")
}

func (n *LogNotifier) BreakingDetected(contentItemID int64, priority int, reason string) {
	n.logger.Warn().
		Int64("content_item_id", contentItemID).
		Int("priority", priority).
		Str("reason", reason).
		Msg("Breaking news detected")
}

func (n *LogNotifier) ChannelDegraded(channel string, authError, rateLimited bool, err error) {
	n.logger.Warn().
		Str("channel", channel).
		Bool("auth_error", authError).
		Bool("rate_limited", rateLimited).
		Err(err).
		Msg("Channel degraded")
}

// Nop discards all alerts.
type Nop struct{}

func (Nop) JobFailed(int64, int64, string)            {}
func (Nop) RuleMisconfigured(int64, int64, string)    {}
func (Nop) BreakingDetected(int64, int, string)       {}
func (Nop) ChannelDegraded(string, bool, bool, error) {}
