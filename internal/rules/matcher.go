// Package rules implements the decision evaluator: a pure function mapping a
// content item, its source metadata and a snapshot of enabled rules to exactly
// one decision. No side effects, no I/O.
package rules

import (
	"sort"
	"strings"
	"time"

	"newsdesk/pressroom/internal/models"
)

// Decision is the evaluator output for one content item.
type Decision struct {
	Type        models.DecisionType
	RuleID      int64 // 0 when no rule matched (source default applied)
	Reason      string
	ScheduledAt *time.Time

	// Misconfigured is set when the winning rule demanded a schedule but
	// carried no delay; the decision falls back to require-approval and the
	// caller should alert an operator.
	Misconfigured bool
}

// Evaluate picks the decision for item given a consistent snapshot of enabled
// rules. Among matching rules the highest priority wins; equal priorities are
// broken by most recently created rule, then highest id. When no rule matches,
// the source's default behavior decides.
func Evaluate(item *models.ContentItem, source *models.Source, ruleSet []models.Rule, now time.Time) Decision {
	candidates := make([]models.Rule, 0, len(ruleSet))
	for _, rule := range ruleSet {
		if rule.IsEnabled && matches(&rule, item, source) {
			candidates = append(candidates, rule)
		}
	}

	if len(candidates) == 0 {
		return defaultDecision(source)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	winner := candidates[0]

	decision := Decision{
		Type:   winner.DecisionType,
		RuleID: winner.ID,
		Reason: "matched rule " + winner.Name,
	}

	if winner.DecisionType == models.DecisionSchedule {
		if !winner.ScheduleDelayMinutes.Valid {
			// A schedule rule without a delay cannot produce a publish time.
			return Decision{
				Type:          models.DecisionRequireApproval,
				RuleID:        winner.ID,
				Reason:        "rule misconfigured: schedule decision without delay",
				Misconfigured: true,
			}
		}
		at := now.UTC().Add(time.Duration(winner.ScheduleDelayMinutes.Int64) * time.Minute)
		decision.ScheduledAt = &at
	}

	return decision
}

func defaultDecision(source *models.Source) Decision {
	if source.DefaultBehavior == models.BehaviorAuto {
		return Decision{
			Type:   models.DecisionAutoPublish,
			Reason: "no rule matched, source default auto",
		}
	}
	return Decision{
		Type:   models.DecisionRequireApproval,
		Reason: "no rule matched, source default editorial",
	}
}

// matches reports whether every restriction the rule declares holds for the
// item. Unset restrictions always pass.
func matches(rule *models.Rule, item *models.ContentItem, source *models.Source) bool {
	if len(rule.SourceIDs) > 0 || len(rule.GroupIDs) > 0 {
		inSources := rule.SourceIDs.Contains(source.ID)
		inGroups := source.GroupID.Valid && rule.GroupIDs.Contains(source.GroupID.Int64)
		if !inSources && !inGroups {
			return false
		}
	}

	if rule.MinTrustLevel.Valid && int64(item.TrustLevelSnapshot) < rule.MinTrustLevel.Int64 {
		return false
	}

	text := strings.ToLower(item.Title + " " + item.Body)

	if len(rule.KeywordsInclude) > 0 && !containsAny(text, rule.KeywordsInclude) {
		return false
	}
	if len(rule.KeywordsExclude) > 0 && containsAny(text, rule.KeywordsExclude) {
		return false
	}

	return true
}

// containsAny does case-insensitive substring matching of any keyword.
func containsAny(lowerText string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowerText, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// MatchedKeywords returns the include keywords present in the item's text.
// Used by breaking-news detection to record what triggered the escalation.
func MatchedKeywords(item *models.ContentItem, keywords []string) []string {
	text := strings.ToLower(item.Title + " " + item.Body)
	var matched []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}
