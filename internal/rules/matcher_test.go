package rules

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdesk/pressroom/internal/models"
)

func testItem(title, body string, trust int) *models.ContentItem {
	item := models.NewContentItem()
	item.ID = 1
	item.SourceID = 10
	item.Title = title
	item.Body = body
	item.TrustLevelSnapshot = trust
	return item
}

func testSource(behavior models.DefaultBehavior) *models.Source {
	src := models.NewSource()
	src.ID = 10
	src.DefaultBehavior = behavior
	return src
}

func makeRule(id int64, name string, priority int, decision models.DecisionType, createdAt time.Time) models.Rule {
	rule := *models.NewRule()
	rule.ID = id
	rule.Name = name
	rule.Priority = priority
	rule.DecisionType = decision
	rule.CreatedAt = createdAt
	return rule
}

func TestEvaluateNoRulesUsesSourceDefault(t *testing.T) {
	item := testItem("quiet day", "nothing happened", 50)
	now := time.Now().UTC()

	d := Evaluate(item, testSource(models.BehaviorEditorial), nil, now)
	assert.Equal(t, models.DecisionRequireApproval, d.Type)
	assert.Zero(t, d.RuleID)

	d = Evaluate(item, testSource(models.BehaviorAuto), nil, now)
	assert.Equal(t, models.DecisionAutoPublish, d.Type)
	assert.Zero(t, d.RuleID)
}

func TestEvaluateHighestPriorityWins(t *testing.T) {
	now := time.Now().UTC()
	ruleSet := []models.Rule{
		makeRule(1, "low", 10, models.DecisionAutoPublish, now.Add(-time.Hour)),
		makeRule(2, "high", 100, models.DecisionBlock, now.Add(-time.Hour)),
	}

	d := Evaluate(testItem("anything", "", 50), testSource(models.BehaviorAuto), ruleSet, now)
	assert.Equal(t, models.DecisionBlock, d.Type)
	assert.Equal(t, int64(2), d.RuleID)
}

func TestEvaluateTieBreakNewerRuleThenHigherID(t *testing.T) {
	now := time.Now().UTC()

	older := makeRule(1, "older", 50, models.DecisionBlock, now.Add(-2*time.Hour))
	newer := makeRule(2, "newer", 50, models.DecisionAutoPublish, now.Add(-time.Hour))

	d := Evaluate(testItem("x", "", 50), testSource(models.BehaviorEditorial), []models.Rule{older, newer}, now)
	assert.Equal(t, int64(2), d.RuleID)

	// Same priority and creation time: highest id wins.
	twinA := makeRule(3, "twin-a", 50, models.DecisionBlock, older.CreatedAt)
	twinB := makeRule(4, "twin-b", 50, models.DecisionAutoPublish, older.CreatedAt)

	d = Evaluate(testItem("x", "", 50), testSource(models.BehaviorEditorial), []models.Rule{twinA, twinB}, now)
	assert.Equal(t, int64(4), d.RuleID)
}

func TestEvaluateDisabledRuleIgnored(t *testing.T) {
	now := time.Now().UTC()
	rule := makeRule(1, "off", 100, models.DecisionBlock, now)
	rule.IsEnabled = false

	d := Evaluate(testItem("x", "", 50), testSource(models.BehaviorEditorial), []models.Rule{rule}, now)
	assert.Equal(t, models.DecisionRequireApproval, d.Type)
	assert.Zero(t, d.RuleID)
}

func TestEvaluateKeywordMatching(t *testing.T) {
	now := time.Now().UTC()

	rule := makeRule(1, "storm watch", 10, models.DecisionAutoPublish, now)
	rule.KeywordsInclude = models.StringList{"Hurricane"}
	rule.KeywordsExclude = models.StringList{"sports"}

	d := Evaluate(testItem("HURRICANE approaching coast", "", 50), testSource(models.BehaviorEditorial), []models.Rule{rule}, now)
	assert.Equal(t, int64(1), d.RuleID, "include keyword matches case-insensitively")

	d = Evaluate(testItem("hurricane hits sports arena", "", 50), testSource(models.BehaviorEditorial), []models.Rule{rule}, now)
	assert.Zero(t, d.RuleID, "exclude keyword vetoes the rule")

	d = Evaluate(testItem("calm weather", "a hurricane in the body text", 50), testSource(models.BehaviorEditorial), []models.Rule{rule}, now)
	assert.Equal(t, int64(1), d.RuleID, "body text is matched too")
}

func TestEvaluateTrustLevelRestriction(t *testing.T) {
	now := time.Now().UTC()
	rule := makeRule(1, "trusted only", 10, models.DecisionAutoPublish, now)
	rule.MinTrustLevel = sql.NullInt64{Int64: 70, Valid: true}

	d := Evaluate(testItem("x", "", 50), testSource(models.BehaviorEditorial), []models.Rule{rule}, now)
	assert.Zero(t, d.RuleID)

	d = Evaluate(testItem("x", "", 70), testSource(models.BehaviorEditorial), []models.Rule{rule}, now)
	assert.Equal(t, int64(1), d.RuleID)
}

func TestEvaluateSourceAndGroupRestriction(t *testing.T) {
	now := time.Now().UTC()

	rule := makeRule(1, "scoped", 10, models.DecisionBlock, now)
	rule.SourceIDs = models.Int64List{99}
	rule.GroupIDs = models.Int64List{7}

	src := testSource(models.BehaviorEditorial)
	d := Evaluate(testItem("x", "", 50), src, []models.Rule{rule}, now)
	assert.Zero(t, d.RuleID, "source outside both lists does not match")

	src.GroupID = sql.NullInt64{Int64: 7, Valid: true}
	d = Evaluate(testItem("x", "", 50), src, []models.Rule{rule}, now)
	assert.Equal(t, int64(1), d.RuleID, "group membership is enough")

	src = testSource(models.BehaviorEditorial)
	src.ID = 99
	d = Evaluate(testItem("x", "", 50), src, []models.Rule{rule}, now)
	assert.Equal(t, int64(1), d.RuleID, "direct source membership is enough")
}

func TestEvaluateScheduleDecision(t *testing.T) {
	now := time.Now().UTC()

	rule := makeRule(1, "later", 10, models.DecisionSchedule, now)
	rule.ScheduleDelayMinutes = sql.NullInt64{Int64: 30, Valid: true}

	d := Evaluate(testItem("x", "", 50), testSource(models.BehaviorEditorial), []models.Rule{rule}, now)
	require.Equal(t, models.DecisionSchedule, d.Type)
	require.NotNil(t, d.ScheduledAt)
	assert.Equal(t, now.Add(30*time.Minute), *d.ScheduledAt)
	assert.False(t, d.Misconfigured)
}

func TestEvaluateScheduleWithoutDelayFallsBack(t *testing.T) {
	now := time.Now().UTC()
	rule := makeRule(1, "broken", 10, models.DecisionSchedule, now)

	d := Evaluate(testItem("x", "", 50), testSource(models.BehaviorAuto), []models.Rule{rule}, now)
	assert.Equal(t, models.DecisionRequireApproval, d.Type)
	assert.Equal(t, int64(1), d.RuleID)
	assert.True(t, d.Misconfigured)
	assert.Nil(t, d.ScheduledAt)
}

func TestMatchedKeywords(t *testing.T) {
	item := testItem("Earthquake shakes region", "magnitude seven", 50)

	matched := MatchedKeywords(item, []string{"earthquake", "tsunami", "", "magnitude"})
	assert.Equal(t, []string{"earthquake", "magnitude"}, matched)

	assert.Empty(t, MatchedKeywords(item, []string{"flood"}))
}
