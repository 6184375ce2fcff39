package intake

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"newsdesk/pressroom/internal/models"
	"newsdesk/pressroom/internal/store"
)

// seedFile is the on-disk bootstrap format for sources, rules and policies.
type seedFile struct {
	Sources []struct {
		Name            string `yaml:"name"`
		FeedURL         string `yaml:"feed_url"`
		GroupID         *int64 `yaml:"group_id"`
		TrustLevel      *int   `yaml:"trust_level"`
		DefaultBehavior string `yaml:"default_behavior"`
	} `yaml:"sources"`

	Rules []struct {
		Name                 string   `yaml:"name"`
		Priority             int      `yaml:"priority"`
		Enabled              *bool    `yaml:"enabled"`
		DecisionType         string   `yaml:"decision_type"`
		MinTrustLevel        *int64   `yaml:"min_trust_level"`
		KeywordsInclude      []string `yaml:"keywords_include"`
		KeywordsExclude      []string `yaml:"keywords_exclude"`
		SourceIDs            []int64  `yaml:"source_ids"`
		GroupIDs             []int64  `yaml:"group_ids"`
		ScheduleDelayMinutes *int64   `yaml:"schedule_delay_minutes"`
	} `yaml:"rules"`

	Policies []struct {
		Platform             string              `yaml:"platform"`
		Enabled              *bool               `yaml:"enabled"`
		DailyLimit           int                 `yaml:"daily_limit"`
		MinIntervalMinutes   int                 `yaml:"min_interval_minutes"`
		AllowedWindows       []models.TimeWindow `yaml:"allowed_windows"`
		NightStart           string              `yaml:"night_start"`
		NightEnd             string              `yaml:"night_end"`
		NightSilencePush     bool                `yaml:"night_silence_push"`
		NightQueueForMorning bool                `yaml:"night_queue_for_morning"`
		EmergencyOverride    bool                `yaml:"emergency_override"`
		Timezone             string              `yaml:"timezone"`
	} `yaml:"policies"`
}

// SeedReport counts what an import touched.
type SeedReport struct {
	Sources  int
	Rules    int
	Policies int
}

// ImportSeed loads a YAML seed file and upserts its sources and policies.
// Rules are matched by name; existing names are left untouched so a re-import
// never clobbers editor changes.
func ImportSeed(ctx context.Context, s *store.Store, path string) (SeedReport, error) {
	var report SeedReport

	raw, err := os.ReadFile(path)
	if err != nil {
		return report, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return report, fmt.Errorf("failed to parse seed file: %w", err)
	}

	existing, err := s.ListRules(ctx)
	if err != nil {
		return report, err
	}
	knownRules := make(map[string]bool, len(existing))
	for _, r := range existing {
		knownRules[r.Name] = true
	}

	err = s.Transact(ctx, func(tx *store.Tx) error {
		now := time.Now().UTC()

		for _, entry := range seed.Sources {
			if entry.FeedURL == "" {
				return fmt.Errorf("source %q has no feed_url", entry.Name)
			}
			src := models.NewSource()
			src.Name = entry.Name
			src.FeedURL = entry.FeedURL
			if entry.GroupID != nil {
				src.GroupID = sql.NullInt64{Int64: *entry.GroupID, Valid: true}
			}
			if entry.TrustLevel != nil {
				src.TrustLevel = *entry.TrustLevel
			}
			if entry.DefaultBehavior != "" {
				src.DefaultBehavior = models.DefaultBehavior(entry.DefaultBehavior)
			}
			if err := tx.UpsertSource(ctx, src); err != nil {
				return err
			}
			report.Sources++
		}

		for _, entry := range seed.Rules {
			if knownRules[entry.Name] {
				continue
			}
			rule := models.NewRule()
			rule.Name = entry.Name
			rule.Priority = entry.Priority
			if entry.Enabled != nil {
				rule.IsEnabled = *entry.Enabled
			}
			rule.DecisionType = models.DecisionType(entry.DecisionType)
			if entry.MinTrustLevel != nil {
				rule.MinTrustLevel = sql.NullInt64{Int64: *entry.MinTrustLevel, Valid: true}
			}
			rule.KeywordsInclude = models.StringList(entry.KeywordsInclude)
			rule.KeywordsExclude = models.StringList(entry.KeywordsExclude)
			rule.SourceIDs = models.Int64List(entry.SourceIDs)
			rule.GroupIDs = models.Int64List(entry.GroupIDs)
			if entry.ScheduleDelayMinutes != nil {
				rule.ScheduleDelayMinutes = sql.NullInt64{Int64: *entry.ScheduleDelayMinutes, Valid: true}
			}
			if _, err := tx.InsertRule(ctx, rule); err != nil {
				return err
			}
			report.Rules++
		}

		for _, entry := range seed.Policies {
			if entry.Platform == "" {
				return fmt.Errorf("policy entry has no platform")
			}
			p := models.NewPublishingPolicy(entry.Platform)
			if entry.Enabled != nil {
				p.IsEnabled = *entry.Enabled
			}
			p.DailyLimit = entry.DailyLimit
			p.MinIntervalMinutes = entry.MinIntervalMinutes
			p.AllowedWindows = models.WindowList(entry.AllowedWindows)
			if entry.NightStart != "" {
				p.NightStart = sql.NullString{String: entry.NightStart, Valid: true}
			}
			if entry.NightEnd != "" {
				p.NightEnd = sql.NullString{String: entry.NightEnd, Valid: true}
			}
			p.NightSilencePush = entry.NightSilencePush
			p.NightQueueForMorning = entry.NightQueueForMorning
			p.EmergencyOverride = entry.EmergencyOverride
			if entry.Timezone != "" {
				p.Timezone = entry.Timezone
			}
			p.UpdatedAt = now
			if err := tx.UpsertPolicy(ctx, p); err != nil {
				return err
			}
			report.Policies++
		}

		return nil
	})
	if err != nil {
		return report, err
	}

	log.Info().
		Int("sources", report.Sources).
		Int("rules", report.Rules).
		Int("policies", report.Policies).
		Msg("Seed import finished")

	return report, nil
}
