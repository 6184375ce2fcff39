package intake

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdesk/pressroom/internal/database"
	"newsdesk/pressroom/internal/models"
	"newsdesk/pressroom/internal/store"
)

const seedYAML = `
sources:
  - name: national wire
    feed_url: https://example.com/wire.xml
    trust_level: 80
    default_behavior: auto

rules:
  - name: block spam
    priority: 100
    decision_type: block
    keywords_include: [casino, lottery]
  - name: schedule sports
    priority: 10
    decision_type: schedule
    keywords_include: [football]
    schedule_delay_minutes: 60

policies:
  - platform: web
    daily_limit: 20
    emergency_override: true
  - platform: discord
    night_start: "23:00"
    night_end: "06:00"
    night_silence_push: true
    timezone: Europe/Berlin
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newSeedStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.New(db)
}

func TestImportSeed(t *testing.T) {
	s := newSeedStore(t)
	ctx := context.Background()

	report, err := ImportSeed(ctx, s, writeSeed(t, seedYAML))
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Sources: 1, Rules: 2, Policies: 2}, report)

	sources, err := s.ListActiveSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, 80, sources[0].TrustLevel)
	assert.Equal(t, models.BehaviorAuto, sources[0].DefaultBehavior)

	rules, err := s.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	p, err := s.GetPolicy(ctx, "discord")
	require.NoError(t, err)
	assert.True(t, p.NightSilencePush)
	assert.Equal(t, "Europe/Berlin", p.Timezone)
	require.True(t, p.NightStart.Valid)
	assert.Equal(t, "23:00", p.NightStart.String)
}

func TestImportSeedIsIdempotentForRules(t *testing.T) {
	s := newSeedStore(t)
	ctx := context.Background()
	path := writeSeed(t, seedYAML)

	_, err := ImportSeed(ctx, s, path)
	require.NoError(t, err)

	// An editor disables a rule between imports.
	rules, err := s.ListRules(ctx)
	require.NoError(t, err)
	rules[0].IsEnabled = false
	require.NoError(t, s.UpdateRule(ctx, &rules[0]))

	report, err := ImportSeed(ctx, s, path)
	require.NoError(t, err)
	assert.Zero(t, report.Rules, "existing rule names are left untouched")

	rules, err = s.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.False(t, rules[0].IsEnabled, "the editor change survives a re-import")
}

func TestImportSeedRejectsSourceWithoutFeedURL(t *testing.T) {
	s := newSeedStore(t)

	_, err := ImportSeed(context.Background(), s, writeSeed(t, "sources:\n  - name: broken\n"))
	require.Error(t, err)
}
