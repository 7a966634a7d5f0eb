package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [42, 43]
  poll_timeout: 10s
logging:
  level: debug
  console: true
cache:
  max_per_scope: 200
delivery:
  timeout: 5s
storage:
  driver: sqlite
  path: ./data/journal.db
report:
  enabled: true
  cron: "@daily"
  timezone: UTC
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	require.NoError(t, err)
	require.Same(t, cfg, m.Get())

	require.Equal(t, "123:abc", cfg.Telegram.Token)
	require.Equal(t, []int64{42, 43}, cfg.Telegram.OwnerUserIDs)
	require.Equal(t, 200, cfg.Cache.MaxPerScope)
	require.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Equal(t, "@daily", cfg.Report.Cron)
	require.True(t, cfg.PreferSelf())
	require.Equal(t, int64(42), cfg.SelfChatID())
	require.True(t, cfg.IsOwner(43))
	require.False(t, cfg.IsOwner(7))
}

func TestLoadJSON(t *testing.T) {
	m := NewManager(writeFile(t, "config.json", `{
		"telegram": {"token": "t"},
		"delivery": {"bot_token": "b", "chat_id": "-100"}
	}`))
	cfg, err := m.Load()
	require.NoError(t, err)
	require.False(t, cfg.PreferSelf())
	require.Nil(t, cfg.Storage)
}

func TestUnknownFieldRejected(t *testing.T) {
	m := NewManager(writeFile(t, "config.yaml", "telegram:\n  token: t\n  owner_user_ids: [1]\ncache:\n  max: 3\n"))
	_, err := m.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "max")
}

func TestTrailingDataRejected(t *testing.T) {
	m := NewManager(writeFile(t, "config.json", `{"telegram":{"token":"t","owner_user_ids":[1]}}{}`))
	_, err := m.Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrNoToken)
	require.Contains(t, err.Error(), "no delivery target")

	cfg = &Config{
		Telegram: TelegramConfig{Token: "t", OwnerUserIDs: []int64{1}, PollTimeout: "soon", GroupLog: "chat"},
		Cache:    CacheConfig{MaxPerScope: -1},
		Storage:  &StorageConfig{Driver: "mongo"},
		Report:   &ReportConfig{Enabled: true},
	}
	err = cfg.Validate()
	require.Error(t, err)
	for _, part := range []string{"telegram.poll_timeout", "telegram.group_log", "cache.max_per_scope", "storage.driver", "report.cron"} {
		require.Contains(t, err.Error(), part)
	}

	cfg = &Config{Telegram: TelegramConfig{Token: "t"}, Delivery: DeliveryConfig{BotToken: "b", ChatID: "1"}}
	require.NoError(t, cfg.Validate())
}

func TestReloadPublishesOnlyValidChanges(t *testing.T) {
	path := writeFile(t, "config.yaml", sampleYAML)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)
	ctx := context.Background()

	published, err := m.Reload(ctx)
	require.NoError(t, err)
	require.False(t, published, "unchanged content")

	require.NoError(t, os.WriteFile(path, []byte("telegram:\n  owner_user_ids: [1]\n"), 0o600))
	published, err = m.Reload(ctx)
	require.Error(t, err)
	require.False(t, published)
	require.Equal(t, "123:abc", m.Get().Telegram.Token, "rejected config is not committed")

	m.SetValidator(func(context.Context, *Config) error { return errors.New("vetoed") })
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(sampleYAML, "max_per_scope: 200", "max_per_scope: 300", 1)), 0o600))
	_, err = m.Reload(ctx)
	require.ErrorContains(t, err, "vetoed")

	m.SetValidator(nil)
	updated := `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
cache:
  max_per_scope: 50
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	published, err = m.Reload(ctx)
	require.NoError(t, err)
	require.True(t, published)
	select {
	case got := <-ch:
		require.Equal(t, 50, got.Cache.MaxPerScope)
	case <-time.After(time.Second):
		t.Fatal("config not published")
	}
}

func TestPublishKeepsLatestForSlowSubscriber(t *testing.T) {
	m := NewManager("unused.yaml")
	ch := m.Subscribe(1)
	m.publish(&Config{Cache: CacheConfig{MaxPerScope: 1}})
	m.publish(&Config{Cache: CacheConfig{MaxPerScope: 2}})
	require.Equal(t, 2, (<-ch).Cache.MaxPerScope)

	m.Unsubscribe(ch)
	_, ok := <-ch
	require.False(t, ok)
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := &Config{
		Telegram: TelegramConfig{Token: "secret-1", OwnerUserIDs: []int64{1}},
		Cache:    CacheConfig{MaxPerScope: 10},
	}
	newCfg := &Config{
		Telegram: TelegramConfig{Token: "secret-2", OwnerUserIDs: []int64{1}},
		Cache:    CacheConfig{MaxPerScope: 20},
		Delivery: DeliveryConfig{BotToken: "bot-secret", ChatID: "5"},
		Report:   &ReportConfig{Enabled: true, Cron: "@hourly"},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	require.Equal(t, []string{"cache", "delivery", "report", "telegram"}, changed)
	require.NotEmpty(t, attrs)

	require.Equal(t, []string{"telegram.token", "delivery"}, RestartRequired(oldCfg, newCfg))

	changed, _ = SummarizeConfigChange(oldCfg, oldCfg)
	require.Empty(t, changed)
}

func TestParseDurationField(t *testing.T) {
	d, err := ParseDurationField("x", " 2s ")
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, d)

	d, err = ParseDurationOrDefault("x", "", time.Minute)
	require.NoError(t, err)
	require.Equal(t, time.Minute, d)

	_, err = ParseDurationField("x", "-1s")
	require.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	require.Equal(t, formatYAML, detectFormat("a.YML", []byte("{}")))
	require.Equal(t, formatJSON, detectFormat("a.json", nil))
	require.Equal(t, formatJSON, detectFormat("config", []byte("  {\"cache\":{}}")))
	require.Equal(t, formatYAML, detectFormat("config", []byte("cache:\n  max_per_scope: 1\n")))

	out, f, err := toJSON("c.yaml", []byte("1: one\nlist: [a, {2: b}]\n"))
	require.NoError(t, err)
	require.Equal(t, formatYAML, f)
	require.JSONEq(t, `{"1":"one","list":["a",{"2":"b"}]}`, string(out))

	out, _, err = toJSON("empty.yaml", nil)
	require.NoError(t, err)
	require.Equal(t, "{}", string(out))
}
