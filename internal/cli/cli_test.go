package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humbrol2/humbbot-memory/internal/config"
)

type testEnv struct {
	dir    string
	config string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "embedding:\n  provider: hash\n  cache_size: 0\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return testEnv{dir: filepath.Join(dir, "data"), config: cfgPath}
}

// run executes the root command. Persistent flags are always passed so state
// from a previous run does not leak in.
func (env testEnv) run(t *testing.T, session, format string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(append([]string{
		"--dir", env.dir, "--config", env.config, "--session", session, "--format", format,
	}, args...))
	require.NoError(t, RootCmd.Execute())
	return out.String()
}

func TestRecordThenContext(t *testing.T) {
	env := newTestEnv(t)

	out := env.run(t, "camp", "json", "record", "combat",
		`{"participants":["Hero","Dragon"],"location":"Dragon Lair","outcome":"victory"}`, "--significance", "0.9")
	var rec struct {
		OK      bool   `json:"ok"`
		ID      string `json:"id"`
		Session string `json:"session"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.True(t, rec.OK)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "camp", rec.Session)

	text := env.run(t, "camp", "text", "context", "--location", "Dragon Lair",
		"--participants", "Hero", "--budget", "500")
	assert.Contains(t, text, "[combat]")
	assert.Contains(t, text, "Dragon Lair")
}

func TestSessionsList(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, "alpha", "json", "record", "generic", `{"text":"set up camp"}`, "--significance", "")
	env.run(t, "beta", "json", "record", "generic", `{"text":"broke camp"}`, "--significance", "")

	out := env.run(t, "alpha", "text", "sessions", "list")
	assert.Equal(t, []string{"alpha", "beta"}, strings.Fields(out))
}

func TestSearchLexical(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, "lore", "json", "record", "generic", `{"text":"the innkeeper sells maps"}`, "--significance", "")

	out := env.run(t, "lore", "json", "search", "innkeeper maps", "--limit", "5")
	var hits []struct {
		Score  float64 `json:"score"`
		Source string  `json:"source"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.NotEmpty(t, hits)
}

func TestClassify(t *testing.T) {
	env := newTestEnv(t)
	out := env.run(t, "default", "json", "classify", "--age", "3d", "--significance", "0.5", "--accesses", "0")

	var got struct {
		Tier string  `json:"tier"`
		Eff  float64 `json:"effective_significance"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	want := config.Default().Tiers.Classify(72*time.Hour, 0.5, 0)
	assert.Equal(t, string(want), got.Tier)
	assert.InDelta(t, 0.5, got.Eff, 1e-9)
}

func TestExtractText(t *testing.T) {
	env := newTestEnv(t)
	out := env.run(t, "default", "json", "extract",
		"--characters", "Aria", "--locations", "Silverbrook", "--min-confidence", "0", "--record=false",
		"Aria traveled to Silverbrook at dawn.")

	var got struct {
		Candidates []struct {
			Type string `json:"type"`
		} `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NotEmpty(t, got.Candidates)
	assert.Equal(t, "travel", got.Candidates[0].Type)
}

func TestCompactdOnce(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, "one", "json", "record", "generic", `{"text":"a quiet day"}`, "--significance", "0.5")
	env.run(t, "one", "json", "record", "generic", `{"text":"a quieter night"}`, "--significance", "")
	env.run(t, "one", "json", "compactd", "--once", "--metrics-addr", "")

	out := env.run(t, "one", "json", "stats")
	var st struct {
		Session string `json:"session"`
		Hot     int    `json:"hot"`
		Store   struct {
			Events int `json:"events"`
		} `json:"store"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "one", st.Session)
	assert.Equal(t, 1, st.Hot)
	assert.Equal(t, 2, st.Store.Events)
}
