// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/browser"
	"github.com/xkilldash9x/cythink/internal/browser/htmldoc"
	"github.com/xkilldash9x/cythink/internal/config"
	"github.com/xkilldash9x/cythink/internal/directive"
	"github.com/xkilldash9x/cythink/internal/mocks"
	"github.com/xkilldash9x/cythink/internal/observability"
	"github.com/xkilldash9x/cythink/internal/store"
)

const loginPage = `<html><head><title>Login</title></head><body>
<h1>Welcome</h1>
<form id="login">
  <input id="email" name="email">
  <button id="submit" type="button">Log in</button>
</form>
</body></html>`

// -- Helpers --

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cythink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Translator.Client = config.ClientLocal
	cfg.Cache.Path = filepath.Join(root, "thoughts.json")
	cfg.Project.Root = root
	cfg.Browser.CommandTimeout = 0
	cfg.Browser.NavigationTimeout = 5 * time.Second
	return cfg
}

func newPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(loginPage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testDeps struct {
	runDeps
	backend *mocks.ScriptedClient
	driver  *htmldoc.Driver
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	d := &testDeps{
		backend: &mocks.ScriptedClient{
			ID: schemas.BackendIdentity{Client: schemas.ClientOllama, Model: "codellama"},
			Answers: map[string]string{
				"enter the user into the email field": `fill("#email", "{{user}}")`,
				"check the email":                     `assertValue("#email", "{{user}}")`,
			},
			Tokens: 30,
		},
	}
	d.runDeps = runDeps{
		caches: NewCacheProvider(),
		newClient: func(context.Context, config.TranslatorConfig, *zap.Logger) (schemas.TranslationClient, error) {
			return d.backend, nil
		},
		newDriver: func(_ context.Context, kind string, _ config.BrowserConfig, logger *zap.Logger) (browser.Driver, func(), error) {
			require.Equal(t, DriverHTMLDoc, kind)
			d.driver = htmldoc.New(logger)
			return d.driver, func() {}, nil
		},
	}
	return d
}

// -- Root Command Tests --

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)

	out, err = executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "cythink "+Version+"\n", out)
}

func TestInitializeConfig(t *testing.T) {
	t.Run("reads an explicit file and the environment", func(t *testing.T) {
		path := createTempConfig(t, `
translator:
  client: local
  model: llama3
cache:
  path: cache/thoughts.json
`)
		t.Setenv("CYTHINK_SERVER_PORT", "5050")

		cfg, err := initializeConfig(viper.New(), path)
		require.NoError(t, err)
		assert.Equal(t, config.ClientLocal, cfg.Translator.Client)
		assert.Equal(t, "llama3", cfg.Translator.Model)
		assert.Equal(t, "cache/thoughts.json", cfg.Cache.Path)
		assert.Equal(t, 5050, cfg.Server.Port)
		assert.Equal(t, 1024, cfg.Cache.PendingLimit, "defaults fill unset keys")
	})

	t.Run("a missing explicit file is an error", func(t *testing.T) {
		_, err := initializeConfig(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})

	t.Run("unparseable file", func(t *testing.T) {
		path := createTempConfig(t, "translator: [unclosed")
		_, err := initializeConfig(viper.New(), path)
		assert.Error(t, err)
	})
}

func TestGetConfigFromContext(t *testing.T) {
	_, err := getConfigFromContext(context.Background())
	assert.Error(t, err)

	cfg := config.NewDefaultConfig()
	got, err := getConfigFromContext(context.WithValue(context.Background(), configKey{}, cfg))
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}

func TestServeCmd_RejectsInvalidConfig(t *testing.T) {
	path := createTempConfig(t, "translator:\n  client: remote\n")
	_, err := executeCommand(t, "serve", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported client")
}

// -- Run Command Tests --

func TestReadDirective(t *testing.T) {
	d, err := readDirective("", []string{"click login"})
	require.NoError(t, err)
	assert.False(t, d.IsList())

	d, err = readDirective("", []string{"a", "b"})
	require.NoError(t, err)
	assert.True(t, d.IsList())
	assert.Equal(t, []string{"a", "b"}, d.Split())

	file := filepath.Join(t.TempDir(), "steps.txt")
	require.NoError(t, os.WriteFile(file, []byte("a\n// note\nb\n"), 0o644))
	d, err = readDirective(file, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, d.Split())

	_, err = readDirective(file, []string{"a"})
	assert.Error(t, err)
	_, err = readDirective("", nil)
	assert.Error(t, err)
}

func TestRunThink_TranslatesThenReplaysFromCache(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	cfg := newTestConfig(t)
	page := newPageServer(t)
	deps := newTestDeps(t)

	opts := runOptions{
		URL:          page.URL,
		Spec:         "cypress/e2e/login.cy.js",
		Test:         "logs in",
		Driver:       DriverHTMLDoc,
		Placeholders: map[string]string{"user": "ann@example.com"},
	}
	d := directive.Text("enter the user into the email field\ncheck the email")

	var out bytes.Buffer
	require.NoError(t, runThink(ctx, &out, logger, cfg, d, opts, deps.runDeps))
	assert.Equal(t, 2, deps.backend.Calls())
	assert.Contains(t, out.String(), "backend")
	assert.Contains(t, out.String(), "tokens used: 60, tokens saved: 0")

	value, err := deps.driver.Value(ctx, "", "#email")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", value)

	out.Reset()
	require.NoError(t, runThink(ctx, &out, logger, cfg, d, opts, deps.runDeps))
	assert.Equal(t, 2, deps.backend.Calls(), "the second run is answered by the cache")
	assert.Contains(t, out.String(), "cache")
	assert.Contains(t, out.String(), "tokens used: 0, tokens saved: 60")

	persisted, err := os.ReadFile(cfg.Cache.Path)
	require.NoError(t, err)
	assert.Contains(t, string(persisted), `{{user}}`, "the cache holds the template, not the value")
	assert.NotContains(t, string(persisted), "ann@example.com")
}

func TestRunThink_FailureIsReported(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := newTestConfig(t)
	page := newPageServer(t)
	deps := newTestDeps(t)
	deps.backend.Answers["click the missing button"] = `click("#missing")`

	var out bytes.Buffer
	err := runThink(context.Background(), &out, logger, cfg, directive.Text("click the missing button"),
		runOptions{URL: page.URL, Driver: DriverHTMLDoc}, deps.runDeps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `click("#missing")`)
	assert.Contains(t, out.String(), "FAILED")

	_, statErr := os.Stat(cfg.Cache.Path)
	assert.True(t, os.IsNotExist(statErr), "failed actions are never persisted")
}

func TestRunThink_RewritesSpec(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := newTestConfig(t)
	page := newPageServer(t)
	deps := newTestDeps(t)

	spec := filepath.Join(cfg.Project.Root, "login.cy.js")
	require.NoError(t, os.WriteFile(spec, []byte("it('logs in', () => {\n  cy.think(`enter the user into the email field`)\n})\n"), 0o644))

	opts := runOptions{
		URL:          page.URL,
		Spec:         "login.cy.js",
		Test:         "logs in",
		Driver:       DriverHTMLDoc,
		Placeholders: map[string]string{"user": "ann"},
		Rewrite:      true,
	}
	require.NoError(t, runThink(context.Background(), &bytes.Buffer{}, logger, cfg,
		directive.Text("enter the user into the email field"), opts, deps.runDeps))

	updated, err := os.ReadFile(spec)
	require.NoError(t, err)
	assert.Contains(t, string(updated), "cy.steps(")
	assert.Contains(t, string(updated), "// cythink generated code for test: logs in")
	assert.Contains(t, string(updated), `fill("#email", "{{user}}")`)
}

func TestRunThink_GeneratedSteps(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	cfg := newTestConfig(t)
	cfg.Translator.Client = "remote" // never validated for generated blocks
	page := newPageServer(t)
	deps := newTestDeps(t)

	block := "// enter the user\nfill(\"#email\", \"{{user}}\")\nassertTitle(\"Login\")"
	err := runThink(ctx, &bytes.Buffer{}, logger, cfg, directive.Text(block),
		runOptions{URL: page.URL, Driver: DriverHTMLDoc, Steps: true, Placeholders: map[string]string{"user": "bob"}}, deps.runDeps)
	require.NoError(t, err)
	assert.Equal(t, 0, deps.backend.Calls())

	value, err := deps.driver.Value(ctx, "", "#email")
	require.NoError(t, err)
	assert.Equal(t, "bob", value)
}

func TestRunThink_ThroughCompanion(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	cfg := newTestConfig(t)
	page := newPageServer(t)
	deps := newTestDeps(t)

	server, cleanup, err := buildCompanion(ctx, logger, cfg, deps.caches, deps.newClient)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	endpoint := httptest.NewServer(server.Router())
	t.Cleanup(endpoint.Close)

	opts := runOptions{
		URL:          page.URL,
		Spec:         "cypress/e2e/login.cy.js",
		Test:         "logs in",
		Within:       "#login",
		Driver:       DriverHTMLDoc,
		CompanionURL: endpoint.URL,
		Placeholders: map[string]string{"user": "cy@example.com"},
	}
	d := directive.Text("enter the user into the email field")

	require.NoError(t, runThink(ctx, &bytes.Buffer{}, logger, cfg, d, opts, deps.runDeps))
	require.NoError(t, runThink(ctx, &bytes.Buffer{}, logger, cfg, d, opts, deps.runDeps))
	assert.Equal(t, 1, deps.backend.Calls())

	received := deps.backend.Received()
	require.Len(t, received, 1)
	assert.Contains(t, received[0].Context, `id="email"`)
	assert.NotContains(t, received[0].Context, "Welcome", "the context is scoped to the form")

	var out bytes.Buffer
	require.NoError(t, runCachePurge(ctx, &out, logger, cfg.Cache, deps.caches, opts.Spec, opts.Test, endpoint.URL))
	assert.Equal(t, "removed 1 cached entries\n", out.String())
}

// -- Cache Command Tests --

func seedCache(t *testing.T, path string, entries map[string]schemas.CacheEntry) {
	t.Helper()
	ctx := context.Background()
	cache, err := store.NewCache(ctx, store.NewFileStore(path), 16, zap.NewNop(), observability.NopMetrics())
	require.NoError(t, err)
	for fp, e := range entries {
		cache.Stage(fp, e)
		promoted, err := cache.Promote(ctx, fp)
		require.NoError(t, err)
		require.True(t, promoted)
	}
}

func TestCacheCommands(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	cfg := newTestConfig(t)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	entries := map[string]schemas.CacheEntry{}
	for i, test := range []string{"t1", "t1", "t1", "t2"} {
		entries[fmt.Sprintf("%064d", i)] = schemas.CacheEntry{
			Prompt: fmt.Sprintf("step %d", i), Action: `click("#a")`, TokenUsage: 10,
			Client: schemas.ClientOllama, SpecIdentifier: "spec.cy.js", TestIdentifier: test, CreatedAt: created,
		}
	}
	seedCache(t, cfg.Cache.Path, entries)
	caches := NewCacheProvider()

	var out bytes.Buffer
	require.NoError(t, runCacheList(ctx, &out, logger, cfg.Cache, caches, "", false))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "FINGERPRINT")
	assert.Contains(t, lines[1], "step 0")

	out.Reset()
	require.NoError(t, runCacheList(ctx, &out, logger, cfg.Cache, caches, "other.cy.js", true))
	assert.Equal(t, "[]\n", out.String())

	out.Reset()
	require.NoError(t, runCachePurge(ctx, &out, logger, cfg.Cache, caches, "spec.cy.js", "t1", ""))
	assert.Equal(t, "removed 3 cached entries\n", out.String())

	out.Reset()
	require.NoError(t, runCacheList(ctx, &out, logger, cfg.Cache, caches, "spec.cy.js", true))
	var listed []cacheListing
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "t2", listed[0].TestIdentifier)
	assert.True(t, created.Equal(listed[0].CreatedAt))

	assert.Error(t, runCachePurge(ctx, &out, logger, cfg.Cache, caches, "", "", ""))
}

func TestCacheListCmd_ThroughRoot(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "thoughts.json")
	seedCache(t, cachePath, map[string]schemas.CacheEntry{
		strings.Repeat("f", 64): {Prompt: "click login", Action: `click("#login")`, SpecIdentifier: "a.cy.js", TestIdentifier: "t"},
	})
	path := createTempConfig(t, fmt.Sprintf("cache:\n  path: %s\nlogger:\n  level: error\n", cachePath))

	out, err := executeCommand(t, "cache", "list", "--json", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"prompt": "click login"`)

	_, err = executeCommand(t, "cache", "purge", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"spec" not set`)
}

func TestOpenDriver(t *testing.T) {
	logger := zaptest.NewLogger(t)

	d, closeFn, err := openDriver(context.Background(), DriverHTMLDoc, config.BrowserConfig{}, logger)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &htmldoc.Driver{}, d)

	_, _, err = openDriver(context.Background(), "firefox", config.BrowserConfig{}, logger)
	assert.ErrorContains(t, err, "unsupported driver")
}
