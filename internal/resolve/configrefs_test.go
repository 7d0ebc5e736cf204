package resolve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeplane-dev/codeplane/internal/types"
)

func TestResolveConfigRefs_ResolvesDirectPathReference(t *testing.T) {
	repoRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repoRoot, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "pkg", "worker.py"), []byte("def run():\n    pass\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "config.yaml"), []byte("entrypoint: \"pkg/worker.py\"\n"), 0o644))

	s := newTestStore(t)
	workerID := insertFile(t, s, "pkg/worker.py", "python", "")
	insertDef(t, s, "def:worker.run", workerID, "function", "run")
	insertFile(t, s, "config.yaml", "json_yaml", "")

	contexts := []types.Context{
		{ID: 1, Language: "python", RootPath: ""},
		{ID: 2, Language: "json_yaml", RootPath: ""},
	}

	stats, err := ResolveConfigRefs(context.Background(), s, repoRoot, contexts)
	require.NoError(t, err)
	require.Equal(t, 1, stats.FilesScanned)
	require.GreaterOrEqual(t, stats.ImportsCreated, 1)

	var count int
	err = s.DB().QueryRow(
		`SELECT COUNT(*) FROM import_facts WHERE import_kind = 'config_file_ref' AND resolved_path = 'pkg/worker.py'`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestResolveConfigRefs_SkipsURLLikeStrings(t *testing.T) {
	repoRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "config.json"), []byte(`{"homepage": "https://example.com/docs"}`), 0o644))

	s := newTestStore(t)
	insertFile(t, s, "config.json", "json_yaml", "")

	contexts := []types.Context{{ID: 1, Language: "json_yaml", RootPath: ""}}

	stats, err := ResolveConfigRefs(context.Background(), s, repoRoot, contexts)
	require.NoError(t, err)
	require.Equal(t, 0, stats.ImportsCreated)
}

func TestResolveConfigRefs_IsIdempotent(t *testing.T) {
	repoRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repoRoot, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "pkg", "worker.py"), []byte("def run():\n    pass\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "config.yaml"), []byte("entrypoint: \"pkg/worker.py\"\n"), 0o644))

	s := newTestStore(t)
	workerID := insertFile(t, s, "pkg/worker.py", "python", "")
	insertDef(t, s, "def:worker.run", workerID, "function", "run")
	insertFile(t, s, "config.yaml", "json_yaml", "")

	contexts := []types.Context{
		{ID: 1, Language: "python", RootPath: ""},
		{ID: 2, Language: "json_yaml", RootPath: ""},
	}

	_, err := ResolveConfigRefs(context.Background(), s, repoRoot, contexts)
	require.NoError(t, err)
	statsAgain, err := ResolveConfigRefs(context.Background(), s, repoRoot, contexts)
	require.NoError(t, err)
	require.Equal(t, 1, statsAgain.ImportsCreated)

	var count int
	err = s.DB().QueryRow(`SELECT COUNT(*) FROM import_facts WHERE import_kind = 'config_file_ref'`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestIsConfigFile(t *testing.T) {
	cases := map[string]bool{
		"config.yaml":    true,
		"config.toml":    true,
		"settings.json":  true,
		"Makefile":       true,
		"Dockerfile":     true,
		"app/Dockerfile": true,
		"main.go":        false,
		"README.md":      false,
	}
	for path, want := range cases {
		require.Equal(t, want, isConfigFile(path), path)
	}
}
