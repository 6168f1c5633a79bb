package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(Migrations(), ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", name)
		}
	}
	require.Equal(t, ups, downs)
}

func TestSeedCoversRequiredChart(t *testing.T) {
	seed, err := fs.ReadFile(Migrations(), "000004_seed_chart.up.sql")
	require.NoError(t, err)
	for _, code := range []string{"300", "401", "411", "421", "431", "512", "530", "601", "641", "658", "701", "758", "'VT'", "'AC'", "'CA'", "'BQ'", "'OD'", "'PA'"} {
		require.Contains(t, string(seed), code)
	}
}

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/erp?sslmode=disable", migrateURL("postgres://u:p@localhost:5432/erp?sslmode=disable"))
	require.Equal(t, "pgx5://localhost/erp", migrateURL("postgresql://localhost/erp"))
	require.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}
