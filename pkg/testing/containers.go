package testing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

// SkipIfShort skips container backed tests under -short.
func SkipIfShort(tb testing.TB) {
	tb.Helper()
	if testing.Short() {
		tb.Skip("skipping container test in short mode")
	}
}

func terminateOnCleanup(tb testing.TB, name string, c testcontainers.Container) {
	tb.Cleanup(func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			tb.Logf("failed to terminate %s container: %v", name, err)
		}
	})
}

// hostPort returns host:port for the mapped container port.
func hostPort(ctx context.Context, tb testing.TB, c testcontainers.Container, port string) string {
	tb.Helper()

	host, err := c.Host(ctx)
	if err != nil {
		tb.Fatalf("failed to get container host: %v", err)
	}

	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		tb.Fatalf("failed to get container port %s: %v", port, err)
	}

	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

// moduleDir resolves elem against the module root.
func moduleDir(elem ...string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(append([]string{filepath.Dir(file), "..", ".."}, elem...)...)
}

// migrationScript joins the *.up.sql files under the module relative dir, in
// name order, into one script in the test's temp dir and returns its path.
func migrationScript(tb testing.TB, dir ...string) string {
	tb.Helper()

	files, err := filepath.Glob(filepath.Join(moduleDir(dir...), "*.up.sql"))
	if err != nil {
		tb.Fatalf("failed to list migrations: %v", err)
	}
	if len(files) == 0 {
		tb.Fatalf("no migrations found in %s", filepath.Join(dir...))
	}
	sort.Strings(files)

	parts := make([]string, 0, len(files))
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			tb.Fatalf("failed to read migration %s: %v", f, err)
		}
		parts = append(parts, strings.TrimSuffix(strings.TrimSpace(string(content)), ";"))
	}

	script := filepath.Join(tb.TempDir(), "migrations.sql")
	if err := os.WriteFile(script, []byte(strings.Join(parts, ";\n\n")+";\n"), 0o644); err != nil {
		tb.Fatalf("failed to write migration script: %v", err)
	}
	return script
}
