package pg

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DjordjeVuckovic/index-relay/internal/apperr"
	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/postgres"
	testpkg "github.com/DjordjeVuckovic/index-relay/pkg/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkSink_Integration(t *testing.T) {
	testpkg.SkipIfShort(t)

	ctx := context.Background()
	container := testpkg.NewPGContainer(ctx, t)

	pool, err := postgres.NewConnectionPool(ctx, postgres.PoolConfig{ConnStr: container.ConnString})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := NewBulkSink(pool)
	target := domain.Target{Index: "jobs", Type: "job"}

	require.NoError(t, s.BulkWrite(ctx, []domain.BulkOperation{
		domain.Upsert("a", json.RawMessage(`{"title":"first"}`)),
		domain.Upsert("b", json.RawMessage(`{"title":"second"}`)),
	}, target))
	require.NoError(t, s.BulkWrite(ctx, []domain.BulkOperation{
		domain.Upsert("a", json.RawMessage(`{"title":"replaced"}`)),
		domain.Delete("b"),
		domain.Delete("missing"),
	}, target))

	var body, docType string
	err = pool.GetConn().QueryRow(ctx,
		`SELECT body::text, doc_type FROM documents WHERE index_name = $1 AND id = $2`, "jobs", "a",
	).Scan(&body, &docType)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"replaced"}`, body)
	assert.Equal(t, "job", docType)

	var count int
	require.NoError(t, pool.GetConn().QueryRow(ctx, `SELECT count(*) FROM documents WHERE index_name = 'jobs'`).Scan(&count))
	assert.Equal(t, 1, count)

	err = s.BulkWrite(ctx, []domain.BulkOperation{{Kind: "rename", ID: "a"}}, target)
	var ioe *apperr.InvalidOperationError
	assert.ErrorAs(t, err, &ioe)
}
