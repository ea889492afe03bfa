package factory

import (
	"context"
	"testing"

	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/sink"
	"github.com/DjordjeVuckovic/index-relay/internal/sink/in_mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *SinkConfig)
	}{
		{
			name:    "missing type",
			env:     map[string]string{"SINK_TYPE": ""},
			wantErr: true,
		},
		{
			name:    "unknown type",
			env:     map[string]string{"SINK_TYPE": "solr"},
			wantErr: true,
		},
		{
			name: "elasticsearch",
			env: map[string]string{
				"SINK_TYPE":    "es",
				"ES_ADDRESSES": "http://a:9200, http://b:9200",
				"ES_USERNAME":  "elastic",
				"ES_PASSWORD":  "secret",
			},
			check: func(t *testing.T, cfg *SinkConfig) {
				require.NotNil(t, cfg.Es)
				assert.Equal(t, []string{"http://a:9200", "http://b:9200"}, cfg.Es.Addresses)
				assert.Equal(t, "elastic", cfg.Es.Username)
				assert.Nil(t, cfg.Pg)
			},
		},
		{
			name:    "elasticsearch without addresses",
			env:     map[string]string{"SINK_TYPE": "es", "ES_ADDRESSES": ""},
			wantErr: true,
		},
		{
			name:    "postgres without connection string",
			env:     map[string]string{"SINK_TYPE": "pg", "PG_SINK_CONNECTION_STRING": ""},
			wantErr: true,
		},
		{
			name: "postgres",
			env:  map[string]string{"SINK_TYPE": "pg", "PG_SINK_CONNECTION_STRING": "postgres://x"},
			check: func(t *testing.T, cfg *SinkConfig) {
				require.NotNil(t, cfg.Pg)
				assert.Equal(t, "postgres://x", cfg.Pg.ConnStr)
			},
		},
		{
			name: "in memory",
			env:  map[string]string{"SINK_TYPE": "in_mem"},
			check: func(t *testing.T, cfg *SinkConfig) {
				assert.Equal(t, sink.InMem, cfg.Type)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadEnv()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestNewBulkWriter(t *testing.T) {
	ctx := context.Background()
	target := domain.Target{Index: "jobs"}

	w, err := NewBulkWriter(ctx, &SinkConfig{Type: sink.InMem}, target)
	require.NoError(t, err)
	assert.True(t, w.Healthy(ctx))
	assert.IsType(t, &in_mem.Sink{}, w.BulkWriter)
	w.Close()

	_, err = NewBulkWriter(ctx, &SinkConfig{Type: "solr"}, target)
	assert.EqualError(t, err, "unsupported sink type: solr")

	_, err = NewBulkWriter(ctx, &SinkConfig{Type: sink.PG}, target)
	assert.Error(t, err)
}
