package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"log/slog"

	"github.com/dmitrymomot/tenantkit/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("creates JSON logger", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		require.NotNil(t, log)
		log.Info("hello")
		var entry map[string]any
		err := json.Unmarshal(buf.Bytes(), &entry)
		require.NoError(t, err)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "hello", entry["msg"])
	})

	t.Run("text formatter option", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.WithOutput(buf),
			logger.WithFormat(logger.FormatText),
		)
		log.Info("hello")
		out := buf.String()
		assert.Contains(t, out, "INFO")
		assert.Contains(t, out, "hello")
	})

	t.Run("json formatter option", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.WithOutput(buf),
			logger.WithFormat(logger.FormatText),
			logger.WithFormat(logger.FormatJSON),
		)
		log.Info("hello")
		var entry map[string]any
		err := json.Unmarshal(buf.Bytes(), &entry)
		require.NoError(t, err)
		assert.Equal(t, "hello", entry["msg"])
	})

	t.Run("includes default attributes", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.WithOutput(buf),
			logger.WithAttr(slog.String("svc", "test")),
		)
		log.Info("msg")
		var entry map[string]any
		err := json.Unmarshal(buf.Bytes(), &entry)
		require.NoError(t, err)
		assert.Equal(t, "test", entry["svc"])
	})

	t.Run("extracts from context", func(t *testing.T) {
		buf := &bytes.Buffer{}
		type key string
		ctxKey := key("id")
		log := logger.New(
			logger.WithOutput(buf),
			logger.WithContextExtractors(func(ctx context.Context) (slog.Attr, bool) {
				if v := ctx.Value(ctxKey); v != nil {
					return slog.String("id", v.(string)), true
				}
				return slog.Attr{}, false
			}),
		)
		ctx := context.WithValue(context.Background(), ctxKey, "42")
		log.InfoContext(ctx, "context msg")
		var entry map[string]any
		err := json.Unmarshal(buf.Bytes(), &entry)
		require.NoError(t, err)
		assert.Equal(t, "42", entry["id"])
	})
}

func TestSetAsDefault(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(logger.WithOutput(buf))
	logger.SetAsDefault(log)
	slog.Info("default")
	var entry map[string]any
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err)
	assert.Equal(t, "default", entry["msg"])
}

func TestWithFormatPanics(t *testing.T) {
	assert.Panics(t, func() {
		logger.New(logger.WithFormat(logger.Format("xml")))
	})
}

func TestWithConfigEnvironments(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		wantEnv  string
		wantText bool
		debug    bool
	}{
		{"development", logger.EnvDevelopment, logger.EnvDevelopment, true, true},
		{"unknown falls back to development", "qa", logger.EnvDevelopment, true, true},
		{"staging", "stage", logger.EnvStaging, false, false},
		{"production", logger.EnvProduction, logger.EnvProduction, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log := logger.New(
				logger.WithOutput(buf),
				logger.WithConfig(logger.Config{Service: "svc", Env: tt.env}),
			)

			log.Debug("debug")
			if !tt.debug {
				assert.Empty(t, buf.String())
			}
			buf.Reset()

			log.Info("msg")
			out := buf.String()
			if tt.wantText {
				assert.Contains(t, out, "service=svc")
				assert.Contains(t, out, "env="+tt.wantEnv)
				return
			}
			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.wantEnv, entry["env"])
		})
	}
}

func TestContextExtractorsSurviveDerivedLoggers(t *testing.T) {
	buf := &bytes.Buffer{}
	tenantAttr := func(ctx context.Context) (slog.Attr, bool) {
		id, ok := ctx.Value(tenantKey{}).(string)
		return logger.TenantID(id), ok
	}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithContextExtractors(nil, tenantAttr),
	)

	ctx := context.WithValue(context.Background(), tenantKey{}, "acme")
	log.With(logger.Component("tenancy")).WithGroup("op").InfoContext(ctx, "switched")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "tenancy", entry["component"])
	op, ok := entry["op"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "acme", op["tenant_id"])
}

type tenantKey struct{}

func TestWithConfig(t *testing.T) {
	t.Run("production with level override", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.WithOutput(buf),
			logger.WithConfig(logger.Config{Service: "svc", Env: "prod", Level: "warn"}),
		)
		log.Info("dropped")
		assert.Empty(t, buf.String())

		log.Warn("kept")
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "svc", entry["service"])
		assert.Equal(t, logger.EnvProduction, entry["env"])
	})

	t.Run("invalid level is ignored", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.WithOutput(buf),
			logger.WithConfig(logger.Config{Service: "svc", Env: "staging", Level: "loud"}),
		)
		log.Info("msg")
		assert.NotEmpty(t, buf.String())
	})
}
