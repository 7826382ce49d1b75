package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLogger_FieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := &DefaultLogger{Logger: log.New(&buf, "", 0), fields: map[string]interface{}{}}

	logger.WithFields(map[string]interface{}{"job_id": 3, "client": "abc"}).
		WithErr(errors.New("boom")).
		Warnf("frame %d ignored", 7)

	assert.Equal(t, "[client=abc job_id=3 error=boom] [WARN] frame 7 ignored\n", buf.String())
}

func TestDefaultLogger_WithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := &DefaultLogger{Logger: log.New(&buf, "", 0), fields: map[string]interface{}{}}

	parent.WithFields(map[string]interface{}{"a": 1})
	parent.Info("plain")

	assert.Equal(t, "[INFO] plain\n", buf.String())
}

func TestDefaultLogger_MinRank(t *testing.T) {
	var buf bytes.Buffer
	logger := &DefaultLogger{Logger: log.New(&buf, "", 0), fields: map[string]interface{}{}, minRank: stdRank(logrus.WarnLevel)}

	logger.Info("dropped")
	logger.WithFields(map[string]interface{}{"a": 1}).Debug("dropped")
	logger.WithErr(errors.New("x")).Error("kept")

	assert.Equal(t, "[error=x] [ERROR] kept\n", buf.String())
}

func TestLogrusLogger(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	NewLogrusLogger(l).
		WithFields(map[string]interface{}{"webapi_client": "c1"}).
		WithErr(errors.New("closed")).
		Error("connection lost")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "connection lost", entry["msg"])
	assert.Equal(t, "c1", entry["webapi_client"])
	assert.Equal(t, "closed", entry[ErrorLogField])
	assert.Equal(t, "error", entry["level"])
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.WithFields(map[string]interface{}{"job_id": int64(4)}).Debugf("progress %d", 1)
	logger.WithErr(errors.New("bad")).Warn("warned")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "progress 1", entries[0].Message)
	assert.Equal(t, int64(4), entries[0].ContextMap()["job_id"])
	assert.Equal(t, "bad", entries[1].ContextMap()[ErrorLogField])
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	logger.WithFields(map[string]interface{}{"method": "get_data_stores"}).Infof("sent %s", "frame")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sent frame", entry["msg"])
	assert.Equal(t, "get_data_stores", entry["method"])
}

func TestNullLogger(t *testing.T) {
	logger := NewNullLogger()

	assert.Same(t, logger, logger.WithFields(map[string]interface{}{"a": 1}))
	assert.Same(t, logger, logger.WithErr(errors.New("x")))
	assert.Same(t, logger, logger.WithContext(context.Background()))
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		level   string
		format  string
		want    interface{}
		wantErr string
	}{
		{name: "default", want: &LogrusLogger{}},
		{name: "logrus json", backend: "logrus", level: "debug", format: "json", want: &LogrusLogger{}},
		{name: "zap", backend: "zap", level: "warn", want: &ZapLogger{}},
		{name: "slog json", backend: "slog", level: "error", format: "json", want: &SlogLogger{}},
		{name: "std", backend: "std", level: "warn", want: &DefaultLogger{}},
		{name: "std json", backend: "std", format: "json", wantErr: "invalid log format"},
		{name: "bad level", level: "loud", wantErr: "invalid log level"},
		{name: "bad format", format: "xml", wantErr: "invalid log format"},
		{name: "bad backend", backend: "glog", wantErr: "invalid log backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.backend, tt.level, tt.format)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Nil(t, logger)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, logger)
		})
	}
}

func TestValidateLoggerConfig(t *testing.T) {
	assert.NoError(t, ValidateLoggerConfig("", "", ""))
	assert.NoError(t, ValidateLoggerConfig("ZAP", "debug", "json"))
	assert.NoError(t, ValidateLoggerConfig("std", "info", "text"))
	assert.ErrorContains(t, ValidateLoggerConfig("zap", "loud", ""), "invalid log level")
	assert.ErrorContains(t, ValidateLoggerConfig("slog", "", "xml"), "invalid log format")
	assert.ErrorContains(t, ValidateLoggerConfig("glog", "", ""), "invalid log backend")
}

func TestStartSpan_NoopProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "webapi.Call")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.Equal(t, span, trace.SpanFromContext(ctx))
}
