package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/coop-member-import/internal/config"
)

// NewLogger builds the service logger. Every entry carries the service name,
// version and environment so import and notification logs can be traced back
// to a deployment.
func NewLogger(cfg config.LoggerConfig, app config.AppConfig) (*zap.Logger, error) {
	logger, err := loggerConfig(cfg, app).Build(zap.Fields(serviceFields(app)...))
	if err != nil {
		return nil, err
	}
	return logger, nil
}

func loggerConfig(cfg config.LoggerConfig, app config.AppConfig) zap.Config {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
	}
	production := app.Env == "production"

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: !production,
		Encoding:    encoding,
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			LevelKey:      "level",
			TimeKey:       "ts",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
				enc.AppendString(l.String())
			},
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	// Bulk imports log per row; sample repeats in production.
	if production {
		zapCfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	}
	return zapCfg
}

func serviceFields(app config.AppConfig) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if app.Name != "" {
		fields = append(fields, zap.String("service", app.Name))
	}
	if app.Version != "" {
		fields = append(fields, zap.String("version", app.Version))
	}
	if app.Env != "" {
		fields = append(fields, zap.String("env", app.Env))
	}
	return fields
}
