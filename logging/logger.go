// Package logging provides the shared zap logger used by the SDK and CLI.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

var (
	L *zap.Logger        = zap.NewNop()
	S *zap.SugaredLogger = L.Sugar()
)

// Initialize builds a logger at verbosity v (0 info, 1 debug, negative
// quieter) and installs it as L and S. Terminals get a console encoder,
// everything else JSON.
func Initialize(v int) *zap.Logger {
	atom := zap.NewAtomicLevelAt(zapcore.Level(-v))

	var encoder zapcore.Encoder
	if term.IsTerminal(int(os.Stderr.Fd())) {
		encoder = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			MessageKey: "message",

			LevelKey:    "level",
			EncodeLevel: zapcore.CapitalColorLevelEncoder,

			TimeKey:    "time",
			EncodeTime: zapcore.ISO8601TimeEncoder,

			CallerKey:    "caller",
			EncodeCaller: zapcore.ShortCallerEncoder,
		})
	} else {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	logger := zap.New(zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atom), zap.AddCaller())
	L = logger
	S = logger.Sugar()
	return logger
}
