package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the service logger. The debug flag enables opt-in payload
// logging; payloads must pass through Redact first.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

var redactedKeys = map[string]struct{}{
	"password":     {},
	"api_key":      {},
	"secret_key":   {},
	"access_token": {},
	"signature":    {},
	"merchantid":   {},
	"card":         {},
	"card_number":  {},
	"cvv":          {},
	"pan":          {},
}

// Redact returns a copy of a request/notification body with credentials and
// card-adjacent fields blanked, safe to hand to the debug log.
func Redact(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		if _, hidden := redactedKeys[k]; hidden {
			out[k] = "[redacted]"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}
