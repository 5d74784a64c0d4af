// Package logx configures docjobs' structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Loggers injectable (no package-global sink; tests use Nop())
//
// Throttled() derives a logger gated by a token bucket. The scheduler uses
// it for timing-budget warnings, which fire per job execution and would
// otherwise flood the sinks when a single job kind misbehaves.
package logx
