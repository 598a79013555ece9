// Package logx configures taskschedd's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Outputs and level swappable at runtime (config hot reload)
package logx
