// Package logx is msgwatch's structured logging layer.
//
// logx.Logger is a small value type on top of zerolog:
//   - Console output stays readable (short timestamp + file:line caller)
//   - File output is JSON, one event per line
//   - An optional Telegram sink forwards warnings to an operator chat
//     (min-level + rate limited, never blocks the caller)
//
// The zero Logger is a valid no-op logger, so components can accept one
// without nil checks.
package logx
