// Package logx configures netcheck's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller), on stderr so
//     rendered tables on stdout stay clean
//   - File output JSON-structured
package logx
