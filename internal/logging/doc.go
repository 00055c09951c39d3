// Package logging configures structured JSON logging for tailored.
//
// Logs go to a size-rotated file under ~/.tailored/logs and, outside of
// stdio server modes, to stderr as well. The stdio MCP server must never
// write to stdout or stderr, so it uses SetupFileOnly.
package logging
