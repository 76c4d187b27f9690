// Package logx is frameq's zerolog wrapper: a value Logger with typed
// fields and short callers, and a Service whose level and sinks (console,
// JSON file) follow config hot-reload.
package logx
