// Package log provides the structured logger used across the mesh node: a global
// zerolog.Logger initialized once via Init, plus component/node-scoped child loggers.
package log
