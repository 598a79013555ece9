// Package storage records task run history.
//
// Pending tasks are never persisted; only finished runs (completed or
// failed) are appended so operators can inspect what the dispatcher did.
// Two drivers are available: "file" (JSON lines) and "sqlite".
package storage
