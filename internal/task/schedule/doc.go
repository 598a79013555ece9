// Package schedule parses human-written schedule strings into task recurrence.
//
// Supported forms:
//   - Cron expressions: 5-field (min hour dom mon dow) or 6-field with optional
//     seconds. Example: "55 * * * *" or "0 */5 * * * *".
//   - Cron descriptors: "@hourly", "@daily", "@every 55m".
//   - Interval durations: Go duration strings like "55m" or "2h30m".
//   - Interval HH:MM: "00:50" means every 50 minutes, "02:30" every 2 hours 30 minutes.
//
// Prefix the string with "cron:", "interval:" or "every:" to force interpretation.
package schedule
