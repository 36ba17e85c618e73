// Package trace records world activity into SQLite.
//
// A Recorder subscribes to a world's event and settle signals. Events are
// buffered per flush and written, together with the flush's settle row, in
// one transaction when the flush settles. Payloads and results are stored
// as canonical JSON so traces from identical runs compare byte for byte.
//
// The database uses WAL mode with a single connection. Readers may open the
// same file while a run is being recorded.
package trace
