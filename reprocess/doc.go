// Package reprocess re-runs the ingestion pipeline over many documents.
//
// It is the corrective action for documents that failed or were left in
// processing by an aborted run. Documents are selected by status, handled in
// batches, and each one is processed with a forced run so a stale claim is
// taken over. Progress is reported to a writer.
package reprocess
