// Package ingestion turns an uploaded document into searchable chunks.
//
// A Pipeline runs one document at a time through fixed stages:
//   - claim the document by moving it to processing
//   - download the raw bytes and reject oversized input
//   - extract sanitized text and record a new version
//   - split the text into overlapping chunks
//   - embed chunks in bounded concurrent batches and persist one row per chunk
//   - recount chunks and mark the document processed
//
// Any stage error marks the document failed with the error message. The
// document status is written only by the pipeline's transition function.
package ingestion
