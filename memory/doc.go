// Package memory provides tenant-scoped semantic memory for the chat engine.
//
// A Store owns two structures that only ever change together: an append-only
// log of core.Entry values and an approximate nearest-neighbor Index keyed by
// each entry's ordinal id (its position in the log). Every id present in the
// index maps to the entry at the same position in the log.
//
// Architecture:
//   - Index: vector insert/query capability (HNSW by default, chromem-go as
//     an exact alternative). The store never interprets index bytes.
//   - EntryCodec: structured persistence of the entry log (JSON by default,
//     SQLite as an alternative).
//   - Embedder: text-to-vector conversion, consumed by the engine.
//
// Persisted layout under the store path:
//   - index.bin: opaque blob written by the Index
//   - entries.json (or entries.db): ordered entries; position i is id i
//
// The index has no notion of tenants, so searches over-fetch by a factor of
// two and filter by tenant afterwards. A search may therefore return fewer
// than k results.
package memory
