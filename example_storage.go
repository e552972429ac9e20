package linesearch

// Storage Backend Comparison
//
// Three Store implementations share one contract: Append, ListAll,
// Update and Delete, with mutations serialized and ListAll lock-free.
//
// 1. JSON-lines file (file_store.go) - DEFAULT
//    - One LogRecord JSON object per line, append order
//    - sync.Mutex plus flock(2) around every mutation, fsync after it
//    - Update/Delete read everything and rewrite the file in place
//    - Readable by jq, grep and friends between server runs
//
// 2. SQLite (sqlite_store.go) - ALTERNATIVE
//    - modernc.org/sqlite (pure Go), WAL mode, synchronous=FULL
//    - Update/Delete run in a serializable transaction
//    - Best for: large logs that get edited
//
// 3. Memory (store.go)
//    - Slice behind an RWMutex, gone on exit
//    - Best for: tests and throwaway runs
//
// Usage Examples:
//
// === JSON-lines file ===
//
//   store, err := linesearch.OpenFileStore("/var/lib/linesearch/query_logs.jsonl")
//   if err != nil {
//       log.Fatal(err)
//   }
//   defer store.Close()
//
// === SQLite ===
//
//   store, err := linesearch.OpenSQLiteStore("/var/lib/linesearch/query_logs.db")
//
// === From configuration ===
//
//   store, err := linesearch.OpenStore(cfg.Store.Backend, cfg.Store.Path)
//
//
// File Format:
//
//   query_logs.jsonl:
//   {"id":"6f1c…","query":"banana","requesting_ip":"10.0.0.7","execution_time":0.0000012,"timestamp":"2026-10-19T08:00:00.123Z","status":"found"}
//   {"id":"9a0e…","query":"kiwi","requesting_ip":"10.0.0.9","execution_time":0.0000009,"timestamp":"2026-10-19T08:00:00.456Z","status":"not-found"}
//
//   query_logs table:
//   ┌──────────────────────────────────────────────┐
//   │ seq            INTEGER PK AUTOINCREMENT      │
//   │ id             TEXT                          │
//   │ query          TEXT                          │
//   │ requesting_ip  TEXT                          │
//   │ execution_time REAL    (NULL until complete) │
//   │ ts             TEXT    (RFC 3339, UTC)       │
//   │ status         TEXT                          │
//   └──────────────────────────────────────────────┘
//
//
// Consistency:
//
//   - Concurrent appends interleave only at record granularity.
//   - A file store rewrite truncates before writing, so ListAll racing an
//     Update or Delete can return a partial list. Callers that need a
//     stable view should read when no admin edit is running.
//   - Nothing is rename-protected: a crash mid-rewrite can lose records.
//
//
// Migration Between Backends:
//
//   src, _ := linesearch.OpenFileStore("query_logs.jsonl")
//   dst, _ := linesearch.OpenSQLiteStore("query_logs.db")
//   recs, _ := src.ListAll()
//   for _, r := range recs {
//       dst.Append(r)
//   }
