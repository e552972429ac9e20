// Package linesearch implements a TLS line membership search service.
//
// A client asks whether a string occurs, as an exact line, in a corpus file
// held in memory by the server. The server answers with one of six lookup
// structures and records the outcome of every query in a log store.
//
// Components, leaf first:
//
//	Log      one query outcome (log.go)
//	Store    durable, thread-safe collection of logs (store.go, file_store.go, sqlite_store.go)
//	Engine   corpus load, prepare and search (engine.go, index.go, trie.go)
//	Secure   TLS upgrade of a raw connection and the frame size guard (security.go)
//	Service  query orchestration and the batch path (service.go, batch.go)
//	Server   one goroutine per TLS connection, framed requests (server.go, protocol.go)
//
// Request flow:
//
//	accept -> Secure -> readFrame -> GuardPayload -> decode
//	       -> Service.ExecuteQuery | Service.ReadAllLogs -> encode -> writeFrame -> loop
//
// Search modes:
//
//	naive      linear scan                         O(n)
//	set        hash set                            O(1) average
//	dict       map line -> true                    O(1) average
//	index_map  map line -> first position          O(1) average
//	binary     sorted copy                         O(log n)
//	trie       prefix tree, one node per character O(len(target))
//
// Every mode answers found iff the target equals a corpus line byte for
// byte. An empty corpus never matches; an empty target matches only an
// empty corpus line.
//
// Usage:
//
//	store, _ := linesearch.OpenFileStore("/var/lib/linesearch/query_logs.jsonl")
//	svc, _ := linesearch.NewService(store, nil, linesearch.ServiceConfig{
//	    CorpusPath:  "/srv/corpus/data250k.txt",
//	    DefaultMode: linesearch.ModeTrie,
//	})
//	srv, _ := linesearch.NewServer(svc, linesearch.ServerConfig{
//	    Addr:     ":44445",
//	    CertFile: "/etc/linesearch/server.pem",
//	    KeyFile:  "/etc/linesearch/server.key",
//	})
//	_ = srv.Start()
//	defer srv.Close()
package linesearch
