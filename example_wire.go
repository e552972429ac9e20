package linesearch

// Wire Protocol
//
// One TLS 1.2+ connection per client. Each request and each response is a
// single frame:
//
//   ┌──────────────────────────────────────────────┐
//   │ [4 bytes] length (uint32 big-endian)         │
//   │ [1 byte]  codec  (0x01 JSON, 0x02 protobuf)  │
//   │ [length-1 bytes] payload                     │
//   └──────────────────────────────────────────────┘
//
// length counts the codec byte and the payload and must not exceed the
// server's max payload size. A larger frame is read off the stream and
// discarded, answered with a payload_too_large error frame, and the
// connection stays open. Requests on one connection are answered in order.
//
// JSON requests:
//
//   {"action":"create_log","query":"banana","algo":"trie"}
//   {"action":"read_logs"}
//
// JSON responses:
//
//   {"action":"create_log","status":"ok","message":"STRING EXISTS",
//    "log":{"id":"…","query":"banana","requesting_ip":"10.0.0.7",
//           "execution_time":0.0000012,"timestamp":"…","status":"found"}}
//   {"action":"read_logs","status":"ok","logs":[…]}
//   {"action":"frobnicate","status":"error","error":"invalid action","code":"invalid_argument"}
//
// Protobuf frames carry the same fields as a google.protobuf.Struct
// (proto_convert.go). Responses use the codec of the request; frames that
// cannot be decoded at all are answered in JSON.
//
// Error codes: not_found, invalid_state, invalid_argument,
// payload_too_large, tls, io, canceled, internal.
//
// Usage:
//
//   c, err := linesearch.Dial(ctx, "search.example.com:44445", linesearch.ClientConfig{
//       CertFile: "client.pem",
//       KeyFile:  "client.key",
//       Codec:    linesearch.CodecProto,
//   })
//   if err != nil {
//       log.Fatal(err)
//   }
//   defer c.Close()
//
//   resp, err := c.CreateLog("banana", "binary search")
//   fmt.Println(resp.Message) // STRING EXISTS
