// Package rpc serves the charging control over a unix stream socket.
//
// Every message is a CBOR map with integer keys, carried in a frame with a
// 4-byte big-endian length prefix. A connection carries any number of
// request/response exchanges. Responses come back in request order.
//
//	Request  {1: id, 2: method, 3: enabled?}
//	Response {1: id, 2: status, 3: enabled?, 4: detail?}
package rpc
