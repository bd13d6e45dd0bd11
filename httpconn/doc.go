// Package httpconn implements the HTTP/1.1 wire parser, body framing and
// response emission state machine described by §4.3, driven entirely by
// api.ByteStream read/write completions so it never blocks the reactor.
//
// Grounded on original_source/pluggdapps/web/server.py's HTTPConnection
// class for the state-machine shape (_on_headers / _on_request_body /
// _read_chunk_line / _read_chunk_data / _read_chunk_trailers / write /
// finish / _finish_request) and on the teacher's plain byte-literal
// approach to error responses.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package httpconn
