// File: httpconn/responses.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Fixed byte-literal error responses, grounded on original_source's
// HTTPConnection constants for the canned 400/404/413/500 bodies.

package httpconn

var (
	response400 = []byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")
	response404 = []byte("HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")
	response500 = []byte("HTTP/1.1 500 Internal Server Error\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")

	// response413 keeps the connection alive: §4.3 has the caller read and
	// discard the oversize body, then return to AwaitingHead.
	response413 = []byte("HTTP/1.1 413 Payload Too Large\r\nContent-Length: 0\r\n\r\n")
)
