// Package iostream implements api.ByteStream: non-blocking, buffered
// bytewise transport for one accepted connection, in a plain (Plain) and
// a TLS (TLS) variant (§4.2).
//
// Grounded on original_source/pluggdapps/web/server.py's IOStream and
// SSLIOStream classes for the read-op/try_satisfy/handle_write algorithm,
// and on the teacher's internal/transport/transport_linux.go for raw
// non-blocking socket syscalls via golang.org/x/sys/unix.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package iostream
