// File: httpconn/parser.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Start-line and header-block parsing, grounded on original_source's
// HTTPConnection._on_headers.

package httpconn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/momentics/httpcore/api"
)

// parseHeadBlock splits raw (everything up to and including the CRLFCRLF
// terminating the header block) into a RequestHead; the empty lines that
// terminator produces are skipped. Leading blank lines before the request
// line are tolerated per RFC 7230 §3.5.
func parseHeadBlock(raw []byte) (api.RequestHead, error) {
	text := string(raw)
	lines := strings.Split(text, "\r\n")

	i := 0
	for i < len(lines) && lines[i] == "" {
		i++
	}
	if i >= len(lines) {
		return api.RequestHead{}, api.ErrMalformedRequest
	}

	method, target, version, err := parseStartLine(lines[i])
	if err != nil {
		return api.RequestHead{}, err
	}
	i++

	headers := api.NewHeader()
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			continue
		}
		name, value, err := parseHeaderLine(line)
		if err != nil {
			return api.RequestHead{}, err
		}
		headers.Add(name, value)
	}

	return api.RequestHead{Method: method, Target: target, Version: version, Headers: headers}, nil
}

func parseStartLine(line string) (method, target, version string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", "", api.ErrMalformedRequest
	}
	return parts[0], parts[1], parts[2], nil
}

func parseHeaderLine(line string) (name, value string, err error) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", api.ErrMalformedRequest
	}
	name = line[:idx]
	value = strings.TrimSpace(line[idx+1:])
	if name == "" {
		return "", "", api.ErrMalformedRequest
	}
	return name, value, nil
}

// parseHeaderBlockOnly parses a block of "Name: value" lines with no
// leading start-line, used for chunked-transfer trailers.
func parseHeaderBlockOnly(raw []byte) (api.Header, error) {
	headers := api.NewHeader()
	for _, line := range strings.Split(string(raw), "\r\n") {
		if line == "" {
			continue
		}
		name, value, err := parseHeaderLine(line)
		if err != nil {
			return nil, err
		}
		headers.Add(name, value)
	}
	return headers, nil
}

// parseContentLength returns -1 if the header is absent.
func parseContentLength(h api.Header) (int, error) {
	v := h.Get("Content-Length")
	if v == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return -1, fmt.Errorf("httpconn: invalid Content-Length: %q", v)
	}
	return n, nil
}

// parseChunkLine parses a "size[;ext]" chunk header line (without its
// trailing CRLF) as hex, per §4.3's AwaitingChunkLine.
func parseChunkLine(line string) (size int, ext string, err error) {
	if semi := strings.IndexByte(line, ';'); semi >= 0 {
		ext = line[semi+1:]
		line = line[:semi]
	}
	line = strings.TrimSpace(line)
	n, err := strconv.ParseInt(line, 16, 64)
	if err != nil || n < 0 {
		return 0, "", api.ErrMalformedRequest
	}
	return int(n), ext, nil
}
