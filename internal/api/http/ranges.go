package http

import (
	"strconv"
	"strings"

	"github.com/qiuzhanghua/fs-proxy/internal/shared/fserr"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/types"
)

// parseRange parses a single "bytes=" range header. It returns nil for an
// absent header, a unit other than bytes, or a multi-range request, all of
// which are served as the full file.
func parseRange(header, path string) (*types.ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, nil
	}
	spec = strings.TrimSpace(spec)
	if strings.Contains(spec, ",") {
		return nil, nil
	}

	invalid := func() error {
		return fserr.Newf(fserr.KindInvalidRange, "read", path, "malformed range %q", header)
	}

	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, invalid()
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// suffix: last N bytes
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n < 0 {
			return nil, invalid()
		}
		return &types.ByteRange{Start: -1, End: n}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return nil, invalid()
	}
	if last == "" {
		return &types.ByteRange{Start: start, End: -1}, nil
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < start {
		return nil, invalid()
	}
	return &types.ByteRange{Start: start, End: end}, nil
}

// contentRange formats a Content-Range value for a satisfied range
func contentRange(offset, length, size int64) string {
	return "bytes " + strconv.FormatInt(offset, 10) + "-" + strconv.FormatInt(offset+length-1, 10) + "/" + strconv.FormatInt(size, 10)
}
