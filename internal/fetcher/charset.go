package fetcher

import (
	"io"
	"mime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
)

type decodedBody struct {
	io.Reader
	io.Closer
}

// decodeBody transcodes body to UTF-8 when the Content-Type names another
// charset. Unknown charsets pass through unchanged.
func decodeBody(body io.ReadCloser, contentType string) io.ReadCloser {
	if contentType == "" {
		return body
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return body
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		zap.L().Debug("fetcher: unsupported charset, reading as-is", zap.String("charset", charset))
		return body
	}
	return decodedBody{Reader: enc.NewDecoder().Reader(body), Closer: body}
}
