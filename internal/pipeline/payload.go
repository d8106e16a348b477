package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	// EncodingJSON renders batches as a JSON array.
	EncodingJSON = "json"
	// EncodingCBOR renders batches as a CBOR array with the same field names.
	EncodingCBOR = "cbor"

	// CompressionNone sends the encoded body as is.
	CompressionNone = "none"
	// CompressionGzip wraps the body with gzip.
	CompressionGzip = "gzip"
	// CompressionZstd wraps the body with zstd.
	CompressionZstd = "zstd"
)

var (
	cborEncMode cbor.EncMode
	zstdEncoder *zstd.Encoder
)

func init() {
	var err error

	options := cbor.CoreDetEncOptions()
	options.Time = cbor.TimeRFC3339Nano
	cborEncMode, err = options.EncMode()
	if err != nil {
		panic("pipeline: CBOR encoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("pipeline: zstd encoder initialization failed: " + err.Error())
	}
}

// payloadCodec turns a batch into request body bytes.
type payloadCodec struct {
	encoding    string
	compression string
}

// newPayloadCodec validates encoding and compression names.
// Params: encoding json|cbor (empty means json); compression none|gzip|zstd (empty means none).
// Returns: codec or error on unknown names.
func newPayloadCodec(encoding, compression string) (payloadCodec, error) {
	codec := payloadCodec{
		encoding:    strings.ToLower(strings.TrimSpace(encoding)),
		compression: strings.ToLower(strings.TrimSpace(compression)),
	}
	if codec.encoding == "" {
		codec.encoding = EncodingJSON
	}
	if codec.compression == "" {
		codec.compression = CompressionNone
	}

	switch codec.encoding {
	case EncodingJSON, EncodingCBOR:
	default:
		return payloadCodec{}, fmt.Errorf("unsupported encoding %q", encoding)
	}
	switch codec.compression {
	case CompressionNone, CompressionGzip, CompressionZstd:
	default:
		return payloadCodec{}, fmt.Errorf("unsupported compression %q", compression)
	}
	return codec, nil
}

// encode marshals and optionally compresses batch.
// Params: batch points.
// Returns: request body or encode error.
func (c payloadCodec) encode(batch []MetricPoint) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	switch c.encoding {
	case EncodingCBOR:
		raw, err = cborEncMode.Marshal(batch)
	default:
		raw, err = json.Marshal(batch)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal %s batch: %w", c.encoding, err)
	}

	switch c.compression {
	case CompressionGzip:
		var buf bytes.Buffer
		writer := gzip.NewWriter(&buf)
		if _, err := writer.Write(raw); err != nil {
			return nil, fmt.Errorf("gzip batch: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("gzip batch: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	default:
		return raw, nil
	}
}

// contentType returns the media type for the encoding.
func (c payloadCodec) contentType() string {
	if c.encoding == EncodingCBOR {
		return "application/cbor"
	}
	return "application/json"
}

// contentEncoding returns the Content-Encoding header value, empty when uncompressed.
func (c payloadCodec) contentEncoding() string {
	if c.compression == CompressionNone {
		return ""
	}
	return c.compression
}
