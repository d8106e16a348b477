package pipeline

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func payloadBatch() []MetricPoint {
	return []MetricPoint{
		{
			Timestamp:  time.Date(2024, 3, 1, 12, 0, 0, 250, time.UTC),
			Host:       "synthetic-host-1",
			CPUPercent: 27.41,
			LatencyMs:  48.9,
			Tags:       map[string]string{"env": "dev", "region": "local"},
		},
		{
			Timestamp:  time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC),
			Host:       "synthetic-host-1",
			CPUPercent: 99.99,
			LatencyMs:  1,
		},
	}
}

func assertSameBatch(t *testing.T, got, want []MetricPoint) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("points=%d, want=%d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Fatalf("point %d timestamp=%v, want=%v", i, got[i].Timestamp, want[i].Timestamp)
		}
		if got[i].Host != want[i].Host || got[i].CPUPercent != want[i].CPUPercent || got[i].LatencyMs != want[i].LatencyMs {
			t.Fatalf("point %d=%+v, want=%+v", i, got[i], want[i])
		}
		if len(got[i].Tags) != len(want[i].Tags) {
			t.Fatalf("point %d tags=%v, want=%v", i, got[i].Tags, want[i].Tags)
		}
		for key, value := range want[i].Tags {
			if got[i].Tags[key] != value {
				t.Fatalf("point %d tag %s=%q, want=%q", i, key, got[i].Tags[key], value)
			}
		}
	}
}

// TestPayloadCodec_DefaultsToPlainJSON verifies empty names select json without compression.
// Params: testing.T for assertions.
// Returns: none.
func TestPayloadCodec_DefaultsToPlainJSON(t *testing.T) {
	codec, err := newPayloadCodec("", "")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if codec.contentType() != "application/json" || codec.contentEncoding() != "" {
		t.Fatalf("unexpected headers: %q %q", codec.contentType(), codec.contentEncoding())
	}

	body, err := codec.encode(payloadBatch())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got []MetricPoint
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	assertSameBatch(t, got, payloadBatch())
}

// TestPayloadCodec_CBORKeepsFields verifies the CBOR body decodes to the same points.
// Params: testing.T for assertions.
// Returns: none.
func TestPayloadCodec_CBORKeepsFields(t *testing.T) {
	codec, err := newPayloadCodec("CBOR", "none")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if codec.contentType() != "application/cbor" {
		t.Fatalf("unexpected content type: %q", codec.contentType())
	}

	body, err := codec.encode(payloadBatch())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got []MetricPoint
	if err := cbor.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode cbor: %v", err)
	}
	assertSameBatch(t, got, payloadBatch())

	var rows []map[string]any
	if err := cbor.Unmarshal(body, &rows); err != nil {
		t.Fatalf("decode cbor rows: %v", err)
	}
	if _, ok := rows[0]["TimeGenerated"]; !ok {
		t.Fatalf("cbor row missing TimeGenerated key: %v", rows[0])
	}
}

// TestPayloadCodec_CBORIsDeterministic verifies equal batches encode to equal bytes.
// Params: testing.T for assertions.
// Returns: none.
func TestPayloadCodec_CBORIsDeterministic(t *testing.T) {
	codec, err := newPayloadCodec(EncodingCBOR, CompressionNone)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	first, err := codec.encode(payloadBatch())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, err := codec.encode(payloadBatch())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("cbor encoding is not stable")
	}
}

// TestPayloadCodec_Gzip verifies gzip bodies inflate to the JSON array.
// Params: testing.T for assertions.
// Returns: none.
func TestPayloadCodec_Gzip(t *testing.T) {
	codec, err := newPayloadCodec(EncodingJSON, CompressionGzip)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if codec.contentEncoding() != "gzip" {
		t.Fatalf("unexpected content encoding: %q", codec.contentEncoding())
	}

	body, err := codec.encode(payloadBatch())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	reader, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	var got []MetricPoint
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	assertSameBatch(t, got, payloadBatch())
}

// TestPayloadCodec_Zstd verifies zstd bodies decompress to the CBOR array.
// Params: testing.T for assertions.
// Returns: none.
func TestPayloadCodec_Zstd(t *testing.T) {
	codec, err := newPayloadCodec(EncodingCBOR, CompressionZstd)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	body, err := codec.encode(payloadBatch())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer decoder.Close()
	raw, err := decoder.DecodeAll(body, nil)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	var got []MetricPoint
	if err := cbor.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode cbor: %v", err)
	}
	assertSameBatch(t, got, payloadBatch())
}

// TestNewPayloadCodec_RejectsUnknownNames verifies unsupported formats fail at construction.
// Params: testing.T for assertions.
// Returns: none.
func TestNewPayloadCodec_RejectsUnknownNames(t *testing.T) {
	if _, err := newPayloadCodec("xml", CompressionNone); err == nil {
		t.Fatalf("expected encoding error")
	}
	if _, err := newPayloadCodec(EncodingJSON, "brotli"); err == nil {
		t.Fatalf("expected compression error")
	}
}
