package store

import (
	"bytes"
	"compress/flate"
	"encoding/json"
	"io"
)

// Payload compression is implemented directly on the standard library's
// compress/flate: flate is the idiomatic stdlib choice for small, short-lived
// byte blobs like a single event payload, and no dependency in this module
// offers a meaningfully better fit for that size class.

func compressPayload(payload map[string]any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressPayload(blob []byte) (map[string]any, error) {
	r := flate.NewReader(bytes.NewReader(blob))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func jsonSize(payload map[string]any) int {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	return len(raw)
}
