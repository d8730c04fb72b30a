package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"sensorquery/internal/model"
)

// Codec serializes and deserializes partition payloads. The real on-disk
// partition format (bit-exact parquet, per the external storage contract)
// is out of scope here: Codec is the seam a production build would swap a
// parquet reader/writer into. gobCodec is the one shipped in this module,
// used by both backends for local/dev/test data — Batch's exported fields
// round-trip through encoding/gob with no custom marshaling.
type Codec interface {
	Encode(b *model.Batch) ([]byte, error)
	Decode(data []byte) (*model.Batch, error)
}

type gobCodec struct{}

// GobCodec returns the default Codec.
func GobCodec() Codec { return gobCodec{} }

func (gobCodec) Encode(b *model.Batch) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Decode(data []byte) (*model.Batch, error) {
	var b model.Batch
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return &b, nil
}
