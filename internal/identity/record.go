// Package identity derives, persists and compares the device-bound identity
// record produced by a verification session.
package identity

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Record is the persisted outcome of a verification.
type Record struct {
	Identifier      string
	Fingerprint     string
	DeviceSignature string
	CreatedAt       time.Time
}

var (
	// ErrInvalidRecord is returned when stored data does not describe a record.
	ErrInvalidRecord = errors.New("identity: invalid record")

	// ErrNoRecord is returned by operations that need a stored record.
	ErrNoRecord = errors.New("identity: no stored record")
)

//go:embed record.schema.json
var recordSchemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func recordSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("record.schema.json", strings.NewReader(recordSchemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("record.schema.json")
	})
	return schema, schemaErr
}

// wireRecord is the persisted JSON layout. The legacy fields are only read.
type wireRecord struct {
	Identifier      string `json:"identifier,omitempty"`
	Fingerprint     string `json:"fingerprint"`
	DeviceSignature string `json:"deviceSignature"`
	CreatedAt       int64  `json:"createdAt"`

	RollNumber string `json:"rollNumber,omitempty"`
	Hash       string `json:"hash,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

// Encode serialises r as canonical JSON (RFC 8785) so equal records always
// produce equal bytes.
func Encode(r Record) (string, error) {
	if strings.TrimSpace(r.Identifier) == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrInvalidRecord)
	}
	if r.CreatedAt.IsZero() || r.CreatedAt.UnixMilli() < 0 {
		return "", fmt.Errorf("%w: creation time before the epoch", ErrInvalidRecord)
	}
	raw, err := json.Marshal(wireRecord{
		Identifier:      r.Identifier,
		Fingerprint:     r.Fingerprint,
		DeviceSignature: r.DeviceSignature,
		CreatedAt:       r.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize record: %w", err)
	}
	return string(canon), nil
}

// Decode parses a stored record. Records written in the legacy layout
// (rollNumber, hash, timestamp) are upgraded to the current one.
func Decode(data string) (Record, error) {
	sch, err := recordSchema()
	if err != nil {
		return Record{}, fmt.Errorf("compile record schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := sch.Validate(doc); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	var w wireRecord
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	r := Record{
		Identifier:      w.Identifier,
		Fingerprint:     w.Fingerprint,
		DeviceSignature: w.DeviceSignature,
		CreatedAt:       time.UnixMilli(w.CreatedAt),
	}
	if r.Identifier == "" {
		r.Identifier = w.RollNumber
		r.Fingerprint = w.Hash
		r.CreatedAt = time.UnixMilli(w.Timestamp)
	}
	return r, nil
}
