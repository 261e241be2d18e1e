// Package message holds the protobuf-wire envelope that wraps cached navmesh
// payloads. Fields are encoded by hand with protowire so the envelope needs no
// generated code.
package message

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldKey       protowire.Number = 1
	fieldVersion   protowire.Number = 2
	fieldCreatedAt protowire.Number = 3
	fieldPayload   protowire.Number = 4
)

// Envelope is one cache entry on disk.
type Envelope struct {
	Key       string
	Version   int64
	CreatedAt int64 // unix nanoseconds
	Payload   []byte
}

func Encode(msg *Envelope) (data []byte) {
	data = protowire.AppendTag(data, fieldKey, protowire.BytesType)
	data = protowire.AppendString(data, msg.Key)
	data = protowire.AppendTag(data, fieldVersion, protowire.VarintType)
	data = protowire.AppendVarint(data, protowire.EncodeZigZag(msg.Version))
	data = protowire.AppendTag(data, fieldCreatedAt, protowire.VarintType)
	data = protowire.AppendVarint(data, protowire.EncodeZigZag(msg.CreatedAt))
	data = protowire.AppendTag(data, fieldPayload, protowire.BytesType)
	data = protowire.AppendBytes(data, msg.Payload)
	return data
}

// Decode parses an envelope. Unknown fields are skipped.
func Decode(data []byte) (*Envelope, error) {
	msg := &Envelope{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == fieldKey && typ == protowire.BytesType:
			var v string
			v, n = protowire.ConsumeString(data)
			msg.Key = v
		case num == fieldVersion && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			msg.Version = protowire.DecodeZigZag(v)
		case num == fieldCreatedAt && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			msg.CreatedAt = protowire.DecodeZigZag(v)
		case num == fieldPayload && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(data)
			msg.Payload = append([]byte(nil), v...)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return nil, fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]
	}
	return msg, nil
}
