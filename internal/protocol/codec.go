package protocol

import (
	"github.com/anacrolix/torrent/bencode"

	mateerrors "github.com/shizukutanaka/mate/internal/errors"
)

// MaxDatagramSize bounds a single encoded message
const MaxDatagramSize = 65507

type header struct {
	Type *Type `bencode:"type"`
}

// Encode serializes a message into a bencoded dictionary
func Encode(m *Message) ([]byte, error) {
	data, err := bencode.Marshal(m)
	if err != nil {
		return nil, mateerrors.Wrap(mateerrors.KindDecode, "encode", err)
	}
	if len(data) > MaxDatagramSize {
		return nil, mateerrors.Newf(mateerrors.KindTransport, "encode",
			"%s message is %d bytes, exceeds datagram limit", m.Type, len(data))
	}
	return data, nil
}

// Decode parses a bencoded dictionary. Malformed input and types outside the
// catalogue are decode errors; missing fields are left to Validate.
func Decode(data []byte) (*Message, error) {
	var h header
	if err := bencode.Unmarshal(data, &h); err != nil {
		return nil, mateerrors.Wrap(mateerrors.KindDecode, "decode", err)
	}
	if h.Type == nil {
		return nil, mateerrors.New(mateerrors.KindDecode, "decode", "missing type")
	}
	if !h.Type.Valid() {
		return nil, mateerrors.Newf(mateerrors.KindDecode, "decode", "unknown type %d", int(*h.Type))
	}

	var m Message
	if err := bencode.Unmarshal(data, &m); err != nil {
		return nil, mateerrors.Wrap(mateerrors.KindDecode, "decode", err)
	}
	return &m, nil
}
