package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// Record tags used across message payloads. Unlike the teacher's
// fixed-struct binary payloads, messages here are self-describing
// tag-length-value records: a field a decoder doesn't recognize is
// skipped rather than breaking the parse, so the wire format can gain
// optional fields across versions without a protocol version bump on
// every message type.
type Tag byte

const (
	TagDeviceID Tag = iota + 1
	TagDeviceName
	TagPublicKey
	TagProtocolVersion
	TagNonce
	TagSignature
	TagTransferID
	TagFileName
	TagFilePath
	TagFileSize
	TagFileHash
	TagFileCount
	TagChunkIndex
	TagChunkOffset
	TagChunkData
	TagChunkChecksum
	TagCompression
	TagParallelStreams
	TagResumeOffset
	TagReasonCode
	TagReasonMessage
	TagSessionKind
	TagRejectCode
	TagToPath
	TagSyncOpKind
	TagIndexData
)

// recordWriter builds a TLV-encoded payload.
type recordWriter struct {
	buf []byte
}

func newRecordWriter() *recordWriter { return &recordWriter{} }

func (w *recordWriter) put(tag Tag, value []byte) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(value)))
	w.buf = append(w.buf, byte(tag))
	w.buf = append(w.buf, lenBuf[:n]...)
	w.buf = append(w.buf, value...)
}

func (w *recordWriter) putString(tag Tag, s string) { w.put(tag, []byte(s)) }

func (w *recordWriter) putUint64(tag Tag, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.put(tag, b[:])
}

func (w *recordWriter) putUint32(tag Tag, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.put(tag, b[:])
}

func (w *recordWriter) putBool(tag Tag, v bool) {
	if v {
		w.put(tag, []byte{1})
	} else {
		w.put(tag, []byte{0})
	}
}

func (w *recordWriter) bytes() []byte { return w.buf }

// recordSet is a payload decoded into its tag -> value map. Records
// with a duplicate tag keep the last occurrence.
type recordSet map[Tag][]byte

func decodeRecords(payload []byte) (recordSet, error) {
	out := make(recordSet)
	i := 0
	for i < len(payload) {
		tag := Tag(payload[i])
		i++
		if i >= len(payload) {
			return nil, yerr.New(yerr.KindProtocolError, "truncated record: missing length")
		}
		length, n := binary.Uvarint(payload[i:])
		if n <= 0 {
			return nil, yerr.New(yerr.KindProtocolError, "truncated record: invalid varint length")
		}
		i += n
		if uint64(i)+length > uint64(len(payload)) {
			return nil, yerr.New(yerr.KindProtocolError, "truncated record: value runs past payload end")
		}
		out[tag] = payload[i : i+int(length)]
		i += int(length)
	}
	return out, nil
}

func (rs recordSet) requireString(tag Tag) (string, error) {
	v, ok := rs[tag]
	if !ok {
		return "", missingTag(tag)
	}
	return string(v), nil
}

func (rs recordSet) optionalString(tag Tag, def string) string {
	v, ok := rs[tag]
	if !ok {
		return def
	}
	return string(v)
}

func (rs recordSet) requireBytes(tag Tag) ([]byte, error) {
	v, ok := rs[tag]
	if !ok {
		return nil, missingTag(tag)
	}
	return v, nil
}

func (rs recordSet) requireUint64(tag Tag) (uint64, error) {
	v, ok := rs[tag]
	if !ok {
		return 0, missingTag(tag)
	}
	if len(v) != 8 {
		return 0, yerr.WithFields(yerr.KindProtocolError, "malformed uint64 record field",
			map[string]any{"tag": tag})
	}
	return binary.BigEndian.Uint64(v), nil
}

func (rs recordSet) requireUint32(tag Tag) (uint32, error) {
	v, ok := rs[tag]
	if !ok {
		return 0, missingTag(tag)
	}
	if len(v) != 4 {
		return 0, yerr.WithFields(yerr.KindProtocolError, "malformed uint32 record field",
			map[string]any{"tag": tag})
	}
	return binary.BigEndian.Uint32(v), nil
}

func (rs recordSet) optionalBool(tag Tag, def bool) bool {
	v, ok := rs[tag]
	if !ok || len(v) != 1 {
		return def
	}
	return v[0] != 0
}

func missingTag(tag Tag) error {
	return yerr.WithFields(yerr.KindProtocolError, fmt.Sprintf("missing required field tag=%d", tag),
		map[string]any{"tag": tag})
}

var errTruncated = yerr.New(yerr.KindProtocolError, "truncated record: value runs past payload end")

// readUvarintAt reads a uvarint starting at payload[i], returning its
// value and the number of bytes consumed.
func readUvarintAt(payload []byte, i int) (uint64, int, error) {
	v, n := binary.Uvarint(payload[i:])
	if n <= 0 {
		return 0, 0, yerr.New(yerr.KindProtocolError, "truncated record: invalid varint length")
	}
	return v, n, nil
}

func beUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func beUint32(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}
