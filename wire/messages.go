package wire

import (
	"github.com/google/uuid"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// ProtocolVersion is the yoopd wire protocol version negotiated during
// Hello/HelloAck.
const ProtocolVersion = 1

// Hello is the first message sent by the connecting side: who we are,
// not yet proven (AuthProof follows).
type Hello struct {
	DeviceID        uuid.UUID
	DeviceName      string
	PublicKey       []byte
	ProtocolVersion uint32
	SessionKind     string // "share", "receive", "sync", or "clipboard"
	Nonce           []byte // initiator's challenge, signed by the acceptor's AuthProof
}

func (h Hello) Encode() []byte {
	w := newRecordWriter()
	w.put(TagDeviceID, h.DeviceID[:])
	w.putString(TagDeviceName, h.DeviceName)
	w.put(TagPublicKey, h.PublicKey)
	w.putUint32(TagProtocolVersion, h.ProtocolVersion)
	w.putString(TagSessionKind, h.SessionKind)
	w.put(TagNonce, h.Nonce)
	return w.bytes()
}

func DecodeHello(payload []byte) (Hello, error) {
	rs, err := decodeRecords(payload)
	if err != nil {
		return Hello{}, err
	}
	idBytes, err := rs.requireBytes(TagDeviceID)
	if err != nil {
		return Hello{}, err
	}
	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return Hello{}, err
	}
	pub, err := rs.requireBytes(TagPublicKey)
	if err != nil {
		return Hello{}, err
	}
	ver, err := rs.requireUint32(TagProtocolVersion)
	if err != nil {
		return Hello{}, err
	}
	nonce, err := rs.requireBytes(TagNonce)
	if err != nil {
		return Hello{}, err
	}
	return Hello{
		DeviceID:        id,
		DeviceName:      rs.optionalString(TagDeviceName, ""),
		PublicKey:       pub,
		ProtocolVersion: ver,
		SessionKind:     rs.optionalString(TagSessionKind, ""),
		Nonce:           nonce,
	}, nil
}

// HelloAck replies with a nonce the connecting side must sign and
// return as AuthProof, proving possession of the secret key behind the
// public key just advertised.
type HelloAck struct {
	DeviceID   uuid.UUID
	DeviceName string
	PublicKey  []byte
	Nonce      []byte
}

func (a HelloAck) Encode() []byte {
	w := newRecordWriter()
	w.put(TagDeviceID, a.DeviceID[:])
	w.putString(TagDeviceName, a.DeviceName)
	w.put(TagPublicKey, a.PublicKey)
	w.put(TagNonce, a.Nonce)
	return w.bytes()
}

func DecodeHelloAck(payload []byte) (HelloAck, error) {
	rs, err := decodeRecords(payload)
	if err != nil {
		return HelloAck{}, err
	}
	idBytes, err := rs.requireBytes(TagDeviceID)
	if err != nil {
		return HelloAck{}, err
	}
	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return HelloAck{}, err
	}
	pub, err := rs.requireBytes(TagPublicKey)
	if err != nil {
		return HelloAck{}, err
	}
	nonce, err := rs.requireBytes(TagNonce)
	if err != nil {
		return HelloAck{}, err
	}
	return HelloAck{DeviceID: id, DeviceName: rs.optionalString(TagDeviceName, ""), PublicKey: pub, Nonce: nonce}, nil
}

// AuthProof is an Ed25519 signature over the peer's nonce: the initiator
// signs the HelloAck nonce, the acceptor signs the Hello nonce.
type AuthProof struct {
	Signature []byte
}

func (p AuthProof) Encode() []byte {
	w := newRecordWriter()
	w.put(TagSignature, p.Signature)
	return w.bytes()
}

func DecodeAuthProof(payload []byte) (AuthProof, error) {
	rs, err := decodeRecords(payload)
	if err != nil {
		return AuthProof{}, err
	}
	sig, err := rs.requireBytes(TagSignature)
	if err != nil {
		return AuthProof{}, err
	}
	return AuthProof{Signature: sig}, nil
}

// Manifest announces what is about to be sent: one or more files.
type ManifestEntry struct {
	Path string
	Size uint64
	Hash string // hex SHA-256, empty until the sender has hashed the file
}

type Manifest struct {
	TransferID      uuid.UUID
	Entries         []ManifestEntry
	Compression     string // "auto", "always", "never"
	ParallelStreams uint32
}

func (m Manifest) Encode() []byte {
	w := newRecordWriter()
	w.put(TagTransferID, m.TransferID[:])
	w.putUint32(TagFileCount, uint32(len(m.Entries)))
	for _, e := range m.Entries {
		w.putString(TagFilePath, e.Path)
		w.putUint64(TagFileSize, e.Size)
		w.putString(TagFileHash, e.Hash)
	}
	w.putString(TagCompression, m.Compression)
	w.putUint32(TagParallelStreams, m.ParallelStreams)
	return w.bytes()
}

// DecodeManifest decodes a manifest payload. Because entries repeat the
// same three tags, it re-parses sequentially rather than through the
// last-tag-wins recordSet map.
func DecodeManifest(payload []byte) (Manifest, error) {
	i := 0
	next := func() (Tag, []byte, bool, error) {
		if i >= len(payload) {
			return 0, nil, false, nil
		}
		tag := Tag(payload[i])
		i++
		length, n, err := readUvarintAt(payload, i)
		if err != nil {
			return 0, nil, false, err
		}
		i += n
		if uint64(i)+length > uint64(len(payload)) {
			return 0, nil, false, errTruncated
		}
		v := payload[i : i+int(length)]
		i += int(length)
		return tag, v, true, nil
	}

	var m Manifest
	var cur ManifestEntry
	haveCur := false
	flush := func() {
		if haveCur {
			m.Entries = append(m.Entries, cur)
			cur = ManifestEntry{}
			haveCur = false
		}
	}
	for {
		tag, v, ok, err := next()
		if err != nil {
			return Manifest{}, err
		}
		if !ok {
			break
		}
		switch tag {
		case TagTransferID:
			id, err := uuid.FromBytes(v)
			if err != nil {
				return Manifest{}, err
			}
			m.TransferID = id
		case TagFileCount:
			// informational only; len(m.Entries) is authoritative
		case TagFilePath:
			flush()
			cur.Path = string(v)
			haveCur = true
		case TagFileSize:
			cur.Size = beUint64(v)
		case TagFileHash:
			cur.Hash = string(v)
		case TagCompression:
			m.Compression = string(v)
		case TagParallelStreams:
			m.ParallelStreams = beUint32(v)
		}
	}
	flush()
	return m, nil
}

// ManifestAck accepts or rejects a whole manifest; there is no per-entry
// verdict.
type ManifestAck struct {
	Accepted bool
	Reason   string
}

func (a ManifestAck) Encode() []byte {
	w := newRecordWriter()
	w.putBool(TagReasonCode, a.Accepted)
	w.putString(TagReasonMessage, a.Reason)
	return w.bytes()
}

func DecodeManifestAck(payload []byte) (ManifestAck, error) {
	rs, err := decodeRecords(payload)
	if err != nil {
		return ManifestAck{}, err
	}
	return ManifestAck{
		Accepted: rs.optionalBool(TagReasonCode, false),
		Reason:   rs.optionalString(TagReasonMessage, ""),
	}, nil
}

// ResumeRequest asks the sender to resume transferFile from offset
// instead of restarting it.
type ResumeRequest struct {
	TransferID uuid.UUID
	FilePath   string
	Offset     uint64
}

func (r ResumeRequest) Encode() []byte {
	w := newRecordWriter()
	w.put(TagTransferID, r.TransferID[:])
	w.putString(TagFilePath, r.FilePath)
	w.putUint64(TagResumeOffset, r.Offset)
	return w.bytes()
}

func DecodeResumeRequest(payload []byte) (ResumeRequest, error) {
	rs, err := decodeRecords(payload)
	if err != nil {
		return ResumeRequest{}, err
	}
	idBytes, err := rs.requireBytes(TagTransferID)
	if err != nil {
		return ResumeRequest{}, err
	}
	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return ResumeRequest{}, err
	}
	path, err := rs.requireString(TagFilePath)
	if err != nil {
		return ResumeRequest{}, err
	}
	offset, err := rs.requireUint64(TagResumeOffset)
	if err != nil {
		return ResumeRequest{}, err
	}
	return ResumeRequest{TransferID: id, FilePath: path, Offset: offset}, nil
}

// ResumeAck confirms (or rejects) a ResumeRequest.
type ResumeAck struct {
	Accepted bool
	Offset   uint64 // authoritative resume point, may differ from the request
	Reason   string
}

func (a ResumeAck) Encode() []byte {
	w := newRecordWriter()
	w.putBool(TagReasonCode, a.Accepted)
	w.putUint64(TagResumeOffset, a.Offset)
	w.putString(TagReasonMessage, a.Reason)
	return w.bytes()
}

func DecodeResumeAck(payload []byte) (ResumeAck, error) {
	rs, err := decodeRecords(payload)
	if err != nil {
		return ResumeAck{}, err
	}
	offset, _ := rs.requireUint64(TagResumeOffset)
	return ResumeAck{
		Accepted: rs.optionalBool(TagReasonCode, false),
		Offset:   offset,
		Reason:   rs.optionalString(TagReasonMessage, ""),
	}, nil
}

// Chunk carries one piece of file content, possibly zstd-compressed
// (see fileio.EncodeEnvelope for the compression envelope format within Data).
type Chunk struct {
	TransferID uuid.UUID
	FilePath   string
	Index      uint32
	Offset     uint64
	Checksum   string // hex xxHash64 of the plaintext
	Data       []byte
}

func (c Chunk) Encode() []byte {
	w := newRecordWriter()
	w.put(TagTransferID, c.TransferID[:])
	w.putString(TagFilePath, c.FilePath)
	w.putUint32(TagChunkIndex, c.Index)
	w.putUint64(TagChunkOffset, c.Offset)
	w.putString(TagChunkChecksum, c.Checksum)
	w.put(TagChunkData, c.Data)
	return w.bytes()
}

func DecodeChunk(payload []byte) (Chunk, error) {
	rs, err := decodeRecords(payload)
	if err != nil {
		return Chunk{}, err
	}
	idBytes, err := rs.requireBytes(TagTransferID)
	if err != nil {
		return Chunk{}, err
	}
	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return Chunk{}, err
	}
	path, err := rs.requireString(TagFilePath)
	if err != nil {
		return Chunk{}, err
	}
	idx, err := rs.requireUint32(TagChunkIndex)
	if err != nil {
		return Chunk{}, err
	}
	offset, err := rs.requireUint64(TagChunkOffset)
	if err != nil {
		return Chunk{}, err
	}
	data, err := rs.requireBytes(TagChunkData)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{
		TransferID: id,
		FilePath:   path,
		Index:      idx,
		Offset:     offset,
		Checksum:   rs.optionalString(TagChunkChecksum, ""),
		Data:       data,
	}, nil
}

// ChunkAck acknowledges (or rejects, on checksum mismatch) one Chunk.
type ChunkAck struct {
	Index    uint32
	Accepted bool
}

func (a ChunkAck) Encode() []byte {
	w := newRecordWriter()
	w.putUint32(TagChunkIndex, a.Index)
	w.putBool(TagReasonCode, a.Accepted)
	return w.bytes()
}

func DecodeChunkAck(payload []byte) (ChunkAck, error) {
	rs, err := decodeRecords(payload)
	if err != nil {
		return ChunkAck{}, err
	}
	idx, err := rs.requireUint32(TagChunkIndex)
	if err != nil {
		return ChunkAck{}, err
	}
	return ChunkAck{Index: idx, Accepted: rs.optionalBool(TagReasonCode, false)}, nil
}

// Cancel aborts the in-flight transfer named by TransferID.
type Cancel struct {
	TransferID uuid.UUID
	Reason     string
}

func (c Cancel) Encode() []byte {
	w := newRecordWriter()
	w.put(TagTransferID, c.TransferID[:])
	w.putString(TagReasonMessage, c.Reason)
	return w.bytes()
}

func DecodeCancel(payload []byte) (Cancel, error) {
	rs, err := decodeRecords(payload)
	if err != nil {
		return Cancel{}, err
	}
	idBytes, err := rs.requireBytes(TagTransferID)
	if err != nil {
		return Cancel{}, err
	}
	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return Cancel{}, err
	}
	return Cancel{TransferID: id, Reason: rs.optionalString(TagReasonMessage, "")}, nil
}

// Reject is a structured protocol-level refusal (untrusted device,
// unsupported version, malformed message, ...).
type Reject struct {
	Code    string
	Message string
}

func (r Reject) Encode() []byte {
	w := newRecordWriter()
	w.putString(TagRejectCode, r.Code)
	w.putString(TagReasonMessage, r.Message)
	return w.bytes()
}

func DecodeReject(payload []byte) (Reject, error) {
	rs, err := decodeRecords(payload)
	if err != nil {
		return Reject{}, err
	}
	return Reject{Code: rs.optionalString(TagRejectCode, ""), Message: rs.optionalString(TagReasonMessage, "")}, nil
}

// KeepAlive and Bye carry no payload.
type KeepAlive struct{}

func (KeepAlive) Encode() []byte { return nil }

type Bye struct{}

func (Bye) Encode() []byte { return nil }

// SyncOpKind identifies a SyncControl message's operation. Creates and
// modifies carry a file and go through the ordinary Manifest/Chunk
// exchange instead; SyncControl only covers the two operations that
// don't move file content.
type SyncOpKind byte

const (
	SyncOpDelete SyncOpKind = iota + 1
	SyncOpRename
)

// SyncControl carries a delete or rename sync-engine operation that has
// no associated file content to stream (spec §4.9 "Applying the plan").
type SyncControl struct {
	Kind   SyncOpKind
	Path   string
	ToPath string // only set for SyncOpRename
}

func (s SyncControl) Encode() []byte {
	w := newRecordWriter()
	w.put(TagSyncOpKind, []byte{byte(s.Kind)})
	w.putString(TagFilePath, s.Path)
	if s.ToPath != "" {
		w.putString(TagToPath, s.ToPath)
	}
	return w.bytes()
}

// IndexExchange carries one side's sync-root index (JSON-encoded by the
// sync engine) at connect time, as the spec's "on connect, both sides
// exchange their SyncIndex" describes. The payload is opaque to wire;
// only the sync engine knows how to decode it.
type IndexExchange struct {
	IndexJSON []byte
}

func (ix IndexExchange) Encode() []byte {
	w := newRecordWriter()
	w.put(TagIndexData, ix.IndexJSON)
	return w.bytes()
}

func DecodeIndexExchange(payload []byte) (IndexExchange, error) {
	rs, err := decodeRecords(payload)
	if err != nil {
		return IndexExchange{}, err
	}
	data, err := rs.requireBytes(TagIndexData)
	if err != nil {
		return IndexExchange{}, err
	}
	return IndexExchange{IndexJSON: data}, nil
}

func DecodeSyncControl(payload []byte) (SyncControl, error) {
	rs, err := decodeRecords(payload)
	if err != nil {
		return SyncControl{}, err
	}
	kindByte, err := rs.requireBytes(TagSyncOpKind)
	if err != nil {
		return SyncControl{}, err
	}
	if len(kindByte) != 1 {
		return SyncControl{}, yerr.Wrap(yerr.KindProtocolError, "malformed sync op kind", nil)
	}
	path, err := rs.requireString(TagFilePath)
	if err != nil {
		return SyncControl{}, err
	}
	return SyncControl{
		Kind:   SyncOpKind(kindByte[0]),
		Path:   path,
		ToPath: rs.optionalString(TagToPath, ""),
	}, nil
}
