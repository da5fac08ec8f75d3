package coordination

import (
	"encoding/binary"
	"fmt"
)

// commandType enumerates the mutating operations the Raft-backed
// coordination store's state machine can apply. The wire encoding below
// mirrors the teacher's lib/store/dstore/internal.Command: a fixed header
// followed by variable-length key/member/value sections.
type commandType uint8

const (
	cmdSet commandType = iota
	cmdSetNX
	cmdDelete
	cmdExpire
	cmdSAdd
	cmdSRem
)

func (t commandType) String() string {
	switch t {
	case cmdSet:
		return "Set"
	case cmdSetNX:
		return "SetNX"
	case cmdDelete:
		return "Delete"
	case cmdExpire:
		return "Expire"
	case cmdSAdd:
		return "SAdd"
	case cmdSRem:
		return "SRem"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// command is a single write proposed to the Raft log. ExpireAtUnixNano is
// computed by the proposer (now + ttl) before the command is replicated, so
// every replica applies the identical expiry timestamp deterministically
// rather than each deriving "now" independently at apply time.
type command struct {
	Type             commandType
	Key              string
	Member           string
	Value            []byte
	ExpireAtUnixNano int64
}

// Serialize encodes a command as:
//
//	1 byte  type
//	8 bytes ExpireAtUnixNano (big endian, signed as unsigned bits)
//	4 bytes key length, N bytes key
//	4 bytes member length, N bytes member
//	4 bytes value length, N bytes value
func (c *command) Serialize() []byte {
	keyBytes := []byte(c.Key)
	memberBytes := []byte(c.Member)

	size := 1 + 8 + 4 + len(keyBytes) + 4 + len(memberBytes) + 4 + len(c.Value)
	buf := make([]byte, size)

	buf[0] = byte(c.Type)
	binary.BigEndian.PutUint64(buf[1:9], uint64(c.ExpireAtUnixNano))

	off := 9
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(keyBytes)))
	off += 4
	copy(buf[off:off+len(keyBytes)], keyBytes)
	off += len(keyBytes)

	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(memberBytes)))
	off += 4
	copy(buf[off:off+len(memberBytes)], memberBytes)
	off += len(memberBytes)

	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(c.Value)))
	off += 4
	copy(buf[off:off+len(c.Value)], c.Value)

	return buf
}

// Deserialize decodes a command previously produced by Serialize.
func (c *command) Deserialize(data []byte) error {
	if len(data) < 9+4 {
		return fmt.Errorf("coordination: command too short")
	}
	c.Type = commandType(data[0])
	c.ExpireAtUnixNano = int64(binary.BigEndian.Uint64(data[1:9]))

	off := 9
	keyLen := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data) < off+keyLen+4 {
		return fmt.Errorf("coordination: command truncated (key)")
	}
	c.Key = string(data[off : off+keyLen])
	off += keyLen

	memberLen := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data) < off+memberLen+4 {
		return fmt.Errorf("coordination: command truncated (member)")
	}
	c.Member = string(data[off : off+memberLen])
	off += memberLen

	valueLen := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data) < off+valueLen {
		return fmt.Errorf("coordination: command truncated (value)")
	}
	c.Value = append([]byte(nil), data[off:off+valueLen]...)

	return nil
}

// queryType enumerates read-only lookups served via Dragonboat's SyncRead.
type queryType uint8

const (
	queryGet queryType = iota
	querySMembers
)

// query is a read-only request sent via SyncRead/StaleRead.
type query struct {
	Type queryType
	Key  string
}

// getResult is the Lookup() response for queryGet.
type getResult struct {
	Value []byte
	Ok    bool
}
