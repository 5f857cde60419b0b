package catalog

import (
	"encoding/binary"

	"github.com/listdb/listdb/common/kvstore"
	"github.com/listdb/listdb/proto"
)

const (
	CF     = kvstore.CF("catalog")
	dataCF = kvstore.CF("data")
)

var (
	spaceKeyPrefix = []byte("s")
	keyInfix       = []byte("/")
)

// entity keys are sid + entity id, both big endian. The partition sits in
// the high bits of the id, so one partition of a space is one contiguous
// key range.

func encodeSpaceKey(sid proto.Sid) []byte {
	ret := make([]byte, len(spaceKeyPrefix)+len(keyInfix)+8)
	copy(ret, spaceKeyPrefix)
	copy(ret[len(spaceKeyPrefix):], keyInfix)
	binary.BigEndian.PutUint64(ret[len(ret)-8:], uint64(sid))
	return ret
}

func encodeSpaceKeyPrefix() []byte {
	ret := make([]byte, len(spaceKeyPrefix)+len(keyInfix))
	copy(ret, spaceKeyPrefix)
	copy(ret[len(spaceKeyPrefix):], keyInfix)
	return ret
}

func encodeEntityKey(sid proto.Sid, id proto.EntityID) []byte {
	ret := make([]byte, 16)
	binary.BigEndian.PutUint64(ret, uint64(sid))
	binary.BigEndian.PutUint64(ret[8:], uint64(id))
	return ret
}

func encodeEntityKeyPrefix(sid proto.Sid) []byte {
	ret := make([]byte, 8)
	binary.BigEndian.PutUint64(ret, uint64(sid))
	return ret
}

func encodePartitionKeyPrefix(sid proto.Sid, pid proto.PartitionID) []byte {
	ret := make([]byte, 8+2)
	binary.BigEndian.PutUint64(ret, uint64(sid))
	binary.BigEndian.PutUint16(ret[8:], uint16(pid))
	return ret
}
