package proto

const (
	// PartitionSeqBits is the number of low bits of an entity id that hold
	// the per-space allocation sequence; the partition id lives above them.
	PartitionSeqBits = 48

	SeqMask = uint64(1)<<PartitionSeqBits - 1

	MaxListNum = 1000

	ReqIdKey = "req-id"
)

type (
	Sid         = uint64
	EntityID    = uint64
	PartitionID = uint32
	TxID        = uint64
)

// BuildEntityID composes an entity id from the owning partition and the
// per-space allocation sequence.
func BuildEntityID(pid PartitionID, seq uint64) EntityID {
	return uint64(pid)<<PartitionSeqBits | (seq & SeqMask)
}

// PartitionOfEntity extracts the owning partition from an entity id.
func PartitionOfEntity(id EntityID) PartitionID {
	return PartitionID(id >> PartitionSeqBits)
}

// SeqOfEntity extracts the allocation sequence from an entity id.
func SeqOfEntity(id EntityID) uint64 {
	return id & SeqMask
}
