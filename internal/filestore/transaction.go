package filestore

// OpCode identifies a single mutation within a Transaction.
type OpCode int

const (
	OpTouch OpCode = iota
	OpWrite
	OpZero
	OpTruncate
	OpTrimCache
	OpRemove
	OpSetAttr
	OpSetAttrs
	OpRmAttr
	OpRmAttrs
	OpClone
	OpCloneRange
	OpMkColl
	OpRmColl
	OpCollAdd
	OpCollRemove
	OpCollSetAttr
	OpCollRmAttr
	OpStartSync
)

func (c OpCode) String() string {
	names := [...]string{
		"TOUCH", "WRITE", "ZERO", "TRUNCATE", "TRIMCACHE", "REMOVE",
		"SETATTR", "SETATTRS", "RMATTR", "RMATTRS", "CLONE", "CLONERANGE",
		"MKCOLL", "RMCOLL", "COLL_ADD", "COLL_REMOVE", "COLL_SETATTR",
		"COLL_RMATTR", "STARTSYNC",
	}
	if int(c) < 0 || int(c) >= len(names) {
		return "UNKNOWN"
	}
	return names[c]
}

// Attr is a single named attribute value carried by SETATTRS.
type Attr struct {
	Name  string
	Value []byte
}

// Op is one entry in a Transaction's op stream. Only the fields relevant
// to Code are populated; the Transaction builder methods below decide
// which fields a given opcode uses, and the apply backends read those
// fields directly.
type Op struct {
	Code OpCode

	Coll  CollID
	Coll2 CollID // second collection, for COLL_ADD's source (Coll is the destination)
	Obj   ObjectID
	Obj2  ObjectID // second object, for CLONE/CLONERANGE's destination

	Off    int64
	Length int64
	Data   [][]byte // WRITE payload buffers, in order

	AttrName string
	AttrVal  []byte
	Attrs    []Attr
}

// numBytes returns the payload size this op contributes to a
// Transaction's byte counter.
func (op Op) numBytes() int {
	switch op.Code {
	case OpWrite:
		n := 0
		for _, b := range op.Data {
			n += len(b)
		}
		return n
	case OpSetAttr:
		return len(op.AttrVal)
	case OpSetAttrs:
		n := 0
		for _, a := range op.Attrs {
			n += len(a.Value)
		}
		return n
	default:
		return 0
	}
}

// Transaction is an append-only, ordered batch of ops plus their
// payload buffers. It is built by the caller and consumed once by
// ApplyTransactions; iteration order is program order.
type Transaction struct {
	ops []Op

	numBytes int
}

// NewTransaction returns an empty Transaction ready for ops to be
// appended.
func NewTransaction() *Transaction {
	return &Transaction{}
}

// TransactionFromOps reconstructs a Transaction from a previously
// recorded op slice, as returned by Ops() and round-tripped through a
// journal. Byte counters are recomputed rather than carried across the
// wire.
func TransactionFromOps(ops []Op) *Transaction {
	t := &Transaction{}
	for _, op := range ops {
		t.append(op)
	}
	return t
}

func (t *Transaction) append(op Op) {
	t.ops = append(t.ops, op)
	t.numBytes += op.numBytes()
}

// Touch appends a TOUCH op.
func (t *Transaction) Touch(coll CollID, obj ObjectID) {
	t.append(Op{Code: OpTouch, Coll: coll, Obj: obj})
}

// Write appends a WRITE op. off is the absolute offset; length is
// recorded separately from len(data) per the source's accessor
// convention — get_offset() and get_length() are distinct reads even
// though in every write this implementation builds they agree.
func (t *Transaction) Write(coll CollID, obj ObjectID, off int64, data []byte) {
	length := int64(len(data))
	t.append(Op{Code: OpWrite, Coll: coll, Obj: obj, Off: off, Length: length, Data: [][]byte{data}})
}

// Zero appends a ZERO op.
func (t *Transaction) Zero(coll CollID, obj ObjectID, off, length int64) {
	t.append(Op{Code: OpZero, Coll: coll, Obj: obj, Off: off, Length: length})
}

// Truncate appends a TRUNCATE op.
func (t *Transaction) Truncate(coll CollID, obj ObjectID, size int64) {
	t.append(Op{Code: OpTruncate, Coll: coll, Obj: obj, Length: size})
}

// TrimCache appends an advisory TRIMCACHE op; the apply engine treats it
// as a no-op.
func (t *Transaction) TrimCache(coll CollID, obj ObjectID) {
	t.append(Op{Code: OpTrimCache, Coll: coll, Obj: obj})
}

// Remove appends a REMOVE op.
func (t *Transaction) Remove(coll CollID, obj ObjectID) {
	t.append(Op{Code: OpRemove, Coll: coll, Obj: obj})
}

// SetAttr appends a SETATTR op.
func (t *Transaction) SetAttr(coll CollID, obj ObjectID, name string, value []byte) {
	t.append(Op{Code: OpSetAttr, Coll: coll, Obj: obj, AttrName: name, AttrVal: value})
}

// SetAttrs appends a SETATTRS op.
func (t *Transaction) SetAttrs(coll CollID, obj ObjectID, attrs []Attr) {
	t.append(Op{Code: OpSetAttrs, Coll: coll, Obj: obj, Attrs: attrs})
}

// RmAttr appends an RMATTR op.
func (t *Transaction) RmAttr(coll CollID, obj ObjectID, name string) {
	t.append(Op{Code: OpRmAttr, Coll: coll, Obj: obj, AttrName: name})
}

// RmAttrs appends an RMATTRS op.
func (t *Transaction) RmAttrs(coll CollID, obj ObjectID) {
	t.append(Op{Code: OpRmAttrs, Coll: coll, Obj: obj})
}

// Clone appends a CLONE op.
func (t *Transaction) Clone(coll CollID, src, dst ObjectID) {
	t.append(Op{Code: OpClone, Coll: coll, Obj: src, Obj2: dst})
}

// CloneRange appends a CLONERANGE op.
func (t *Transaction) CloneRange(coll CollID, src, dst ObjectID, off, length int64) {
	t.append(Op{Code: OpCloneRange, Coll: coll, Obj: src, Obj2: dst, Off: off, Length: length})
}

// MkColl appends an MKCOLL op.
func (t *Transaction) MkColl(coll CollID) {
	t.append(Op{Code: OpMkColl, Coll: coll})
}

// RmColl appends an RMCOLL op.
func (t *Transaction) RmColl(coll CollID) {
	t.append(Op{Code: OpRmColl, Coll: coll})
}

// CollAdd appends a COLL_ADD op (hard-links obj from src into dst).
func (t *Transaction) CollAdd(dst, src CollID, obj ObjectID) {
	t.append(Op{Code: OpCollAdd, Coll: dst, Coll2: src, Obj: obj})
}

// CollRemove appends a COLL_REMOVE op.
func (t *Transaction) CollRemove(coll CollID, obj ObjectID) {
	t.append(Op{Code: OpCollRemove, Coll: coll, Obj: obj})
}

// CollSetAttr appends a COLL_SETATTR op.
func (t *Transaction) CollSetAttr(coll CollID, name string, value []byte) {
	t.append(Op{Code: OpCollSetAttr, Coll: coll, AttrName: name, AttrVal: value})
}

// CollRmAttr appends a COLL_RMATTR op.
func (t *Transaction) CollRmAttr(coll CollID, name string) {
	t.append(Op{Code: OpCollRmAttr, Coll: coll, AttrName: name})
}

// StartSync appends a STARTSYNC op.
func (t *Transaction) StartSync() {
	t.append(Op{Code: OpStartSync})
}

// NumOps returns the number of ops in the transaction.
func (t *Transaction) NumOps() int { return len(t.ops) }

// NumBytes returns the total payload bytes (write data and attribute
// values) across all ops.
func (t *Transaction) NumBytes() int { return t.numBytes }

// HaveOp reports whether index i is a valid op index.
func (t *Transaction) HaveOp(i int) bool { return i >= 0 && i < len(t.ops) }

// GetOp returns the op at index i in program order.
func (t *Transaction) GetOp(i int) Op { return t.ops[i] }

// Ops returns every op in program order. Callers must not mutate the
// returned slice.
func (t *Transaction) Ops() []Op { return t.ops }
