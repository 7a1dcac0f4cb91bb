package filestore

import (
	log "github.com/sirupsen/logrus"
)

// BackendKind tags which of the three apply strategies a mounted store
// is using. It is latched once at mount by the capability probe and
// never changes for the lifetime of the mount.
type BackendKind int

const (
	BackendPosix BackendKind = iota
	BackendBracket
	BackendUserTrans
)

func (k BackendKind) String() string {
	switch k {
	case BackendUserTrans:
		return "usertrans"
	case BackendBracket:
		return "bracket"
	default:
		return "posix"
	}
}

// Backend is the tagged variant described by the design notes: one of
// three apply strategies, chosen once at mount time by the capability
// probe and shared by every subsequent apply_transactions call.
type Backend struct {
	Kind    BackendKind
	basedir string

	// opFd is basedir opened once at mount, used by the UserTrans backend
	// for its ioctl. The Bracket backend opens its own basedir fd per
	// batch; the sync loop is handed the same mount fd separately.
	opFd int

	// onStartSync is invoked whenever a STARTSYNC op is applied; it is
	// wired to the sync loop's condition signal at mount time.
	onStartSync func()
}

// NewBackend constructs a Backend bound to basedir. opFd is the fd of
// basedir itself, held for the mount's lifetime.
func NewBackend(kind BackendKind, basedir string, opFd int) *Backend {
	return &Backend{Kind: kind, basedir: basedir, opFd: opFd}
}

// SetStartSync wires the STARTSYNC op to fn, called once at mount after
// the sync loop task exists.
func (b *Backend) SetStartSync(fn func()) { b.onStartSync = fn }

// ApplyBatch applies every Transaction in batch to stable storage using
// the backend's strategy. Per the error propagation policy, the first
// error within a single Transaction stops iteration of THAT
// Transaction's remaining ops, but other Transactions in the same batch
// still run to completion; ApplyBatch returns the first error seen
// across the whole batch, if any.
func (b *Backend) ApplyBatch(batch []*Transaction) error {
	switch b.Kind {
	case BackendUserTrans:
		return b.applyUserTrans(batch)
	case BackendBracket:
		return b.applyBracket(batch)
	default:
		return b.applyPosix(batch)
	}
}

// applyOpsPosix runs every op of t via ordinary POSIX calls, stopping at
// the first failing op and returning its error. startSync, when non-nil,
// is invoked for STARTSYNC ops instead of being silently dropped.
func applyOpsPosix(basedir string, t *Transaction, startSync func()) error {
	for i := 0; i < t.NumOps(); i++ {
		op := t.GetOp(i)
		if err := applyOnePosix(basedir, op, startSync); err != nil {
			log.WithFields(log.Fields{"op": op.Code, "coll": op.Coll}).Warn("op failed, aborting rest of this transaction")
			return err
		}
	}
	return nil
}

func applyOnePosix(basedir string, op Op, startSync func()) error {
	switch op.Code {
	case OpTouch:
		return touch(GetCoName(basedir, op.Coll, op.Obj)).Err()
	case OpWrite:
		return write(GetCoName(basedir, op.Coll, op.Obj), op.Off, op.Data).Err()
	case OpZero:
		return zero(GetCoName(basedir, op.Coll, op.Obj), op.Off, op.Length).Err()
	case OpTruncate:
		return truncate(GetCoName(basedir, op.Coll, op.Obj), op.Length).Err()
	case OpTrimCache:
		return nil
	case OpRemove:
		return remove(GetCoName(basedir, op.Coll, op.Obj)).Err()
	case OpSetAttr:
		return setAttr(GetCoName(basedir, op.Coll, op.Obj), op.AttrName, op.AttrVal)
	case OpSetAttrs:
		path := GetCoName(basedir, op.Coll, op.Obj)
		for _, a := range op.Attrs {
			if err := setAttr(path, a.Name, a.Value); err != nil {
				return err
			}
		}
		return nil
	case OpRmAttr:
		return rmAttr(GetCoName(basedir, op.Coll, op.Obj), op.AttrName)
	case OpRmAttrs:
		return rmAttrs(GetCoName(basedir, op.Coll, op.Obj))
	case OpClone:
		return clone(GetCoName(basedir, op.Coll, op.Obj), GetCoName(basedir, op.Coll, op.Obj2)).Err()
	case OpCloneRange:
		return cloneRange(GetCoName(basedir, op.Coll, op.Obj), GetCoName(basedir, op.Coll, op.Obj2), op.Off, op.Length).Err()
	case OpMkColl:
		return mkColl(basedir, op.Coll).Err()
	case OpRmColl:
		return rmColl(basedir, op.Coll).Err()
	case OpCollAdd:
		return collAdd(basedir, op.Coll2, op.Coll, op.Obj).Err()
	case OpCollRemove:
		return collRemove(basedir, op.Coll, op.Obj).Err()
	case OpCollSetAttr:
		return collSetAttr(basedir, op.Coll, op.AttrName, op.AttrVal).Err()
	case OpCollRmAttr:
		return collRmAttr(basedir, op.Coll, op.AttrName).Err()
	case OpStartSync:
		if startSync != nil {
			startSync()
		}
		return nil
	default:
		return ErrUnsupported
	}
}
