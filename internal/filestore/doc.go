// Package filestore implements the transactional apply pipeline for a
// local object store: naming and path escaping, the xattr metadata
// layer, low-level object and collection operations, the transaction
// record, the three apply backends (UserTrans, Bracket, POSIX), and the
// lifecycle and signal-safe coordination around them.
//
// The kernel-assisted backends (UserTrans, Bracket) and the capability
// probe that selects between them assume a Linux host; there is no
// portable equivalent of the underlying filesystem-transaction ioctls.
package filestore
