// Package txn is the backend-neutral transaction layer.
//
// ReadTx and WriteTx are closed sums over the two storage engines. The
// variants are *LegacyRead, *LegacyWrite, *RelationalRead and
// *RelationalWrite; no other type can implement the interfaces. Every
// operation in this package switches over the variants and forwards to the
// matching backend call, so a reader of a write transaction always sees that
// transaction's own pending writes.
//
// Write transactions collect completions, each bound to a dispatch.Context.
// Completions are submitted after the backend commits and dropped on
// rollback.
//
// Records are described once per type by a Model, which names the legacy
// collection and codec and the relational table:
//
//	err := backend.Write(ctx, func(tx txn.WriteTx) error {
//	    if err := txn.Insert(tx, txn.Threads, thread); err != nil {
//	        return err
//	    }
//	    tx.AddCompletion(ui, func() { refresh(thread.UniqueID) })
//	    return nil
//	})
package txn
