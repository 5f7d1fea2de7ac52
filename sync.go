package sdstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/poiesic/sdstore/core"
	"github.com/poiesic/sdstore/syncstream"
	"github.com/poiesic/sdstore/txn"
)

// inboxPositions maps every unarchived visible thread to its place in the
// conversation list.
func inboxPositions(tx txn.ReadTx) (map[string]uint32, error) {
	threads, err := txn.VisibleThreads(tx, false)
	if err != nil {
		return nil, err
	}
	positions := make(map[string]uint32, len(threads))
	for i, thread := range threads {
		positions[thread.UniqueID] = uint32(i)
	}
	return positions, nil
}

func inboxPosition(positions map[string]uint32, threadID string) *uint32 {
	if pos, ok := positions[threadID]; ok {
		return &pos
	}
	return nil
}

// ExportContacts writes every contact thread to w as a contact sync stream.
func (db *Database) ExportContacts(ctx context.Context, w io.Writer) (int, error) {
	written := 0
	err := db.Read(ctx, func(tx txn.ReadTx) error {
		positions, err := inboxPositions(tx)
		if err != nil {
			return err
		}
		out := syncstream.NewContactsWriter(w)
		return txn.EnumerateAll(tx, txn.Threads, func(thread *core.Thread, _ *bool) error {
			if thread.Kind != core.ThreadKindContact {
				return nil
			}
			if thread.ContactPhoneNumber == "" && thread.ContactUUID == "" {
				db.logger.Warn("skipping contact thread without address", "thread", thread.UniqueID)
				return nil
			}
			archived := thread.IsArchived
			err := out.Write(&syncstream.Contact{
				PhoneNumber:   thread.ContactPhoneNumber,
				UUID:          thread.ContactUUID,
				Name:          thread.Name,
				InboxPosition: inboxPosition(positions, thread.UniqueID),
				Archived:      &archived,
			})
			if err != nil {
				return err
			}
			written++
			return nil
		})
	})
	return written, err
}

// ExportGroups writes every group thread to w as a group sync stream.
func (db *Database) ExportGroups(ctx context.Context, w io.Writer) (int, error) {
	written := 0
	err := db.Read(ctx, func(tx txn.ReadTx) error {
		positions, err := inboxPositions(tx)
		if err != nil {
			return err
		}
		out := syncstream.NewGroupsWriter(w)
		return txn.EnumerateAll(tx, txn.Threads, func(thread *core.Thread, _ *bool) error {
			if thread.Kind != core.ThreadKindGroup || len(thread.GroupID) == 0 {
				return nil
			}
			archived := thread.IsArchived
			active := thread.ShouldBeVisible
			err := out.Write(&syncstream.Group{
				ID:            thread.GroupID,
				Name:          thread.Name,
				Active:        &active,
				InboxPosition: inboxPosition(positions, thread.UniqueID),
				Archived:      &archived,
			})
			if err != nil {
				return err
			}
			written++
			return nil
		})
	})
	return written, err
}

// ImportContacts reads a contact sync stream and creates or updates one
// contact thread per record, in a single transaction.
func (db *Database) ImportContacts(ctx context.Context, r io.Reader) (int, error) {
	contacts, err := syncstream.NewContactsReader(r).ReadAll()
	if err != nil {
		return 0, err
	}
	err = db.Write(ctx, func(tx txn.WriteTx) error {
		for _, c := range contacts {
			thread, err := findThread(tx, func(t *core.Thread) bool {
				return t.Kind == core.ThreadKindContact && sameContact(t, c)
			})
			if err != nil {
				return err
			}
			if thread == nil {
				thread = &core.Thread{UniqueID: core.NewUniqueID(), Kind: core.ThreadKindContact}
				applyContact(thread, c)
				err = txn.Insert(tx, txn.Threads, thread)
			} else {
				applyContact(thread, c)
				err = txn.Update(tx, txn.Threads, thread)
			}
			if err != nil {
				return err
			}
		}
		tx.AddCompletion(db.background, func() {
			db.logger.Info("sync import committed", "kind", "contacts", "records", len(contacts))
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(contacts), nil
}

// ImportGroups reads a group sync stream and creates or updates one group
// thread per record, in a single transaction.
func (db *Database) ImportGroups(ctx context.Context, r io.Reader) (int, error) {
	groups, err := syncstream.NewGroupsReader(r).ReadAll()
	if err != nil {
		return 0, err
	}
	err = db.Write(ctx, func(tx txn.WriteTx) error {
		for _, g := range groups {
			if len(g.ID) == 0 {
				return errors.New("group without id")
			}
			thread, err := findThread(tx, func(t *core.Thread) bool {
				return t.Kind == core.ThreadKindGroup && bytes.Equal(t.GroupID, g.ID)
			})
			if err != nil {
				return err
			}
			if thread == nil {
				thread = &core.Thread{UniqueID: core.NewUniqueID(), Kind: core.ThreadKindGroup, GroupID: g.ID}
				applyGroup(thread, g)
				err = txn.Insert(tx, txn.Threads, thread)
			} else {
				applyGroup(thread, g)
				err = txn.Update(tx, txn.Threads, thread)
			}
			if err != nil {
				return err
			}
		}
		tx.AddCompletion(db.background, func() {
			db.logger.Info("sync import committed", "kind", "groups", "records", len(groups))
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(groups), nil
}

func findThread(tx txn.ReadTx, match func(*core.Thread) bool) (*core.Thread, error) {
	var found *core.Thread
	err := txn.EnumerateAll(tx, txn.Threads, func(thread *core.Thread, stop *bool) error {
		if match(thread) {
			found = thread
			*stop = true
		}
		return nil
	})
	return found, err
}

func sameContact(t *core.Thread, c *syncstream.Contact) bool {
	if c.UUID != "" && strings.EqualFold(t.ContactUUID, c.UUID) {
		return true
	}
	return c.PhoneNumber != "" && t.ContactPhoneNumber == c.PhoneNumber
}

func applyContact(t *core.Thread, c *syncstream.Contact) {
	if c.PhoneNumber != "" {
		t.ContactPhoneNumber = c.PhoneNumber
	}
	if c.UUID != "" {
		t.ContactUUID = c.UUID
	}
	if c.Name != "" {
		t.Name = c.Name
	}
	if c.Archived != nil {
		t.IsArchived = *c.Archived
	}
	if c.InboxPosition != nil {
		t.ShouldBeVisible = true
	}
}

func applyGroup(t *core.Thread, g *syncstream.Group) {
	t.Name = g.Name
	if g.Active != nil {
		t.ShouldBeVisible = *g.Active
	}
	if g.Archived != nil {
		t.IsArchived = *g.Archived
	}
}
