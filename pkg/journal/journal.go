// Package journal persists the broking state that the workspace's seed
// files cannot encode: which seeds have already been shipped to which
// client.
//
// Without it, a broker restart under the FULL policy re-sends the whole
// pool to every reconnecting client. The journal keys shipments by client
// string id, which is stable across restarts for clients announcing the
// same capabilities in the same order.
package journal

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// Journal is a badger-backed record of seed shipments.
type Journal struct {
	db *badger.DB
}

// Open opens (or creates) the journal database under dir.
func Open(dir string) (*Journal, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // badger's own logging is noise at broker level
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %q: %w", dir, err)
	}
	return &Journal{db: db}, nil
}

// Close flushes and closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func shipmentKey(strid, digest string) []byte {
	return fmt.Appendf(nil, "sent/%s/%s", strid, digest)
}

// RecordShipment notes that the seed digest was shipped to the client.
func (j *Journal) RecordShipment(strid, digest string) error {
	err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(shipmentKey(strid, digest), nil)
	})
	if err != nil {
		return fmt.Errorf("failed to journal shipment to %s: %w", strid, err)
	}
	return nil
}

// Shipments returns every seed digest ever shipped to the client.
func (j *Journal) Shipments(strid string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	prefix := fmt.Appendf(nil, "sent/%s/", strid)

	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			out[string(key[len(prefix):])] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read shipments of %s: %w", strid, err)
	}
	return out, nil
}
