// Package storage implements deterministic persistence for entity
// namespaces and the consensus state root computed over them: exactly one
// goleveldb-backed keyspace and one Merkle root over every namespace
// sorted by (namespace_id, key), so nothing non-deterministic ever enters
// the state root.
package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/trie"
	"github.com/syndtr/goleveldb/leveldb"

	"synapsechain/chain/delegation"
	"synapsechain/chain/types"
	"synapsechain/chain/validatorset"
)

// Namespace IDs. Each is a single key-prefix byte so the whole keyspace
// sorts first by namespace, then by the entity's own key, matching the
// "sorted by (namespace_id, key)" rule exactly -- a plain goleveldb key
// iterator already produces that order once namespace is the key prefix.
const (
	NamespaceBalance   byte = iota
	NamespaceValidator
	NamespaceDelegation
	NamespaceSupply
	NamespaceEpochMeta
)

// Store is the single persistence layer every other component's snapshot
// writes through at epoch close.
type Store struct {
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens (creating if absent) a goleveldb database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open storage at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func namespaceKey(ns byte, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = ns
	copy(out[1:], key)
	return out
}

// GetBalance returns an address's current persisted balance, or zero if it
// has never been credited.
func (s *Store) GetBalance(addr types.Address) *types.Amount {
	data, err := s.db.Get(namespaceKey(NamespaceBalance, addr.Bytes()), nil)
	if err != nil {
		return types.ZeroAmount()
	}
	return new(types.Amount).SetBytes(data)
}

// ApplyEpoch credits every reward intent to its recipient's balance and
// records the epoch as applied, all in a single goleveldb write batch: a
// crash partway through the batch leaves every key unchanged, so the
// orchestrator can safely re-run the same epoch rather than ending up
// with some recipients credited and others not.
func (s *Store) ApplyEpoch(epoch uint64, intents []types.RewardIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if applied, err := s.db.Has(namespaceKey(NamespaceEpochMeta, types.Uint64ToBytes(epoch)), nil); err == nil && applied {
		return fmt.Errorf("epoch %d already applied", epoch)
	}

	deltas := make(map[types.Address]*types.Amount)
	order := make([]types.Address, 0, len(intents))
	for _, intent := range intents {
		if _, seen := deltas[intent.Recipient]; !seen {
			deltas[intent.Recipient] = s.GetBalance(intent.Recipient)
			order = append(order, intent.Recipient)
		}
		deltas[intent.Recipient] = types.SaturatingAdd(deltas[intent.Recipient], intent.Amount)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Less(order[j]) })

	batch := new(leveldb.Batch)
	for _, addr := range order {
		batch.Put(namespaceKey(NamespaceBalance, addr.Bytes()), deltas[addr].Bytes())
	}
	batch.Put(namespaceKey(NamespaceEpochMeta, types.Uint64ToBytes(epoch)), []byte{1})

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("apply epoch %d batch: %w", epoch, err)
	}
	return nil
}

// EpochApplied reports whether ApplyEpoch has already run for epoch,
// letting the host skip re-running a closed epoch after a restart.
func (s *Store) EpochApplied(epoch uint64) bool {
	ok, err := s.db.Has(namespaceKey(NamespaceEpochMeta, types.Uint64ToBytes(epoch)), nil)
	return err == nil && ok
}

// PersistValidatorSnapshot writes every validator record under the
// validator namespace, keyed by address. Field order within Record is
// fixed, so json.Marshal's output is deterministic across nodes.
func (s *Store) PersistValidatorSnapshot(records []*validatorset.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal validator %s: %w", rec.Address.Hex(), err)
		}
		batch.Put(namespaceKey(NamespaceValidator, rec.Address.Bytes()), data)
	}
	return s.db.Write(batch, nil)
}

// PersistDelegationSnapshot writes every delegation record under the
// delegation namespace, keyed by delegator||validator.
func (s *Store) PersistDelegationSnapshot(records []*delegation.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal delegation %s/%s: %w", rec.Delegator.Hex(), rec.Validator.Hex(), err)
		}
		key := append(append([]byte{}, rec.Delegator.Bytes()...), rec.Validator.Bytes()...)
		batch.Put(namespaceKey(NamespaceDelegation, key), data)
	}
	return s.db.Write(batch, nil)
}

// StateRoot computes the Merkle root over every key currently in the
// database, in key order -- which, because every key is namespace-
// prefixed, is exactly the "sorted by (namespace_id, key)" order the
// consensus state root requires. trie.StackTrie demands keys inserted in
// strictly increasing order, which a goleveldb iterator already provides.
func (s *Store) StateRoot() (types.Hash, error) {
	st := trie.NewStackTrie(nil)

	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		if err := st.Update(iter.Key(), iter.Value()); err != nil {
			return types.Hash{}, fmt.Errorf("state root update: %w", err)
		}
	}
	if err := iter.Error(); err != nil {
		return types.Hash{}, fmt.Errorf("state root iteration: %w", err)
	}
	return types.BytesToHash(st.Hash().Bytes()), nil
}
