package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore keeps the registry in etcd:
//
//	<prefix>/device/<hex>   the owner
//	<prefix>/owner/<owner>  JSON array of hex ids in registration order
//	<prefix>/count          decimal uint64
//
// TryCommit reads the three keys, then writes them in one Txn guarded by
// the device key being absent and the owner and counter keys being
// unchanged since the read. A failed guard means another writer got in
// first; the commit is retried from a fresh read.
type EtcdStore struct {
	kv       clientv3.KV
	prefix   string
	maxOwned int
	retries  int
}

// NewEtcdStore returns a store using kv (usually a *clientv3.Client) with
// keys under prefix.
func NewEtcdStore(kv clientv3.KV, prefix string, maxOwned int) *EtcdStore {
	return &EtcdStore{
		kv:       kv,
		prefix:   prefix,
		maxOwned: maxOwned,
		retries:  DefaultCommitRetries,
	}
}

func (s *EtcdStore) deviceKey(id ID) string      { return s.prefix + "/device/" + id.String() }
func (s *EtcdStore) ownerKey(owner Owner) string { return s.prefix + "/owner/" + string(owner) }
func (s *EtcdStore) countKey() string            { return s.prefix + "/count" }

// Contains reports whether id is registered.
func (s *EtcdStore) Contains(ctx context.Context, id ID) (bool, error) {
	resp, err := s.kv.Get(ctx, s.deviceKey(id), clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("etcd store: checking device: %w", err)
	}
	return resp.Count > 0, nil
}

// Get returns the record for id.
func (s *EtcdStore) Get(ctx context.Context, id ID) (Record, error) {
	resp, err := s.kv.Get(ctx, s.deviceKey(id))
	if err != nil {
		return Record{}, fmt.Errorf("etcd store: reading device: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return Record{}, ErrDeviceNotFound
	}
	return Record{ID: id, Owner: Owner(resp.Kvs[0].Value)}, nil
}

// OwnedBy returns the owner's device ids in registration order.
func (s *EtcdStore) OwnedBy(ctx context.Context, owner Owner) ([]ID, error) {
	resp, err := s.kv.Get(ctx, s.ownerKey(owner))
	if err != nil {
		return nil, fmt.Errorf("etcd store: reading owner index: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return []ID{}, nil
	}
	return decodeOwnerIndex(resp.Kvs[0].Value)
}

// Count returns the number of registered devices.
func (s *EtcdStore) Count(ctx context.Context) (uint64, error) {
	resp, err := s.kv.Get(ctx, s.countKey())
	if err != nil {
		return 0, fmt.Errorf("etcd store: reading counter: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return 0, nil
	}
	return parseCounter(resp.Kvs[0].Value)
}

// TryCommit registers rec with a revision-guarded Txn.
func (s *EtcdStore) TryCommit(ctx context.Context, rec Record) error {
	deviceKey, ownerKey, countKey := s.deviceKey(rec.ID), s.ownerKey(rec.Owner), s.countKey()

	for attempt := 0; attempt < s.retries; attempt++ {
		snap, err := s.kv.Txn(ctx).Then(
			clientv3.OpGet(deviceKey, clientv3.WithCountOnly()),
			clientv3.OpGet(ownerKey),
			clientv3.OpGet(countKey),
		).Commit()
		if err != nil {
			return fmt.Errorf("etcd store: reading registry: %w", err)
		}

		exists := snap.Responses[0].GetResponseRange().Count > 0

		var (
			owned    []ID
			ownerRev int64
		)
		if kvs := snap.Responses[1].GetResponseRange().Kvs; len(kvs) > 0 {
			if owned, err = decodeOwnerIndex(kvs[0].Value); err != nil {
				return err
			}
			ownerRev = kvs[0].ModRevision
		}

		var (
			count    uint64
			countRev int64
		)
		if kvs := snap.Responses[2].GetResponseRange().Kvs; len(kvs) > 0 {
			if count, err = parseCounter(kvs[0].Value); err != nil {
				return err
			}
			countRev = kvs[0].ModRevision
		}

		if err := checkCommit(exists, count, len(owned), s.maxOwned); err != nil {
			return err
		}

		index, err := encodeOwnerIndex(append(owned, rec.ID))
		if err != nil {
			return err
		}

		resp, err := s.kv.Txn(ctx).If(
			clientv3.Compare(clientv3.CreateRevision(deviceKey), "=", 0),
			clientv3.Compare(clientv3.ModRevision(ownerKey), "=", ownerRev),
			clientv3.Compare(clientv3.ModRevision(countKey), "=", countRev),
		).Then(
			clientv3.OpPut(deviceKey, string(rec.Owner)),
			clientv3.OpPut(ownerKey, index),
			clientv3.OpPut(countKey, strconv.FormatUint(count+1, 10)),
		).Commit()
		if err != nil {
			return fmt.Errorf("etcd store: committing device: %w", err)
		}
		if resp.Succeeded {
			return nil
		}
	}
	return ErrStoreContention
}

func decodeOwnerIndex(raw []byte) ([]ID, error) {
	var ids []ID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("etcd store: decoding owner index: %w", err)
	}
	if ids == nil {
		ids = []ID{}
	}
	return ids, nil
}

func encodeOwnerIndex(ids []ID) (string, error) {
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("etcd store: encoding owner index: %w", err)
	}
	return string(raw), nil
}

func parseCounter(raw []byte) (uint64, error) {
	count, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("etcd store: parsing counter %q: %w", raw, err)
	}
	return count, nil
}
