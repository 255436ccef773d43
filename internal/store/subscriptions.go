package store

import (
	"bytes"
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Subscription index layout:
//
//	subscr:<leaderboard>\x00<connection>  -> connection
//	connsub:<connection>\x00<leaderboard> -> leaderboard
//
// Both keys carry the same TTL, so entries left by a crashed process expire
// on their own.

func subscriptionKey(leaderboardID, connectionID string) []byte {
	return []byte(prefixSubscription + leaderboardID + string(indexSep) + connectionID)
}

func connSubKey(connectionID, leaderboardID string) []byte {
	return []byte(prefixConnSubs + connectionID + string(indexSep) + leaderboardID)
}

// RecordSubscription writes both directions of a subscription with ttl.
func (s *Store) RecordSubscription(ctx context.Context, connectionID, leaderboardID string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		fwd := badger.NewEntry(subscriptionKey(leaderboardID, connectionID), []byte(connectionID)).WithTTL(ttl)
		if err := txn.SetEntry(fwd); err != nil {
			return err
		}
		rev := badger.NewEntry(connSubKey(connectionID, leaderboardID), []byte(leaderboardID)).WithTTL(ttl)
		return txn.SetEntry(rev)
	})
}

// RemoveSubscription deletes one subscription.
func (s *Store) RemoveSubscription(ctx context.Context, connectionID, leaderboardID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(subscriptionKey(leaderboardID, connectionID)); err != nil {
			return err
		}
		return txn.Delete(connSubKey(connectionID, leaderboardID))
	})
}

// RemoveConnection deletes every subscription held by a connection.
func (s *Store) RemoveConnection(ctx context.Context, connectionID string) error {
	boards, err := s.ConnectionSubscriptions(ctx, connectionID)
	if err != nil {
		return err
	}
	if len(boards) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, lb := range boards {
			if err := txn.Delete(subscriptionKey(lb, connectionID)); err != nil {
				return err
			}
			if err := txn.Delete(connSubKey(connectionID, lb)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ConnectionSubscriptions lists the leaderboards a connection is subscribed to.
func (s *Store) ConnectionSubscriptions(ctx context.Context, connectionID string) ([]string, error) {
	return s.scanValues(ctx, []byte(prefixConnSubs+connectionID+string(indexSep)))
}

// Subscribers lists the connections subscribed to a leaderboard.
func (s *Store) Subscribers(ctx context.Context, leaderboardID string) ([]string, error) {
	return s.scanValues(ctx, []byte(prefixSubscription+leaderboardID+string(indexSep)))
}

func (s *Store) scanValues(ctx context.Context, prefix []byte) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = bytes.Clone(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, string(val))
		}
		return nil
	})
	return out, err
}
