// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cpg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for the node store keyspace.
//
//	node:<node_id>      -> JSON-encoded Node
//	ident:<identifier>  -> JSON array of node IDs carrying that identifier
const (
	nodeKeyPrefix  = "node:"
	identKeyPrefix = "ident:"
)

// StoreConfig holds configuration for a BadgerDB-backed NodeStore.
type StoreConfig struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger is the logger for store operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultStoreConfig returns sensible defaults for production use.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		SyncWrites: true,
	}
}

// InMemoryStoreConfig returns configuration optimized for testing.
func InMemoryStoreConfig() StoreConfig {
	return StoreConfig{
		InMemory:   true,
		SyncWrites: false,
	}
}

// NodeStore is an embedded, BadgerDB-backed graph node store.
//
// NodeStore implements Provider so the correlator can run standalone
// against locally ingested graph exports. It supports point lookups
// only; graph construction and traversal remain the graph builder's
// concern, not this store's.
//
// Thread Safety:
//
//	NodeStore is safe for concurrent use. BadgerDB transactions provide
//	snapshot isolation for reads.
type NodeStore struct {
	db     *badger.DB
	logger *slog.Logger
	closed atomic.Bool
}

// Ensure NodeStore implements Provider.
var _ Provider = (*NodeStore)(nil)

// OpenStore opens a NodeStore with the given configuration.
//
// Description:
//
//	Opens a BadgerDB database at the configured path, or in memory if
//	InMemory is true. Creates the directory if it doesn't exist.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*NodeStore - The opened store. Caller must call Close() when done.
//	error - Non-nil if the path is invalid or the database cannot open.
func OpenStore(cfg StoreConfig) (*NodeStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent node store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&storeLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	return &NodeStore{db: db, logger: cfg.Logger}, nil
}

// Close closes the underlying database.
//
// Lookups issued after Close return ErrStoreClosed.
func (s *NodeStore) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}
	return s.db.Close()
}

// PutNode ingests or replaces a node.
//
// Description:
//
//	Writes the node under node:<id> and registers the node ID under
//	every structural identifier found in the node's properties
//	("structural_id" key) plus the node's own ID. Replacement is
//	wholesale; partial updates are not supported.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	node - The node to ingest. ID and Kind are required.
//
// Outputs:
//
//	error - ErrInvalidNode for nil/incomplete nodes, ErrStoreClosed
//	        after Close, or a wrapped badger error.
func (s *NodeStore) PutNode(ctx context.Context, node *Node) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if node == nil || node.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidNode)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", node.ID, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(nodeKeyPrefix+node.ID), data); err != nil {
			return err
		}
		for _, ident := range nodeIdentifiers(node) {
			if err := s.appendIdentifier(txn, ident, node.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// LookupByIdentifier implements Provider.
//
// Description:
//
//	Resolves the identifier index entry and loads each referenced
//	node. Dangling index references (node deleted after indexing)
//	are skipped rather than surfaced as errors.
//
// Errors:
//
//	ErrNodeNotFound - No node carries the identifier
//	ErrStoreClosed - Store has been closed
func (s *NodeStore) LookupByIdentifier(ctx context.Context, identifier string) ([]*Node, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if identifier == "" {
		return nil, ErrNodeNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var nodes []*Node
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := readIdentifierIndex(txn, identifier)
		if err != nil {
			return err
		}
		for _, id := range ids {
			node, err := readNode(txn, id)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue // Dangling index reference
			}
			if err != nil {
				return err
			}
			nodes = append(nodes, node)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, identifier)
		}
		return nil, fmt.Errorf("lookup %s: %w", identifier, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, identifier)
	}
	return nodes, nil
}

// LookupEnclosingFunction implements Provider.
//
// Description:
//
//	Loads the node, follows its FunctionNodeID reference, and returns
//	the function-level node. One hop only.
//
// Errors:
//
//	ErrNodeNotFound - Node missing, or node has no enclosing function
//	ErrStoreClosed - Store has been closed
func (s *NodeStore) LookupEnclosingFunction(ctx context.Context, nodeID string) (*Node, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var fn *Node
	err := s.db.View(func(txn *badger.Txn) error {
		node, err := readNode(txn, nodeID)
		if err != nil {
			return err
		}
		if node.FunctionNodeID == "" {
			return badger.ErrKeyNotFound
		}
		fn, err = readNode(txn, node.FunctionNodeID)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: enclosing function of %s", ErrNodeNotFound, nodeID)
		}
		return nil, fmt.Errorf("lookup enclosing function of %s: %w", nodeID, err)
	}
	return fn, nil
}

// appendIdentifier adds nodeID to the identifier index entry, creating
// it if absent. Duplicate registrations are ignored.
func (s *NodeStore) appendIdentifier(txn *badger.Txn, identifier, nodeID string) error {
	ids, err := readIdentifierIndex(txn, identifier)
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	for _, id := range ids {
		if id == nodeID {
			return nil
		}
	}
	ids = append(ids, nodeID)
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode identifier index %s: %w", identifier, err)
	}
	return txn.Set([]byte(identKeyPrefix+identifier), data)
}

// readIdentifierIndex loads the node ID list for an identifier.
func readIdentifierIndex(txn *badger.Txn, identifier string) ([]string, error) {
	item, err := txn.Get([]byte(identKeyPrefix + identifier))
	if err != nil {
		return nil, err
	}
	var ids []string
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &ids)
	})
	if err != nil {
		return nil, fmt.Errorf("decode identifier index %s: %w", identifier, err)
	}
	return ids, nil
}

// readNode loads and decodes a node by ID.
func readNode(txn *badger.Txn, nodeID string) (*Node, error) {
	item, err := txn.Get([]byte(nodeKeyPrefix + nodeID))
	if err != nil {
		return nil, err
	}
	var node Node
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &node)
	})
	if err != nil {
		return nil, fmt.Errorf("decode node %s: %w", nodeID, err)
	}
	return &node, nil
}

// nodeIdentifiers returns the structural identifiers a node should be
// indexed under: the "structural_id" property when present, always the
// node's own ID.
func nodeIdentifiers(node *Node) []string {
	idents := []string{node.ID}
	if sid, ok := node.Properties["structural_id"]; ok && sid != "" && sid != node.ID {
		idents = append(idents, sid)
	}
	return idents
}

// storeLogger adapts slog.Logger to BadgerDB's Logger interface.
type storeLogger struct {
	logger *slog.Logger
}

func (l *storeLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *storeLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *storeLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *storeLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
