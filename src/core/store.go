package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var blockKeyPrefix = []byte("block/")

// BlockStore persists committed blocks in a LevelDB database so a node can
// rebuild its chain after a restart. Keys are the block height in big-endian
// form, which makes an iterator walk blocks in append order for free.
type BlockStore struct {
	db *leveldb.DB
}

// OpenBlockStore opens (or creates) the block database at the given path
func OpenBlockStore(path string) (*BlockStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open block database at %s: %w", path, err)
	}
	return &BlockStore{db: db}, nil
}

// Close releases the underlying database
func (s *BlockStore) Close() error {
	return s.db.Close()
}

func blockKey(height uint64) []byte {
	key := make([]byte, len(blockKeyPrefix)+8)
	copy(key, blockKeyPrefix)
	binary.BigEndian.PutUint64(key[len(blockKeyPrefix):], height)
	return key
}

// PutBlock writes one block. Blocks are immutable once committed, so an
// overwrite of an existing height only ever happens during crash recovery
// with identical content.
func (s *BlockStore) PutBlock(block Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("failed to encode block %d: %w", block.Height, err)
	}
	if err := s.db.Put(blockKey(block.Height), data, nil); err != nil {
		return fmt.Errorf("failed to write block %d: %w", block.Height, err)
	}
	return nil
}

// LoadBlocks reads every stored block in height order. A gap in heights
// means the database was corrupted or truncated mid-write; replay stops
// there and the error says where.
func (s *BlockStore) LoadBlocks() ([]Block, error) {
	iter := s.db.NewIterator(util.BytesPrefix(blockKeyPrefix), nil)
	defer iter.Release()

	var blocks []Block
	for iter.Next() {
		var block Block
		if err := json.Unmarshal(iter.Value(), &block); err != nil {
			return nil, fmt.Errorf("failed to decode stored block: %w", err)
		}
		if block.Height != uint64(len(blocks)) {
			return nil, fmt.Errorf("block store has a gap: expected height %d, found %d", len(blocks), block.Height)
		}
		blocks = append(blocks, block)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("block store iteration failed: %w", err)
	}
	return blocks, nil
}
