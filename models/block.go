package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// GenesisPrevHash is the previous hash recorded on the genesis block.
const GenesisPrevHash = "0"

// Block is one hash-linked unit of the ledger. Hash is the digest of every other field
// and is fixed once the block is sealed.
type Block struct {
	Index        uint64 `json:"index"`
	Timestamp    int64  `json:"timestamp"`
	Payload      []Vote `json:"payload"`
	PreviousHash string `json:"previous_hash"`
	Nonce        uint64 `json:"nonce"`
	Hash         string `json:"hash"`
}

// blockForHash lists the hashed fields in canonical order.
type blockForHash struct {
	Index        uint64 `json:"index"`
	Timestamp    int64  `json:"timestamp"`
	Payload      []Vote `json:"payload"`
	PreviousHash string `json:"previous_hash"`
	Nonce        uint64 `json:"nonce"`
}

// NewBlock returns an unsealed block whose hash is computed at nonce 0.
func NewBlock(index uint64, payload []Vote, prevHash string) *Block {
	votes := make([]Vote, len(payload))
	copy(votes, payload)

	block := &Block{
		Index:        index,
		Timestamp:    time.Now().Unix(),
		Payload:      votes,
		PreviousHash: prevHash,
	}
	block.Hash = CalculateHash(block)
	return block
}

// NewGenesisBlock returns the first block of a fresh chain.
func NewGenesisBlock() *Block {
	return NewBlock(0, nil, GenesisPrevHash)
}

// CalculateHash returns the hex encoded SHA-256 digest of the block's canonical fields.
// The payload is encoded as compact JSON, so the digest does not depend on formatting
// of the persisted file.
func CalculateHash(b *Block) string {
	payload := b.Payload
	if payload == nil {
		payload = []Vote{}
	}

	data, err := json.Marshal(blockForHash{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		Payload:      payload,
		PreviousHash: b.PreviousHash,
		Nonce:        b.Nonce,
	})
	if err != nil {
		return ""
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// IsGenesis reports whether b sits at the start of a chain.
func (b *Block) IsGenesis() bool {
	return b.Index == 0 && b.PreviousHash == GenesisPrevHash
}

// HashMatches reports whether the stored hash is still the digest of the current fields.
func (b *Block) HashMatches() bool {
	return b.Hash != "" && CalculateHash(b) == b.Hash
}

// Clone returns a deep copy so callers outside the chain cannot mutate sealed blocks.
func (b *Block) Clone() *Block {
	c := *b
	if b.Payload != nil {
		c.Payload = make([]Vote, len(b.Payload))
		copy(c.Payload, b.Payload)
	}
	return &c
}
