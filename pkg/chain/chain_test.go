package chain

import (
	vstateerrors "github.com/chartlylabs/vstate/pkg/errors"
	"github.com/chartlylabs/vstate/pkg/hashing"
	"testing"
)

func mockChain(n int) []Link {
	links := make([]Link, n)
	var parentID, parentHash string
	for i := 0; i < n; i++ {
		deltaHash := hashing.Hash([]byte{byte(i)})
		chainHash := ComputeChainHash(parentHash, deltaHash)
		links[i] = Link{
			DeltaID:    hashing.Hash([]byte{byte(i), 0xff}),
			ParentID:   parentID,
			ParentHash: parentHash,
			DeltaHash:  deltaHash,
			ChainHash:  chainHash,
		}
		parentID = links[i].DeltaID
		parentHash = chainHash
	}
	return links
}

func TestVerifyChainIntact(t *testing.T) {
	links := mockChain(5)
	verified, err := VerifyChain(links)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verified != 5 {
		t.Fatalf("expected 5 verified links, got %d", verified)
	}
}

func TestFirstLinkChainHashEqualsDeltaHash(t *testing.T) {
	links := mockChain(1)
	if links[0].ChainHash != links[0].DeltaHash {
		t.Fatalf("first link's chain hash must equal its delta hash: %s vs %s", links[0].ChainHash, links[0].DeltaHash)
	}
}

func TestVerifyChainDetectsCorruption(t *testing.T) {
	links := mockChain(5)
	links[2].DeltaHash = hashing.Hash([]byte("tampered"))
	verified, err := VerifyChain(links)
	if err == nil {
		t.Fatal("expected verification error for tampered link")
	}
	if verified != 2 {
		t.Fatalf("expected break detected at index 2, got verified=%d", verified)
	}
}

func TestVerifyChainMissingParentHash(t *testing.T) {
	links := mockChain(3)
	links[1].ParentHash = ""
	_, err := VerifyChain(links)
	if err == nil {
		t.Fatal("expected error for missing parent hash")
	}
	e, ok := vstateerrors.AsError(err)
	if !ok || e.Code != vstateerrors.MerkleChainBroken {
		t.Fatalf("expected MerkleChainBroken, got %v", err)
	}
}

func TestFindBreakPoint(t *testing.T) {
	links := mockChain(4)
	if bp := FindBreakPoint(links); bp != -1 {
		t.Fatalf("expected -1 for intact chain, got %d", bp)
	}
	links[3].ChainHash = "corrupted"
	if bp := FindBreakPoint(links); bp != 3 {
		t.Fatalf("expected break at index 3, got %d", bp)
	}
}
