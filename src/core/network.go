package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DiscoverPeers discovers other nodes in the network by walking the seeds
func (node *LedgerNode) DiscoverPeers(seedNodes []string) {
	for _, seedAddress := range seedNodes {
		resp, err := node.httpClient.Get(fmt.Sprintf("http://%s/api/nodes", seedAddress))
		if err != nil {
			logger.Warn("Failed to connect to seed node", "seedAddress", seedAddress, "error", err)
			continue
		}

		var nodesResponse struct {
			Nodes []PeerNode `json:"nodes"`
		}
		err = json.NewDecoder(resp.Body).Decode(&nodesResponse)
		resp.Body.Close()
		if err != nil {
			logger.Warn("Failed to decode node list", "seedAddress", seedAddress, "error", err)
			continue
		}

		node.KnownNodesMutex.Lock()
		for _, discovered := range nodesResponse.Nodes {
			if discovered.ID == node.NodeID {
				continue
			}
			node.KnownNodes[discovered.ID] = discovered
			logger.Info("Discovered node", "nodeId", discovered.ID, "address", discovered.Address)
		}
		node.KnownNodes[seedAddress] = PeerNode{ID: seedAddress, Address: seedAddress}
		node.KnownNodesMutex.Unlock()
	}
}

// peers returns a snapshot of the known peers
func (node *LedgerNode) peers() []PeerNode {
	node.KnownNodesMutex.RLock()
	defer node.KnownNodesMutex.RUnlock()
	out := make([]PeerNode, 0, len(node.KnownNodes))
	for _, p := range node.KnownNodes {
		out = append(out, p)
	}
	return out
}

// BroadcastTransaction forwards a validated transaction to every known peer
func (node *LedgerNode) BroadcastTransaction(tx Transaction) {
	txJSON, err := json.Marshal(tx)
	if err != nil {
		logger.Error("Failed to marshal transaction", "error", err)
		return
	}

	for _, peer := range node.peers() {
		if peer.ID == node.NodeID {
			continue
		}
		url := fmt.Sprintf("http://%s/api/transactions", peer.Address)
		resp, err := node.httpClient.Post(url, "application/json", bytes.NewReader(txJSON))
		if err != nil {
			logger.Debug("Failed to broadcast transaction", "peerId", peer.ID, "error", err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

// BroadcastBlock forwards a freshly committed block to every known peer
func (node *LedgerNode) BroadcastBlock(block Block) {
	blockJSON, err := json.Marshal(block)
	if err != nil {
		logger.Error("Failed to marshal block", "error", err)
		return
	}

	for _, peer := range node.peers() {
		if peer.ID == node.NodeID {
			continue
		}
		url := fmt.Sprintf("http://%s/api/blocks", peer.Address)
		resp, err := node.httpClient.Post(url, "application/json", bytes.NewReader(blockJSON))
		if err != nil {
			logger.Debug("Failed to broadcast block", "peerId", peer.ID, "error", err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

// SyncFromPeers periodically pulls blocks this node is missing. A peer on a
// divergent chain simply fails the append checks and is skipped.
func (node *LedgerNode) SyncFromPeers(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, peer := range node.peers() {
				if peer.ID == node.NodeID {
					continue
				}
				if err := node.syncFromPeer(ctx, peer); err != nil {
					logger.Debug("Sync from peer failed", "peerId", peer.ID, "error", err)
				}
			}
		}
	}
}

func (node *LedgerNode) syncFromPeer(ctx context.Context, peer PeerNode) error {
	from := node.Chain.Head().Height + 1
	url := fmt.Sprintf("http://%s/api/blocks?from=%d", peer.Address, from)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := node.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var blocksResponse struct {
		Blocks []Block `json:"blocks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&blocksResponse); err != nil {
		return fmt.Errorf("failed to decode block list: %w", err)
	}

	for _, block := range blocksResponse.Blocks {
		effects, err := node.Chain.Append(ctx, block)
		if err != nil {
			RecordBlockRejected("sync")
			return fmt.Errorf("block %d rejected: %w", block.Height, err)
		}
		node.removeCommittedFromPool(block)
		RecordBlockCommitted(block, effects, node.Chain.TotalSupplyE9s())
		logger.Info("Synced block from peer", "peerId", peer.ID, "height", block.Height)
	}
	return nil
}
