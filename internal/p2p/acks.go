// Package p2p is the external ack-gossip transport adapter. The
// peer-to-peer transport is orthogonal to the core validator logic — this
// package is not part of the validator's invariants, it only forwards
// externally-observed
// acknowledgments into the orchestrator's AcknowledgeBatch and gossips the
// node's own acks outward over libp2p streams.
package p2p

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
)

const (
	protocolID         = "/fulmine/ack-gossip/1.0.0"
	discoveryNamespace = "fulmine_p2p"
)

// AckMessage is the wire form of a gossiped validator acknowledgment.
type AckMessage struct {
	BatchID     string `json:"batchId"`
	ValidatorID string `json:"validatorId"`
}

// AckHandler is invoked for every ack received from a peer.
type AckHandler func(batchID, validatorID string)

// Node is a thin libp2p host that gossips AckMessages to its peers and
// forwards received ones to a handler.
type Node struct {
	Host   host.Host
	onAck  AckHandler
	selfID string
}

// NewNode starts a libp2p host on port, with mDNS peer discovery, that
// forwards every received ack to onAck.
func NewNode(port int, onAck AckHandler) (*Node, error) {
	h, err := libp2p.New(
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", port)),
	)
	if err != nil {
		return nil, fmt.Errorf("p2p: failed to start host: %w", err)
	}

	n := &Node{Host: h, onAck: onAck, selfID: h.ID().String()}
	h.SetStreamHandler(protocolID, n.handleStream)

	notifee := &discoveryNotifee{host: h}
	svc := mdns.NewMdnsService(h, discoveryNamespace, notifee)
	if err := svc.Start(); err != nil {
		return nil, fmt.Errorf("p2p: mDNS discovery failed: %w", err)
	}

	return n, nil
}

// Addr returns the node's first listen multiaddr. The peer ID is not
// included in the returned address.
func (n *Node) Addr() (multiaddr.Multiaddr, error) {
	if len(n.Host.Addrs()) == 0 {
		return nil, fmt.Errorf("p2p: host has no listen addresses")
	}
	return n.Host.Addrs()[0], nil
}

func (n *Node) handleStream(s network.Stream) {
	defer s.Close()
	reader := bufio.NewReader(s)
	var msg AckMessage
	if err := json.NewDecoder(reader).Decode(&msg); err != nil {
		log.Printf("p2p: malformed ack from %s: %v", s.Conn().RemotePeer(), err)
		return
	}
	if n.onAck != nil {
		n.onAck(msg.BatchID, msg.ValidatorID)
	}
}

// Broadcast gossips an ack for batchID to every connected peer.
func (n *Node) Broadcast(batchID string) {
	msg := AckMessage{BatchID: batchID, ValidatorID: n.selfID}
	for _, p := range n.Host.Network().Peers() {
		n.send(p, msg)
	}
}

func (n *Node) send(p peer.ID, msg AckMessage) {
	s, err := n.Host.NewStream(context.Background(), p, protocolID)
	if err != nil {
		log.Printf("p2p: failed to open stream to %s: %v", p, err)
		return
	}
	defer s.Close()
	if err := json.NewEncoder(s).Encode(msg); err != nil {
		log.Printf("p2p: failed to send ack to %s: %v", p, err)
	}
}

type discoveryNotifee struct {
	host host.Host
}

func (d *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == d.host.ID() {
		return
	}
	if err := d.host.Connect(context.Background(), pi); err != nil {
		log.Printf("p2p: failed to connect to discovered peer %s: %v", pi.ID, err)
	}
}
