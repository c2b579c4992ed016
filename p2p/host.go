package p2p

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/rs/zerolog"
)

// DiscoveryTag is the mDNS service name peers advertise themselves under
const DiscoveryTag = "cunner-discovery"

const connectTimeout = 10 * time.Second

// NewHost creates a libp2p host listening on the given TCP port on every
// interface. Port zero picks a free port.
func NewHost(port int, key crypto.PrivKey) (host.Host, error) {
	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", port)),
	}
	if key != nil {
		opts = append(opts, libp2p.Identity(key))
	}
	return libp2p.New(opts...)
}

// DecodeKey parses a private key in the libp2p config encoding. An empty
// string generates a fresh ed25519 key.
func DecodeKey(encoded string) (crypto.PrivKey, error) {
	if encoded == "" {
		key, _, err := crypto.GenerateEd25519Key(crand.Reader)
		return key, err
	}
	raw, err := crypto.ConfigDecodeKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	return crypto.UnmarshalPrivateKey(raw)
}

// EncodeKey is the inverse of DecodeKey
func EncodeKey(key crypto.PrivKey) (string, error) {
	raw, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return "", err
	}
	return crypto.ConfigEncodeKey(raw), nil
}

// StartDiscovery advertises the host over mDNS and connects to every peer it
// finds on the local network. Closing the returned service stops discovery.
func StartDiscovery(h host.Host, logger zerolog.Logger) (mdns.Service, error) {
	service := mdns.NewMdnsService(h, DiscoveryTag, &discoveryNotifee{host: h, logger: logger})
	if err := service.Start(); err != nil {
		return nil, err
	}
	return service, nil
}

type discoveryNotifee struct {
	host   host.Host
	logger zerolog.Logger
}

func (n *discoveryNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := n.host.Connect(ctx, info); err != nil {
		n.logger.Debug().Err(err).Stringer("peer", info.ID).Msg("connecting to discovered peer")
		return
	}
	n.logger.Info().Stringer("peer", info.ID).Msg("discovered peer")
}
