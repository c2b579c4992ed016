package p2p

import (
	"context"
	"errors"

	"github.com/cmwaters/cunner/network"
	"github.com/cmwaters/cunner/tx"
	lru "github.com/hashicorp/golang-lru"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/minio/sha256-simd"
)

// DefaultSeenCacheSize is how many message digests each gossip remembers
const DefaultSeenCacheSize = 4096

var _ network.Network = (*Network)(nil)

type Network struct {
	ps *pubsub.PubSub
}

func NewNetwork(ps *pubsub.PubSub) *Network {
	return &Network{
		ps: ps,
	}
}

func (pn *Network) Gossip(namespace []byte) (network.Gossip, error) {
	topic, err := pn.ps.Join(string(namespace))
	if err != nil {
		return nil, err
	}
	seen, err := lru.New(DefaultSeenCacheSize)
	if err != nil {
		return nil, err
	}

	pg := &Gossip{
		ps:   pn.ps,
		tp:   topic,
		seen: seen,
	}
	pg.ensureSubscribed()
	return pg, nil
}

type Gossip struct {
	ps  *pubsub.PubSub
	tp  *pubsub.Topic
	sub *pubsub.Subscription

	// seen holds digests of validated payloads so that the same transaction
	// or block published by different peers is only handled once
	seen *lru.Cache

	validated bool
}

func (p *Gossip) BroadcastTransaction(ctx context.Context, t *tx.Transaction) error {
	return p.publish(ctx, network.TransactionMessage(t))
}

func (p *Gossip) BroadcastBlock(ctx context.Context, b *tx.Block) error {
	return p.publish(ctx, network.BlockMessage(b))
}

func (p *Gossip) publish(ctx context.Context, msg *network.Message) error {
	data, err := network.Encode(msg)
	if err != nil {
		return err
	}
	// so that we publish when we have at least one peer
	opt := pubsub.WithReadiness(pubsub.MinTopicSize(1))
	return p.tp.Publish(ctx, data, opt)
}

// Notify registers the notifiee as the topic validator. Only one notifiee is
// supported per gossip.
func (p *Gossip) Notify(notifiee network.Notifiee) {
	p.validated = true
	// error can be safely ignored
	_ = p.ps.RegisterTopicValidator(p.tp.String(), func(ctx context.Context, _ peer.ID, pmsg *pubsub.Message) pubsub.ValidationResult {
		digest := sha256.Sum256(pmsg.Data)
		if seen, _ := p.seen.ContainsOrAdd(digest, struct{}{}); seen {
			return pubsub.ValidationIgnore
		}

		msg, err := network.Decode(pmsg.Data)
		if err != nil {
			return pubsub.ValidationReject
		}
		if err := msg.Deliver(ctx, notifiee); err != nil {
			return pubsub.ValidationReject
		}
		return pubsub.ValidationAccept
	})
}

// Peers returns the number of peers subscribed to the same namespace
func (p *Gossip) Peers() int {
	return len(p.tp.ListPeers())
}

func (p *Gossip) Close() (err error) {
	if p.sub != nil {
		p.sub.Cancel()
	}
	if p.validated {
		err = errors.Join(err, p.ps.UnregisterTopicValidator(p.tp.String()))
	}
	err = errors.Join(err, p.tp.Close())
	return err
}

// ensureSubscribed maintains one and only subscription for the topic
// PubSub requires at least one subscription in order to work correctly.
// The Network interface does not need the notion of subscribers and relies
// only on validators.
func (p *Gossip) ensureSubscribed() {
	sub, err := p.tp.Subscribe()
	if err != nil {
		return // safe to ignore
	}
	p.sub = sub

	go func() {
		for {
			_, err := sub.Next(context.Background())
			if err != nil {
				// happens when subscription is canceled
				return
			}
			// simply ignore messages
		}
	}()
}
