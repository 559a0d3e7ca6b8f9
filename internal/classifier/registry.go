package classifier

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-inspect/pkg/types"
)

type registryKey struct {
	protocol types.Protocol
	name     string
}

// Registry indexes classifiers by (protocol, event name) and by topic
type Registry struct {
	all     []Classifier
	byKey   map[registryKey]Classifier
	byTopic map[common.Hash][]Classifier
}

// NewRegistry validates and indexes the given classifiers
func NewRegistry(classifiers ...Classifier) (*Registry, error) {
	r := &Registry{
		byKey:   make(map[registryKey]Classifier),
		byTopic: make(map[common.Hash][]Classifier),
	}
	for _, c := range classifiers {
		if err := r.add(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(c Classifier) error {
	if c.Protocol == "" {
		return fmt.Errorf("classifier for %s has no protocol", c.Event.Name)
	}
	if c.Event.Parse == nil {
		return fmt.Errorf("%s/%s: missing parse function", c.Protocol, c.Event.Name)
	}
	if _, ok := c.ABI.Events[c.Event.Name]; !ok {
		return fmt.Errorf("%s/%s: event not found in abi", c.Protocol, c.Event.Name)
	}
	if c.Event.Kind == types.KindSwap && c.Event.FetchPool == nil {
		return fmt.Errorf("%s/%s: swap classifier needs a pool fetcher", c.Protocol, c.Event.Name)
	}

	key := registryKey{protocol: c.Protocol, name: c.Event.Name}
	if _, dup := r.byKey[key]; dup {
		return fmt.Errorf("%s/%s: registered twice", c.Protocol, c.Event.Name)
	}
	r.byKey[key] = c

	topic := c.Topic()
	r.byTopic[topic] = append(r.byTopic[topic], c)
	r.all = append(r.all, c)
	return nil
}

// Lookup returns the classifier registered for protocol and event name
func (r *Registry) Lookup(protocol types.Protocol, name string) (Classifier, bool) {
	c, ok := r.byKey[registryKey{protocol: protocol, name: name}]
	return c, ok
}

// ByTopic returns the classifiers recognising the event signature
func (r *Registry) ByTopic(topic common.Hash) []Classifier {
	return r.byTopic[topic]
}

// Classifiers returns every registered classifier in registration order
func (r *Registry) Classifiers() []Classifier {
	return append([]Classifier(nil), r.all...)
}

// Topics returns the distinct event signatures, in registration order
func (r *Registry) Topics() []common.Hash {
	seen := make(map[common.Hash]struct{}, len(r.byTopic))
	topics := make([]common.Hash, 0, len(r.byTopic))
	for _, c := range r.all {
		topic := c.Topic()
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	return topics
}

// Fetchers returns the pool fetcher of each protocol that has one
func (r *Registry) Fetchers() map[types.Protocol]FetchPoolFunc {
	out := make(map[types.Protocol]FetchPoolFunc)
	for _, c := range r.all {
		if c.Event.FetchPool == nil {
			continue
		}
		if _, ok := out[c.Protocol]; !ok {
			out[c.Protocol] = c.Event.FetchPool
		}
	}
	return out
}

// Only returns a registry restricted to the given protocols
func (r *Registry) Only(protocols ...types.Protocol) *Registry {
	keep := make(map[types.Protocol]bool, len(protocols))
	for _, p := range protocols {
		keep[p] = true
	}

	out := &Registry{
		byKey:   make(map[registryKey]Classifier),
		byTopic: make(map[common.Hash][]Classifier),
	}
	for _, c := range r.all {
		if keep[c.Protocol] {
			// already validated
			_ = out.add(c)
		}
	}
	return out
}
