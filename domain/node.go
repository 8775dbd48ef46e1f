package domain

import (
	"github.com/clusterlib/clusterlib/cache"
	"github.com/clusterlib/clusterlib/notifyable"
)

// Node specializes Notifyable with the current-/desired-state bags
// spec §3/§4.4 describe: process liveness and desired configuration
// mirrored locally with versioned reconciliation.
type Node struct {
	*notifyable.Object
	Current *cache.StateBag
	Desired *cache.StateBag
}

type nodeDescriptor struct{}

func (nodeDescriptor) RegisteredName() string { return notifyable.KindNode.String() }

func (nodeDescriptor) GenerateKey(parentKey, name string) string {
	return notifyable.GenerateKey(parentKey, notifyable.KindNode, name)
}

func (nodeDescriptor) IsValidName(name string) bool { return notifyable.IsValidName(name) }

func (nodeDescriptor) GenerateRepositoryList(key string) []string {
	return []string{
		key,
		key + "/_currentStateJsonValue",
		key + "/_desiredStateJsonValue",
	}
}

func (nodeDescriptor) CreateNotifyable(reg *notifyable.Registry, name, key, parentKey string) notifyable.Notifyable {
	return &Node{
		Object:  notifyable.NewObject(reg, key, name, notifyable.KindNode, parentKey),
		Current: cache.NewStateBag(reg.Store(), key+"/_currentStateJsonValue"),
		Desired: cache.NewStateBag(reg.Store(), key+"/_desiredStateJsonValue"),
	}
}

func (n *Node) Initialize() error {
	if err := n.Current.LoadFromRepository(false); err != nil {
		return err
	}
	return n.Desired.LoadFromRepository(false)
}
