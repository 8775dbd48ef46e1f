package domain

import (
	"github.com/clusterlib/clusterlib/cache"
	"github.com/clusterlib/clusterlib/notifyable"
)

// PropertyList specializes Notifyable with the scalar key/value cache
// (spec §4.4's "Scalar cached value") rather than a history-tracking
// state bag: a shared configuration map with no set-time history.
type PropertyList struct {
	*notifyable.Object
	KeyVal *cache.Object
}

type propertyListDescriptor struct{}

func (propertyListDescriptor) RegisteredName() string { return notifyable.KindPropertyList.String() }

func (propertyListDescriptor) GenerateKey(parentKey, name string) string {
	return notifyable.GenerateKey(parentKey, notifyable.KindPropertyList, name)
}

func (propertyListDescriptor) IsValidName(name string) bool { return notifyable.IsValidName(name) }

func (propertyListDescriptor) GenerateRepositoryList(key string) []string {
	return []string{key, key + "/_keyvalJsonObject"}
}

func (propertyListDescriptor) CreateNotifyable(reg *notifyable.Registry, name, key, parentKey string) notifyable.Notifyable {
	return &PropertyList{
		Object: notifyable.NewObject(reg, key, name, notifyable.KindPropertyList, parentKey),
		KeyVal: cache.New(reg.Store(), key+"/_keyvalJsonObject"),
	}
}

func (p *PropertyList) Initialize() error {
	return p.KeyVal.LoadFromRepository(false)
}

// SetKey and Publish satisfy rpc.StatusSetter, letting a PropertyList
// serve as a JSON-RPC manager's status property-list (spec §4.8 step 3).
func (p *PropertyList) SetKey(key string, value interface{}) { p.KeyVal.SetField(key, value) }

func (p *PropertyList) Publish(unconditional bool) (int64, error) { return p.KeyVal.Publish(unconditional) }
