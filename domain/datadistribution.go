package domain

import (
	"github.com/clusterlib/clusterlib/cache"
	"github.com/clusterlib/clusterlib/cerrors"
	"github.com/clusterlib/clusterlib/notifyable"
	"github.com/clusterlib/clusterlib/store"
)

// DataDistribution specializes Notifyable with a shard assignment
// table (spec §3's "Shard" data model), kept in a local ShardTree and
// published as the JSON array schema spec §6 describes.
type DataDistribution struct {
	*notifyable.Object
	st      store.Client
	path    string
	version int64
	Shards  *ShardTree
}

type dataDistributionDescriptor struct{}

func (dataDistributionDescriptor) RegisteredName() string {
	return notifyable.KindDataDistribution.String()
}

func (dataDistributionDescriptor) GenerateKey(parentKey, name string) string {
	return notifyable.GenerateKey(parentKey, notifyable.KindDataDistribution, name)
}

func (dataDistributionDescriptor) IsValidName(name string) bool { return notifyable.IsValidName(name) }

func (dataDistributionDescriptor) GenerateRepositoryList(key string) []string {
	return []string{key, key + "/_shardJsonObject"}
}

func (dataDistributionDescriptor) CreateNotifyable(reg *notifyable.Registry, name, key, parentKey string) notifyable.Notifyable {
	return &DataDistribution{
		Object:  notifyable.NewObject(reg, key, name, notifyable.KindDataDistribution, parentKey),
		st:      reg.Store(),
		path:    key + "/_shardJsonObject",
		version: cache.VersionInitial,
		Shards:  NewShardTree(),
	}
}

func (d *DataDistribution) Initialize() error {
	return d.loadShards(false)
}

// Reload re-reads the shard table from the store, re-arming the watch
// (spec §4.2's cache handler for ChangeShards calls this after a
// watch-fired shard-node mutation).
func (d *DataDistribution) Reload() error {
	return d.loadShards(false)
}

func (d *DataDistribution) loadShards(setWatchesOnly bool) error {
	raw, stat, err := d.st.GetNodeData(d.path, store.WithWatch)
	if err != nil {
		if cerrors.IsNoNode(err) {
			return nil
		}
		return cerrors.Wrap(cerrors.KindRepositoryInternals, d.path, err)
	}
	if setWatchesOnly {
		return nil
	}
	if d.version != cache.VersionInitial && stat.Version <= d.version {
		if stat.Version < d.version {
			return cerrors.InconsistentInternalState("data distribution %s: incoming version %d < local %d", d.path, stat.Version, d.version)
		}
		return nil
	}
	if err := d.Shards.Load(raw); err != nil {
		return err
	}
	d.version = stat.Version
	return nil
}

// PublishShards writes the current shard table, honoring the same
// version-guard semantics as package cache's Object/StateBag.
func (d *DataDistribution) PublishShards(unconditional bool) (int64, error) {
	expected := d.version
	if unconditional {
		expected = store.VersionAny
	}
	stat, err := d.st.SetNodeData(d.path, d.Shards.Encode(), expected)
	if err != nil {
		if cerrors.Is(err, cerrors.KindPublishVersion) {
			return 0, cerrors.PublishVersion(d.path)
		}
		return 0, cerrors.Wrap(cerrors.KindRepositoryInternals, d.path, err)
	}
	d.version = stat.Version
	return stat.Version, nil
}
