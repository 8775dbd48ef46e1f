package domain

import (
	"github.com/clusterlib/clusterlib/notifyable"
	"github.com/clusterlib/clusterlib/queue"
	"github.com/clusterlib/clusterlib/signalmap"
)

// Queue specializes Notifyable with the FIFO primitive (spec §4.7,
// component C7): its repository structure is just its own key plus the
// "_queueParent" directory package queue manages directly.
type Queue struct {
	*notifyable.Object
	Q *queue.Queue
}

type queueDescriptor struct {
	signals *signalmap.Map
}

func (queueDescriptor) RegisteredName() string { return notifyable.KindQueue.String() }

func (queueDescriptor) GenerateKey(parentKey, name string) string {
	return notifyable.GenerateKey(parentKey, notifyable.KindQueue, name)
}

func (queueDescriptor) IsValidName(name string) bool { return notifyable.IsValidName(name) }

func (queueDescriptor) GenerateRepositoryList(key string) []string {
	return []string{key, key + "/_queueParent"}
}

func (d queueDescriptor) CreateNotifyable(reg *notifyable.Registry, name, key, parentKey string) notifyable.Notifyable {
	signals := d.signals
	if signals == nil {
		signals = signalmap.New()
	}
	return &Queue{
		Object: notifyable.NewObject(reg, key, name, notifyable.KindQueue, parentKey),
		Q:      queue.New(reg.Store(), signals, key),
	}
}

func (q *Queue) Initialize() error { return nil }
