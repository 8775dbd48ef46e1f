package domain

import (
	"github.com/clusterlib/clusterlib/cerrors"
	"github.com/clusterlib/clusterlib/notifyable"
	"github.com/clusterlib/clusterlib/store"
)

// Root is the single well-known Notifyable every other kind descends
// from (spec §3's kind grammar: "Root -> Application*"). Unlike every
// other kind it has no parent and is never looked up through the
// normal lazy-load protocol — GetRoot seeds and caches it directly.
type Root struct{ *notifyable.Object }

func (r *Root) Initialize() error { return nil }

// GetRoot returns the process-wide Root, creating its repository node
// if absent. It bypasses notifyable.Registry.GetNotifyableWaitMsecs
// because Root has no parent to take a CHILD_LOCK on and no registered
// Descriptor (spec §4.5 describes lookup in terms of a parent; Root is
// the base case the protocol does not cover).
func GetRoot(reg *notifyable.Registry) (*Root, error) {
	st := reg.Store()
	if _, err := st.CreateNode(notifyable.RootPath, nil, store.FlagNone); err != nil {
		if !cerrors.Is(err, cerrors.KindNodeExists) {
			return nil, cerrors.Wrap(cerrors.KindRepositoryInternals, notifyable.RootPath, err)
		}
	}
	root := &Root{Object: notifyable.NewObject(reg, notifyable.RootPath, "root", notifyable.KindRoot, "")}
	reg.CacheRoot(root)
	return root, nil
}
