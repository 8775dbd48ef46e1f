package notifyable_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterlib/clusterlib/notifyable"
	"github.com/clusterlib/clusterlib/store"
)

// fakeApp is a minimal Notifyable used only to exercise the registry's
// lookup/cache/removal protocol without depending on package domain.
type fakeApp struct {
	*notifyable.Object
	initCount int
}

func (f *fakeApp) Initialize() error { f.initCount++; return nil }

type fakeAppDescriptor struct{}

func (fakeAppDescriptor) RegisteredName() string { return "Application" }

func (fakeAppDescriptor) GenerateKey(parentKey, name string) string {
	return notifyable.GenerateKey(parentKey, notifyable.KindApplication, name)
}

func (fakeAppDescriptor) IsValidName(name string) bool { return notifyable.IsValidName(name) }

func (fakeAppDescriptor) GenerateRepositoryList(key string) []string {
	return []string{key, key + "/_applicationDir", key + "/_groupDir"}
}

func (fakeAppDescriptor) CreateNotifyable(reg *notifyable.Registry, name, key, parentKey string) notifyable.Notifyable {
	return &fakeApp{Object: notifyable.NewObject(reg, key, name, notifyable.KindApplication, parentKey)}
}

var _ = Describe("Registry", func() {
	var (
		st  store.Client
		reg *notifyable.Registry
	)

	BeforeEach(func() {
		var err error
		st, err = store.NewMemClient()
		Expect(err).NotTo(HaveOccurred())
		reg = notifyable.NewRegistry(st)
		reg.RegisterKind(notifyable.KindApplication, fakeAppDescriptor{})
	})

	It("returns nil,nil for a CachedOnly miss", func() {
		_, obj, err := reg.GetNotifyableWaitMsecs("", notifyable.KindApplication, "myapp", notifyable.CachedOnly, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(obj).To(BeNil())
	})

	It("creates repository nodes and caches the instance with CreateIfNotFound", func() {
		completed, obj, err := reg.GetNotifyableWaitMsecs("", notifyable.KindApplication, "myapp", notifyable.CreateIfNotFound, -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(completed).To(BeTrue())
		Expect(obj).NotTo(BeNil())
		Expect(obj.Name()).To(Equal("myapp"))

		completed2, obj2, err2 := reg.GetNotifyableWaitMsecs("", notifyable.KindApplication, "myapp", notifyable.CachedOnly, 0)
		Expect(err2).NotTo(HaveOccurred())
		Expect(completed2).To(BeTrue())
		Expect(obj2).To(BeIdenticalTo(obj))
	})

	It("rejects invalid names", func() {
		_, _, err := reg.GetNotifyableWaitMsecs("", notifyable.KindApplication, "bad/name", notifyable.CreateIfNotFound, -1)
		Expect(err).To(HaveOccurred())
	})

	It("removes a cached Notifyable and marks it REMOVED", func() {
		_, obj, err := reg.GetNotifyableWaitMsecs("", notifyable.KindApplication, "myapp", notifyable.CreateIfNotFound, -1)
		Expect(err).NotTo(HaveOccurred())

		Expect(reg.Remove(obj.Key(), false)).To(Succeed())
		Expect(obj.IsRemoved()).To(BeTrue())

		_, again, err := reg.GetNotifyableWaitMsecs("", notifyable.KindApplication, "myapp", notifyable.CachedOnly, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(BeNil())
	})

	It("refuses to remove Root", func() {
		err := reg.Remove(notifyable.RootPath, true)
		Expect(err).To(HaveOccurred())
	})
})
