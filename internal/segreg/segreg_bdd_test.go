package segreg

import (
	"testing"

	. "github.com/onsi/ginkgo"
	table "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/dash-project/dart-go/internal/dtype"
)

func TestSegregSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "segreg suite")
}

// Both Registry implementations (sorted and buntdb-backed, SPEC_FULL.md
// §4.B') must obey the same contract, so the behavior is described once
// and run against each constructor in turn — mirroring the teacher's
// table-driven Describe/It style (fuse/fs's namespaceCache suite).
var _ = table.DescribeTable("segment registry",
	func(newRegistry func() Registry) {
		reg := newRegistry()
		defer reg.Destroy()

		entry := Entry{ID: 7, NBytesUnit: 64, Type: dtype.Byte, Disp: []uint64{100, 200}}
		Expect(reg.Add(entry)).To(Succeed())

		got, ok := reg.Get(7)
		Expect(ok).To(BeTrue())
		Expect(got.NBytesUnit).To(BeEquivalentTo(64))

		disp, err := reg.LookupDisp(7, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(disp).To(BeEquivalentTo(200))

		Expect(reg.Remove(7)).To(Succeed())
		_, ok = reg.Get(7)
		Expect(ok).To(BeFalse())
	},
	table.Entry("sorted", NewSorted),
	table.Entry("bunt", NewBunt),
)

var _ = Describe("segment registry duplicate ids", func() {
	It("rejects adding the same id twice", func() {
		reg := NewSorted()
		defer reg.Destroy()
		Expect(reg.Add(Entry{ID: 1, Disp: []uint64{0}})).To(Succeed())
		Expect(reg.Add(Entry{ID: 1, Disp: []uint64{0}})).To(HaveOccurred())
	})
})
