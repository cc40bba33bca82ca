package scheduler

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/nanograph/nanograph/addr"
	"github.com/nanograph/nanograph/arc"
	"github.com/nanograph/nanograph/graph"
	"github.com/nanograph/nanograph/instlock"
	"github.com/nanograph/nanograph/node"
)

func TestSchedulerSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Scheduler Suite")
}

var _ = Describe("Instance", func() {
	var ctrl *gomock.Controller

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
	})

	buildInstance := func(linkedList []uint32, entry map[node.Index]node.Callable) *Instance {
		engine := sim.NewSerialEngine()
		reg := instlock.NewRegistry()
		cfg := Config{
			Index:       0,
			Codec:       addr.NewCodec([]int64{0}),
			LinkedList:  linkedList,
			Arcs:        arc.NewDescriptorTable(make([]uint32, 5)),
			Formats:     graph.NewFormatTable(make([]uint32, 4)),
			PIOHW:       graph.NewPIOHWTable(nil),
			PIOGraph:    graph.NewPIOGraphTable(nil),
			EntryPoints: entry,
			Registry:    reg,
		}
		return NewInstance("suite-instance", engine, 1*sim.GHz, cfg)
	}

	It("marks the node's error bit when its entry point fails during reset", func() {
		linkedList := make([]uint32, 16)
		n := encodeHeader(linkedList, 0, node.Index(9), nil)
		encodeTerminal(linkedList, n)

		mock := NewMockCallable(ctrl)
		mock.EXPECT().
			Invoke(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(errors.New("boom"))

		in := buildInstance(linkedList, map[node.Index]node.Callable{9: mock})

		Expect(in.Interpret(CmdReset, uintptr(node.ExtColdBoot), 0, nil)).To(Succeed())
		Expect(in.errorLog.Has(9)).To(BeTrue())
	})

	It("does not mark the error bit when reset succeeds", func() {
		linkedList := make([]uint32, 16)
		n := encodeHeader(linkedList, 0, node.Index(3), nil)
		encodeTerminal(linkedList, n)

		mock := NewMockCallable(ctrl)
		mock.EXPECT().
			Invoke(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ node.Word, _ []uint32, _ []byte, _ []node.XDM, status *node.Status) error {
				*status = node.Completed
				return nil
			})

		in := buildInstance(linkedList, map[node.Index]node.Callable{3: mock})

		Expect(in.Interpret(CmdReset, uintptr(node.ExtColdBoot), 0, nil)).To(Succeed())
		Expect(in.errorLog.Has(3)).To(BeFalse())
	})
})
