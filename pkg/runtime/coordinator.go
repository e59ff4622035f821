// Package runtime implements the Runtime Coordinator (§4.5): the state
// machine that chooses between interpretation, reactive rule synthesis,
// and proactive classifier installation, and synchronizes those modes
// against asynchronous topology events and policy mutations.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jameskyle/pyretic/pkg/backend"
	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/packet"
	"github.com/jameskyle/pyretic/pkg/policy"
	"github.com/jameskyle/pyretic/pkg/rerr"
	"github.com/jameskyle/pyretic/pkg/rlog"
	"github.com/jameskyle/pyretic/pkg/runtime/classifier"
)

// Mode selects how the coordinator handles packet-ins and topology/policy
// changes (§4.5).
type Mode int

const (
	Interpreted Mode = iota
	Reactive0
	Proactive0
)

func (m Mode) String() string {
	switch m {
	case Interpreted:
		return "interpreted"
	case Reactive0:
		return "reactive0"
	case Proactive0:
		return "proactive0"
	default:
		return "unknown"
	}
}

// ParseMode validates a configuration string against the three recognized
// modes (§6 "Runtime configuration").
func ParseMode(s string) (Mode, error) {
	switch s {
	case "interpreted":
		return Interpreted, nil
	case "reactive0":
		return Reactive0, nil
	case "proactive0":
		return Proactive0, nil
	default:
		return 0, fmt.Errorf("%w: %q", rerr.ErrInvalidMode, s)
	}
}

// jobKind distinguishes the two kinds of work the background worker runs.
type jobKind int

const (
	jobClearAll jobKind = iota
	jobPipeline
)

type pipelineJob struct {
	kind       jobKind
	generation uint64
	classifier policy.Classifier
}

// Coordinator owns the runtime's mode, policy, network view, backend
// handle, generation counter, and the locks serializing updates against
// packet-in/policy-change handling (§4.5, §5).
type Coordinator struct {
	mu     sync.RWMutex // guards mode and policyRoot
	mode   Mode
	policyRoot policy.Policy

	net        *network.ConcreteNetwork
	backend    backend.Backend
	translator *packet.Translator
	tracker    *policy.Tracker
	pipeline   *classifier.Pipeline

	generation classifier.Generation
	updateLock sync.Mutex
	inUpdateNetwork atomic.Bool

	jobs   chan pipelineJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config is the set of dependencies a Coordinator needs at construction.
type Config struct {
	Mode       Mode
	Policy     policy.Policy
	Backend    backend.Backend
	Translator *packet.Translator
	Buckets    classifier.BucketRegistrar
}

// New builds a Coordinator and starts its background worker. The
// ConcreteNetwork returned by Network() must be driven by the caller's
// backend event loop; it
// calls back into the coordinator's UpdateNetwork on every topology
// change.
func New(cfg Config) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		mode:       cfg.Mode,
		policyRoot: cfg.Policy,
		backend:    cfg.Backend,
		translator: cfg.Translator,
		pipeline:   classifier.NewPipeline(cfg.Buckets),
		jobs:       make(chan pipelineJob, 64),
		ctx:        ctx,
		cancel:     cancel,
	}
	c.tracker = policy.NewTracker(c.HandlePolicyChange)
	c.net = network.NewConcreteNetwork(c, cfg.Backend)
	if cfg.Policy != nil {
		c.tracker.Start(cfg.Policy)
	}

	c.wg.Add(1)
	go c.worker()

	return c
}

// Network returns the Concrete Network this coordinator is wired to; the
// backend's topology event callbacks should be routed to its Handle*
// methods.
func (c *Coordinator) Network() *network.ConcreteNetwork {
	return c.net
}

// Stop shuts down the background worker. Queued jobs are abandoned.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Mode returns the coordinator's current mode.
func (c *Coordinator) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

func (c *Coordinator) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case job := <-c.jobs:
			c.runJob(job)
		}
	}
}

func (c *Coordinator) runJob(job pipelineJob) {
	switch job.kind {
	case jobClearAll:
		c.runClearAll(job.generation)
	case jobPipeline:
		if err := c.pipeline.Run(c.ctx, job.classifier, job.generation, &c.generation, c.net.Topo, c.backend); err != nil {
			rlog.WithGeneration(job.generation).WithField("error", err).Error("classifier pipeline failed")
		}
	}
}

// runClearAll is reactive0's analogue of the proactive pipeline: it shares
// the same reset sequence (§9 "duplicate reset logic") but installs
// nothing afterward, since reactive0 rules are synthesized per packet-in.
func (c *Coordinator) runClearAll(thisGen uint64) {
	empty := policy.Classifier{}
	if err := c.pipeline.Run(c.ctx, empty, thisGen, &c.generation, c.net.Topo, c.backend); err != nil {
		rlog.WithGeneration(thisGen).WithField("error", err).Error("clear-all job failed")
	}
}

// HandlePacketIn implements §4.5.1: translate, evaluate per-mode, send
// outputs, and (reactive0 only) synthesize a standing rule when the
// evaluation trace touched no query/bucket node.
func (c *Coordinator) HandlePacketIn(concrete packet.ConcretePacket) {
	defer func() {
		if r := recover(); r != nil {
			rlog.WithField("panic", r).Error("policy evaluation panicked; packet dropped")
		}
	}()

	user, err := c.translator.ToUser(concrete)
	if err != nil {
		rlog.WithField("error", err).Warn("packet-in translation failed; packet dropped")
		return
	}

	c.mu.RLock()
	mode := c.mode
	root := c.policyRoot
	c.mu.RUnlock()

	if root == nil {
		return
	}

	switch mode {
	case Reactive0:
		var trace policy.Trace
		outputs := root.TrackEval(user, &trace)
		c.sendAll(outputs)
		if !trace.ContainsKind(policy.KindBucket) {
			synthesizeReactiveRule(c.translator, user, concrete, outputs, c.backend)
		}
	default:
		outputs := root.Eval(user)
		c.sendAll(outputs)
	}
}

func (c *Coordinator) sendAll(outputs []packet.Packet) {
	for _, out := range outputs {
		concrete, err := c.translator.ToConcrete(out)
		if err != nil {
			rlog.WithField("error", err).Warn("failed to concretize output packet; dropped")
			continue
		}
		if err := c.backend.SendPacket(concrete); err != nil {
			rlog.WithField("error", err).Warn("send_packet failed")
		}
	}
}

// UpdateNetwork implements §4.5.3. It satisfies network.UpdateNotifier, so
// the Concrete Network calls it directly after every topology mutation.
func (c *Coordinator) UpdateNetwork() {
	c.updateLock.Lock()
	defer c.updateLock.Unlock()

	thisGen := c.generation.Advance()

	c.mu.RLock()
	mode := c.mode
	root := c.policyRoot
	c.mu.RUnlock()

	if root != nil {
		root.SetNetwork(c.net.Topo)
	}

	c.inUpdateNetwork.Store(true)
	defer c.inUpdateNetwork.Store(false)

	switch mode {
	case Reactive0:
		c.enqueue(pipelineJob{kind: jobClearAll, generation: thisGen})
	case Proactive0:
		var cl policy.Classifier
		if root != nil {
			cl = root.Compile()
		}
		c.enqueue(pipelineJob{kind: jobPipeline, generation: thisGen, classifier: cl})
	}
}

// HandlePolicyChange implements §4.5.4: reconcile dynamic-policy
// attachments, then recompile unless a network update already owns the
// recompile for this generation.
func (c *Coordinator) HandlePolicyChange(changed bool, old, newPolicy policy.Policy) {
	c.tracker.Reconcile(old, newPolicy)

	if !changed {
		return
	}
	if c.inUpdateNetwork.Load() {
		return // coalesced: the outer UpdateNetwork call already recompiles
	}

	c.updateLock.Lock()
	defer c.updateLock.Unlock()

	thisGen := c.generation.Advance()

	c.mu.RLock()
	mode := c.mode
	root := c.policyRoot
	c.mu.RUnlock()

	switch mode {
	case Reactive0:
		c.enqueue(pipelineJob{kind: jobClearAll, generation: thisGen})
	case Proactive0:
		var cl policy.Classifier
		if root != nil {
			cl = root.Compile()
		}
		c.enqueue(pipelineJob{kind: jobPipeline, generation: thisGen, classifier: cl})
	}
}

func (c *Coordinator) enqueue(job pipelineJob) {
	select {
	case c.jobs <- job:
	case <-c.ctx.Done():
	}
}

// SetPolicy installs a new policy root, reconciling dynamic-policy
// attachments and triggering a recompile the same way a policy-change
// callback would.
func (c *Coordinator) SetPolicy(newPolicy policy.Policy) {
	c.mu.Lock()
	old := c.policyRoot
	c.policyRoot = newPolicy
	c.mu.Unlock()

	c.HandlePolicyChange(old != newPolicy, old, newPolicy)
}
