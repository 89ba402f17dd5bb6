package acceptance

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/orb-community/orb-acceptance/internal/infra"
	"github.com/orb-community/orb-acceptance/internal/orb"
	"github.com/orb-community/orb-acceptance/internal/steps"
	"github.com/orb-community/orb-acceptance/pkg/payload"
)

// Agent log messages the scenarios look for.
const (
	msgGroupSubscription = "completed RPC subscription to group"
	msgPolicyScraped     = "scraped metrics for policy"
)

func pktvisorPolicy(handler string) payload.PolicyRequest {
	req, err := payload.NewPolicy(payload.RandomName(payload.PolicyPrefix), payload.BackendPktvisor).
		Tap("default_pcap", payload.InputPcap).
		Module(handler, handler).
		Build()
	Expect(err).ToNot(HaveOccurred(), "failed to build policy")
	return req
}

// linkPolicies creates a group matching tags, a sink and one policy with its
// dataset per handler.
func linkPolicies(ctx context.Context, world *steps.World, tags map[string]string, handlers ...string) *orb.Group {
	group, err := world.CreateGroup(ctx, tags)
	Expect(err).ToNot(HaveOccurred(), "failed to create group")
	sink, err := world.CreateSink(ctx, cfg.Sink.RemoteHost, cfg.Sink.Username, cfg.Sink.Password)
	Expect(err).ToNot(HaveOccurred(), "failed to create sink")

	for _, h := range handlers {
		policy, err := world.CreatePolicy(ctx, pktvisorPolicy(h))
		Expect(err).ToNot(HaveOccurred(), "failed to create policy")
		_, err = world.CreateDataset(ctx, group, policy, sink)
		Expect(err).ToNot(HaveOccurred(), "failed to create dataset")
	}
	return group
}

var _ = Describe("Agent provisioning", Label("provisioning"), func() {
	var (
		world *steps.World
		tags  map[string]string
	)

	BeforeEach(func() {
		world = newWorld()
		tags = payload.RandomTags(1, payload.TagPrefix)
	})

	// Given an agent created through the API
	// When its container starts with the agent credentials
	// Then the agent comes online with a supported version
	It("should bring an agent provisioned through the API online", func(ctx SpecContext) {
		// Act
		agent, err := world.ProvisionAgent(ctx, tags)

		// Assert
		Expect(err).ToNot(HaveOccurred())
		Expect(world.EnsureAgentVersion(agent.ID, cfg.Agent.MinVersion)).To(Succeed())
		Expect(world.EnsureContainerState(world.ContainerID, infra.StateRunning)).To(Succeed())
		if fleet != nil {
			Expect(world.EnsureFleetAgentState(agent.ID, orb.AgentOnline)).To(Succeed())
		}
	})

	// Given a config file carrying an auto provision token
	// When the agent starts from it
	// Then the agent registers itself with the configured tags
	It("should register a self-provisioned agent", func(ctx SpecContext) {
		// Arrange
		port, err := infra.FreePort()
		Expect(err).ToNot(HaveOccurred())

		// Act
		agent, err := world.SelfProvisionAgent(ctx, tags, port, orb.AgentOnline)

		// Assert
		Expect(err).ToNot(HaveOccurred())
		Expect(agent.OrbTags).To(Equal(tags))
	})

	It("should come back online after a remote reset", func(ctx SpecContext) {
		agent, err := world.ProvisionAgent(ctx, tags)
		Expect(err).ToNot(HaveOccurred())

		Expect(world.ResetAgent(ctx)).To(Succeed())

		Expect(world.EnsureAgentStatus(agent.ID, orb.AgentOnline)).To(Succeed())
		Expect(world.EnsureContainerState(world.ContainerID, infra.StateRunning)).To(Succeed())
	})
})

var _ = Describe("Agent policies", Label("policies"), func() {
	var (
		world *steps.World
		tags  map[string]string
		agent *orb.Agent
	)

	BeforeEach(func(ctx SpecContext) {
		world = newWorld()
		tags = payload.RandomTags(1, payload.TagPrefix)

		var err error
		agent, err = world.ProvisionAgent(ctx, tags)
		Expect(err).ToNot(HaveOccurred(), "failed to provision agent")
	})

	// Given two policies linked to a group matching the agent
	// When the datasets are created
	// Then the heartbeat lists both policies and the agent scrapes them
	It("should apply policies linked to a matching group", func(ctx SpecContext) {
		// Arrange
		linkPolicies(ctx, world, tags, payload.HandlerDNS, payload.HandlerNet)

		// Act
		ids, err := world.EnsurePoliciesApplied(agent.ID, 2)

		// Assert
		Expect(err).ToNot(HaveOccurred())
		Expect(ids).To(ConsistOf(world.PolicyIDs()))
		Expect(world.EnsurePoliciesRunning(agent.ID, world.PolicyIDs()...)).To(Succeed())
		Expect(world.EnsureDatasets(agent.ID, ids, 1)).To(Succeed())
		Expect(world.EnsurePolicyLogs(world.ContainerID, msgPolicyScraped, ids, world.DatasetAppliedAt)).To(Succeed())
	})

	// Given an applied policy
	// When it is deleted
	// Then the agent stops it, removes it and no longer scrapes it
	It("should stop and remove a deleted policy", func(ctx SpecContext) {
		// Arrange
		linkPolicies(ctx, world, tags, payload.HandlerDNS)
		ids, err := world.EnsurePoliciesApplied(agent.ID, 1)
		Expect(err).ToNot(HaveOccurred())
		removed := world.Policies[0]

		// Act
		Expect(world.RemovePolicy(ctx, removed)).To(Succeed())

		// Assert
		Expect(world.EnsurePolicyStoppedAndRemoved(world.ContainerID, removed.Name, world.ConsideredSince)).To(Succeed())
		stoppedAt := time.Now()
		Expect(world.EnsurePoliciesApplied(agent.ID, 0)).To(BeEmpty())
		Expect(world.EnsureNoPolicyLogs(world.ContainerID, msgPolicyScraped, ids, stoppedAt)).To(Succeed())
	})
})

var _ = Describe("Agent groups", Label("groups"), func() {
	var (
		world *steps.World
		tags  map[string]string
		agent *orb.Agent
	)

	BeforeEach(func(ctx SpecContext) {
		world = newWorld()
		tags = payload.RandomTags(2, payload.TagPrefix)

		var err error
		agent, err = world.ProvisionAgent(ctx, tags)
		Expect(err).ToNot(HaveOccurred(), "failed to provision agent")
	})

	// Given a group with all the agent tags, one with a subset and one with
	// foreign tags
	// When the groups are created
	// Then the agent matches and subscribes to exactly the first two
	It("should match every group whose tags the agent carries", func(ctx SpecContext) {
		// Arrange
		subset := map[string]string{}
		for k, v := range tags {
			subset[k] = v
			break
		}

		// Act
		all, err := world.CreateGroup(ctx, tags)
		Expect(err).ToNot(HaveOccurred())
		some, err := world.CreateGroup(ctx, subset)
		Expect(err).ToNot(HaveOccurred())
		_, err = world.CreateGroup(ctx, payload.RandomTags(1, payload.TagPrefix))
		Expect(err).ToNot(HaveOccurred())

		// Assert
		Expect(world.EnsureGroupsMatching(agent.ID, all.ID, some.ID)).To(Succeed())
		Expect(world.EnsureGroupSubscription(world.ContainerID, msgGroupSubscription, []string{all.Name, some.Name})).To(Succeed())
		if fleet != nil {
			Expect(world.EnsureFleetGroups(agent.ID, all.ID, some.ID)).To(Succeed())
		}
	})

	// Given two groups matching the agent
	// When the tags of one group are replaced with foreign ones
	// Then the agent keeps only the other group
	It("should leave a group whose tags no longer match", func(ctx SpecContext) {
		// Arrange
		kept, err := world.CreateGroup(ctx, tags)
		Expect(err).ToNot(HaveOccurred())
		left, err := world.CreateGroup(ctx, tags)
		Expect(err).ToNot(HaveOccurred())
		Expect(world.EnsureGroupsMatching(agent.ID, kept.ID, left.ID)).To(Succeed())

		// Act
		_, err = client.EditGroup(ctx, left.ID, payload.GroupRequest{Name: left.Name, Tags: payload.RandomTags(1, payload.TagPrefix)})
		Expect(err).ToNot(HaveOccurred())

		// Assert
		Expect(world.EnsureGroupsMatching(agent.ID, kept.ID)).To(Succeed())
	})
})

var _ = Describe("Cleanup", Label("cleanup"), func() {
	// Given resources created with the harness prefixes
	// When the janitor runs
	// Then none of them is left
	It("should remove every resource created by the scenarios", func(ctx SpecContext) {
		// Arrange
		world := newWorld()
		tags := payload.RandomTags(1, payload.TagPrefix)
		linkPolicies(ctx, world, tags, payload.HandlerDHCP)

		// Act
		deleted, err := steps.NewJanitor(client, cfg.Cleanup.Workers).Clean(ctx)

		// Assert
		Expect(err).ToNot(HaveOccurred())
		Expect(deleted).To(BeNumerically(">=", 4))
		groups, err := client.ListGroups(ctx)
		Expect(err).ToNot(HaveOccurred())
		for _, g := range groups {
			Expect(payload.HasPrefix(g.Name)).To(BeFalse(), "group %s was not removed", g.Name)
		}
		policies, err := client.ListPolicies(ctx)
		Expect(err).ToNot(HaveOccurred())
		for _, p := range policies {
			Expect(payload.HasPrefix(p.Name)).To(BeFalse(), "policy %s was not removed", p.Name)
		}
	})
})
