package steps_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/orb-community/orb-acceptance/internal/diag"
	"github.com/orb-community/orb-acceptance/internal/infra"
	"github.com/orb-community/orb-acceptance/internal/orb"
	"github.com/orb-community/orb-acceptance/internal/orb/orbtest"
	"github.com/orb-community/orb-acceptance/internal/steps"
	orbErrors "github.com/orb-community/orb-acceptance/pkg/errors"
	"github.com/orb-community/orb-acceptance/pkg/payload"
)

var _ = Describe("World", func() {
	var (
		ctx      context.Context
		server   *orbtest.Server
		client   *orb.Client
		runner   *fakeRunner
		recorder *diag.Recorder
		observer *diag.Observer
		world    *steps.World
		tags     map[string]string
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = orbtest.New(email, password)
		url := server.Start()

		var exchanges chan diag.Exchange
		recorder, exchanges = diag.NewRecorder(orb.NewTransport(false), 64)
		observer = diag.NewObserver(exchanges, 20)
		client = orb.NewClient(url, email, password, orb.WithTransport(recorder))
		runner = &fakeRunner{}
		world = steps.NewWorld(testConfiguration(), client, runner, steps.WithObserver(observer))
		tags = payload.RandomTags(2, payload.TagPrefix)
	})

	AfterEach(func() {
		recorder.Close()
		observer.Close()
		server.Close()
	})

	// onlineAfter makes the agent come online on the given read.
	onlineAfter := func(agentID string, read int) {
		server.OnAgentRead(agentID, func(a *orb.Agent, reads int) {
			if reads >= read {
				a.State = orb.AgentOnline
			}
		})
	}

	newPolicy := func(handler string) payload.PolicyRequest {
		req, err := payload.NewPolicy(payload.RandomName(payload.PolicyPrefix), payload.BackendPktvisor).
			Tap("default_pcap", payload.InputPcap).
			Module(handler, handler).
			Build()
		Expect(err).ToNot(HaveOccurred())
		return req
	}

	Context("agent status", func() {
		// Given an agent that comes online on the third read
		// When we wait for the online status
		// Then the waiter stops on that read
		It("should return as soon as the agent is online", func() {
			// Arrange
			a, err := world.CreateAgent(ctx, tags)
			Expect(err).ToNot(HaveOccurred())
			onlineAfter(a.ID, 3)

			// Act
			out, err := world.WaitForAgentStatus(a.ID, orb.AgentOnline)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Matched).To(BeTrue())
			Expect(out.Value.State).To(Equal(orb.AgentOnline))
			Expect(server.Reads(a.ID)).To(Equal(3))
		})

		// Given an agent that never comes online
		// When the status is ensured
		// Then the error carries the observed state, the logs and the API traffic
		It("should fail with diagnostics when the agent stays new", func() {
			// Arrange
			a, err := world.CreateAgent(ctx, tags)
			Expect(err).ToNot(HaveOccurred())
			_, err = world.StartAgent()
			Expect(err).ToNot(HaveOccurred())
			runner.logs = []string{logLine(time.Now(), "agent started")}

			// Act
			err = world.EnsureAgentStatus(a.ID, orb.AgentOnline)

			// Assert
			Expect(orbErrors.IsConditionNotMetError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("expected online, observed new"))
			Expect(err.Error()).To(ContainSubstring("agent started"))
			Expect(err.Error()).To(ContainSubstring("/api/v1/agents/" + a.ID))
			Expect(err.Error()).To(ContainSubstring(`"id": "` + a.ID + `"`))
		})

		It("should return fetch errors without retrying", func() {
			out, err := world.WaitForAgentStatus("missing", orb.AgentOnline)

			Expect(orbErrors.IsResourceNotFoundError(err)).To(BeTrue())
			Expect(out.Matched).To(BeFalse())
		})
	})

	Context("provisioning", func() {
		// Given a container that brings its agent online once started
		// When the agent is provisioned
		// Then the world holds the online agent and its container
		It("should provision an agent through the API", func() {
			// Arrange
			runner.onCreds = func(creds infra.AgentCredentials) {
				server.SetAgentState(creds.ID, orb.AgentOnline)
			}

			// Act
			a, err := world.ProvisionAgent(ctx, tags)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(a.State).To(Equal(orb.AgentNew))
			Expect(world.Agent).To(Equal(a))
			Expect(world.ContainerID).To(Equal("container-1"))
			Expect(world.EnsureAgentStatus(a.ID, orb.AgentOnline)).To(Succeed())
		})

		It("should start the container with the agent credentials", func() {
			a, err := world.CreateAgent(ctx, tags)
			Expect(err).ToNot(HaveOccurred())
			onlineAfter(a.ID, 1)

			id, err := world.StartAgent()
			Expect(err).ToNot(HaveOccurred())
			Expect(world.EnsureAgentStatus(a.ID, orb.AgentOnline)).To(Succeed())

			Expect(id).To(Equal(world.ContainerID))
			Expect(runner.creds).To(ConsistOf(infra.AgentCredentials{ID: a.ID, ChannelID: a.ChannelID, Key: a.Key}))
		})

		// Given an agent started from a config file that registers itself
		// When it is self-provisioned
		// Then the world holds the agent found by name
		It("should self-provision an agent from a config file", func() {
			// Arrange
			runner.onFile = func(file *payload.AgentConfigFile) {
				defer GinkgoRecover()
				a, err := client.CreateAgent(ctx, payload.AgentRequest{Name: file.Orb.Cloud.Config.AgentName, OrbTags: file.Orb.Tags})
				Expect(err).ToNot(HaveOccurred())
				server.SetAgentState(a.ID, orb.AgentOnline)
			}

			// Act
			a, err := world.SelfProvisionAgent(ctx, tags, 10853, orb.AgentOnline)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(world.Agent).To(Equal(a))
			Expect(a.OrbTags).To(Equal(tags))
			Expect(runner.files).To(HaveLen(1))
			file := runner.files[0]
			Expect(file.Orb.Cloud.Config.AutoProvision).To(BeTrue())
			Expect(file.Orb.Cloud.API.Token).ToNot(BeEmpty())
			Expect(file.Orb.Backends).To(HaveKeyWithValue(payload.BackendPktvisor, HaveField("APIPort", 10853)))
		})

		It("should fail when the self-provisioned agent never shows up", func() {
			_, err := world.SelfProvisionAgent(ctx, tags, 10853, orb.AgentOnline)

			Expect(orbErrors.IsConditionNotMetError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("agent listed by name"))
		})
	})

	Context("policies, groups and datasets", func() {
		var agent *orb.Agent

		BeforeEach(func() {
			var err error
			agent, err = world.CreateAgent(ctx, tags)
			Expect(err).ToNot(HaveOccurred())
			server.SetAgentState(agent.ID, orb.AgentOnline)
		})

		// Given two policies linked to a group matching the agent
		// When we wait for them
		// Then the heartbeat lists both policies, each with one dataset, and the group
		It("should see policies, datasets and groups converge", func() {
			// Arrange
			group, err := world.CreateGroup(ctx, tags)
			Expect(err).ToNot(HaveOccurred())
			other, err := world.CreateGroup(ctx, payload.RandomTags(1, payload.TagPrefix))
			Expect(err).ToNot(HaveOccurred())
			sink, err := world.CreateSink(ctx, "https://prom.example.com/api/prom/push", "user", "pass")
			Expect(err).ToNot(HaveOccurred())
			for _, h := range []string{payload.HandlerDNS, payload.HandlerNet} {
				p, err := world.CreatePolicy(ctx, newPolicy(h))
				Expect(err).ToNot(HaveOccurred())
				_, err = world.CreateDataset(ctx, group, p, sink)
				Expect(err).ToNot(HaveOccurred())
			}

			// Act
			ids, err := world.EnsurePoliciesApplied(agent.ID, 2)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(ids).To(ConsistOf(world.PolicyIDs()))
			Expect(world.EnsureDatasets(agent.ID, world.PolicyIDs(), 1)).To(Succeed())
			Expect(world.EnsureGroupsMatching(agent.ID, group.ID)).To(Succeed())
			Expect(world.DatasetAppliedAt).ToNot(BeZero())

			err = world.EnsureGroupsMatching(agent.ID, group.ID, other.ID)
			Expect(orbErrors.IsConditionNotMetError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("missing [" + other.ID + "]"))
		})

		// Given two policies applied to the agent
		// When we wait for only one of them
		// Then the extra policy is tolerated and an unknown one is reported missing
		It("should wait for a subset of the running policies", func() {
			// Arrange
			group, err := world.CreateGroup(ctx, tags)
			Expect(err).ToNot(HaveOccurred())
			var ids []string
			for _, h := range []string{payload.HandlerDNS, payload.HandlerNet} {
				p, err := world.CreatePolicy(ctx, newPolicy(h))
				Expect(err).ToNot(HaveOccurred())
				_, err = world.CreateDataset(ctx, group, p)
				Expect(err).ToNot(HaveOccurred())
				ids = append(ids, p.ID)
			}

			// Act
			err = world.EnsurePoliciesRunning(agent.ID, ids[0])

			// Assert
			Expect(err).ToNot(HaveOccurred())
			err = world.EnsurePoliciesRunning(agent.ID, ids[0], "unknown-policy")
			Expect(orbErrors.IsConditionNotMetError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("missing [unknown-policy]"))
		})

		It("should report the policies short of datasets", func() {
			group, err := world.CreateGroup(ctx, tags)
			Expect(err).ToNot(HaveOccurred())
			p, err := world.CreatePolicy(ctx, newPolicy(payload.HandlerDHCP))
			Expect(err).ToNot(HaveOccurred())
			_, err = world.CreateDataset(ctx, group, p)
			Expect(err).ToNot(HaveOccurred())

			err = world.EnsureDatasets(agent.ID, []string{p.ID}, 2)

			Expect(orbErrors.IsConditionNotMetError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("policies with 2 datasets"))
		})

		It("should report a failed policy state", func() {
			_, err := world.EnsurePoliciesApplied(agent.ID, 1)

			Expect(orbErrors.IsConditionNotMetError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("expected 1, observed 0"))
		})

		It("should forget a removed policy", func() {
			p, err := world.CreatePolicy(ctx, newPolicy(payload.HandlerDNS))
			Expect(err).ToNot(HaveOccurred())

			Expect(world.RemovePolicy(ctx, p)).To(Succeed())

			Expect(world.Policies).To(BeEmpty())
			Expect(world.ConsideredSince).ToNot(BeZero())
		})
	})

	Context("logs", func() {
		var since time.Time

		BeforeEach(func() {
			since = time.Now().Add(-time.Minute)
			runner.progressive = true
		})

		// Given policy lines written one by one, one of them before since
		// When we wait for the applied message of both policies
		// Then the stale line does not count and the scan ends on the last line
		It("should find the message for every policy after since", func() {
			// Arrange
			runner.logs = []string{
				logLine(since, "policy applied successfully", "policy_id", "p1"),
				"not json",
				logLine(since.Add(time.Second), "policy applied successfully", "policy_id", "p1"),
				logLine(since.Add(2*time.Second), "policy applied successfully", "policy_id", "p2"),
			}

			// Act
			out, err := world.WaitForPolicyLogs("c1", "policy applied successfully", []string{"p1", "p2"}, since)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Matched).To(BeTrue())
			Expect(out.Found()).To(ConsistOf("p1", "p2"))
			Expect(out.Lines).To(HaveLen(4))
		})

		It("should report the policies still missing", func() {
			runner.logs = []string{logLine(since.Add(time.Second), "policy applied successfully", "policy_id", "p1")}

			err := world.EnsurePolicyLogs("c1", "policy applied successfully", []string{"p1", "p2"}, since)

			Expect(orbErrors.IsConditionNotMetError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("missing [p2]"))
		})

		It("should match the exact message", func() {
			runner.logs = []string{
				logLine(since.Add(time.Second), "sending capabilities to orb"),
				logLine(since.Add(time.Second), "sending capabilities"),
			}

			Expect(world.EnsureLogMessage("c1", "sending capabilities", since)).To(Succeed())
			Expect(runner.revealed).To(Equal(2))
		})

		It("should see every group subscription", func() {
			runner.logs = []string{
				logLine(since, "completed RPC subscription to group", "group_name", "g1"),
				logLine(since, "completed RPC subscription to group", "group_name", "g2"),
			}

			Expect(world.EnsureGroupSubscription("c1", "completed RPC subscription to group", []string{"g1", "g2"})).To(Succeed())
		})

		It("should see a removed policy stopped and deleted", func() {
			name := payload.RandomName(payload.PolicyPrefix)
			runner.logs = []string{
				`{"ts":"` + since.Add(time.Second).UTC().Format(time.RFC3339) + `","log":"policy [` + name + `]: stopping"}`,
				`{"ts":` + "1" + `,"log":"DELETE /api/v1/policies/` + name + ` 200"}`,
				`{"ts":"` + since.Add(2*time.Second).UTC().Format(time.RFC3339) + `","log":"DELETE /api/v1/policies/` + name + ` 200"}`,
			}

			out, err := world.WaitForPolicyStoppedAndRemoved("c1", name, since)

			Expect(err).ToNot(HaveOccurred())
			Expect(out.Matched).To(BeTrue())
			Expect(runner.revealed).To(Equal(3))
		})

		It("should fail when a removed policy still logs", func() {
			runner.progressive = false
			runner.logs = []string{logLine(since.Add(time.Second), "scraped metrics for policy", "policy_id", "p1")}

			err := world.EnsureNoPolicyLogs("c1", "scraped metrics for policy", []string{"p1"}, since)
			Expect(orbErrors.IsConditionNotMetError(err)).To(BeTrue())

			Expect(world.EnsureNoPolicyLogs("c1", "scraped metrics for policy", []string{"p1"}, since.Add(time.Hour))).To(Succeed())
		})
	})

	Context("containers", func() {
		It("should wait for the container state", func() {
			runner.states = []string{infra.StateRunning, infra.StateRunning, infra.StateExited}

			out, err := world.WaitForContainerState("c1", infra.StateExited)

			Expect(err).ToNot(HaveOccurred())
			Expect(out.Matched).To(BeTrue())
			Expect(runner.stateReads).To(Equal(3))
		})

		It("should fail when the container keeps running", func() {
			err := world.EnsureContainerState("c1", infra.StateExited)

			Expect(orbErrors.IsConditionNotMetError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("expected exited, observed running"))
		})
	})

	Context("fleet database", func() {
		It("should refuse fleet waiters without a database", func() {
			_, err := world.WaitForFleetAgentState("a1", orb.AgentOnline)
			Expect(err).To(MatchError(ContainSubstring("not configured")))
		})

		It("should wait for the stored state and group membership", func() {
			fleet := &fakeFleet{
				states: []string{orb.AgentNew, orb.AgentOnline},
				groups: [][]string{{"g1"}, {"g1", "g2"}},
			}
			world = steps.NewWorld(testConfiguration(), client, runner, steps.WithFleetDB(fleet))

			Expect(world.EnsureFleetAgentState("a1", orb.AgentOnline)).To(Succeed())
			fleet.reads = 0
			Expect(world.EnsureFleetGroups("a1", "g1", "g2")).To(Succeed())
			fleet.reads = 0
			err := world.EnsureFleetGroups("a1", "g3")
			Expect(orbErrors.IsConditionNotMetError(err)).To(BeTrue())
		})
	})

	Context("agent version", func() {
		var agent *orb.Agent

		BeforeEach(func() {
			var err error
			agent, err = world.CreateAgent(ctx, tags)
			Expect(err).ToNot(HaveOccurred())
			server.SetAgentState(agent.ID, orb.AgentOnline)
			server.SetAgentVersion(agent.ID, "v0.22.1")
		})

		DescribeTable("should compare the agent version with the minimum",
			func(minVersion string, ok bool) {
				err := world.EnsureAgentVersion(agent.ID, minVersion)
				if ok {
					Expect(err).ToNot(HaveOccurred())
					return
				}
				Expect(orbErrors.IsConditionNotMetError(err)).To(BeTrue())
			},
			Entry("lower minimum", "0.20.0", true),
			Entry("same version", "v0.22.1", true),
			Entry("higher minimum", "1.0.0", false),
		)

		It("should reject an invalid minimum", func() {
			err := world.EnsureAgentVersion(agent.ID, "latest")
			Expect(err).To(MatchError(ContainSubstring("invalid minimum agent version")))
		})
	})

	Context("cleanup", func() {
		// Given prefixed resources of every kind and one foreign policy
		// When the janitor runs
		// Then only the prefixed resources are gone
		It("should delete every prefixed resource and nothing else", func() {
			// Arrange
			_, err := world.CreateAgent(ctx, tags)
			Expect(err).ToNot(HaveOccurred())
			group, err := world.CreateGroup(ctx, tags)
			Expect(err).ToNot(HaveOccurred())
			sink, err := world.CreateSink(ctx, "https://prom.example.com/api/prom/push", "user", "pass")
			Expect(err).ToNot(HaveOccurred())
			for _, h := range []string{payload.HandlerDNS, payload.HandlerNet, payload.HandlerDHCP} {
				p, err := world.CreatePolicy(ctx, newPolicy(h))
				Expect(err).ToNot(HaveOccurred())
				_, err = world.CreateDataset(ctx, group, p, sink)
				Expect(err).ToNot(HaveOccurred())
			}
			foreign := newPolicy(payload.HandlerBGP)
			foreign.Name = "production_policy"
			_, err = client.CreatePolicy(ctx, foreign)
			Expect(err).ToNot(HaveOccurred())

			// Act
			deleted, err := steps.NewJanitor(client, 3).Clean(ctx)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(deleted).To(Equal(9))
			Expect(server.Counts()).To(Equal(map[string]int{
				"agents": 0, "groups": 0, "policies": 1, "datasets": 0, "sinks": 0,
			}))
		})

		It("should remove containers and resources", func() {
			_, err := world.CreateGroup(ctx, tags)
			Expect(err).ToNot(HaveOccurred())

			Expect(world.Cleanup(ctx)).To(Succeed())

			Expect(runner.removed).To(Equal(1))
			Expect(server.Counts()["groups"]).To(Equal(0))
		})
	})
})
