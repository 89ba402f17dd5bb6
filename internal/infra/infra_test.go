package infra_test

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/containers/podman/v5/pkg/specgen"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"github.com/orb-community/orb-acceptance/internal/config"
	"github.com/orb-community/orb-acceptance/internal/infra"
	"github.com/orb-community/orb-acceptance/pkg/payload"
)

func TestInfra(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Infra Suite")
}

type fakeRunner struct {
	started   []*infra.ContainerConfig
	removed   []string
	removeErr map[string]error
	states    map[string]string
	logs      map[string][]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{removeErr: map[string]error{}, states: map[string]string{}, logs: map[string][]string{}}
}

func (f *fakeRunner) StartContainer(cfg *infra.ContainerConfig) (string, error) {
	f.started = append(f.started, cfg)
	id := "c" + strconv.Itoa(len(f.started))
	f.states[id] = infra.StateRunning
	return id, nil
}

func (f *fakeRunner) StopContainer(id string) error {
	f.states[id] = infra.StateExited
	return nil
}

func (f *fakeRunner) RestartContainer(id string) error {
	f.states[id] = infra.StateRunning
	return nil
}

func (f *fakeRunner) RemoveContainer(id string) error {
	if err := f.removeErr[id]; err != nil {
		return err
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeRunner) State(id string) (string, error) {
	return f.states[id], nil
}

func (f *fakeRunner) Logs(id string) ([]string, error) {
	return f.logs[id], nil
}

func testConfiguration(dir string) config.Configuration {
	cfg := config.NewConfigurationWithOptionsAndDefaults(
		config.WithCredentials(config.Credentials{Email: "tester@example.com", Password: "password123"}),
	)
	cfg.Orb.URL = "https://orb.example.com"
	cfg.Orb.VerifyTLS = false
	cfg.Agent.Interface = "eth0"
	cfg.Agent.ConfigDir = dir
	return *cfg
}

var _ = Describe("Container config", func() {
	// Given a config with ports, env, a named volume and a bind mount
	// When the podman spec is generated
	// Then every setting is carried over
	It("should translate into a podman spec", func() {
		// Arrange
		cfg := infra.NewContainerConfig("agent", "orbcommunity/orb-agent:develop").
			WithPort(10853, 10853).
			WithEnvVar("A", "1").
			WithEnvVars(map[string]string{"B": "2"}).
			WithVolume("data", "/var/lib/orb").
			WithBindMount("/tmp/agent.yaml", "/opt/orb/agent.yaml").
			WithCmd("run", "-c", "/opt/orb/agent.yaml")

		// Act
		s := cfg.Spec()

		// Assert
		Expect(s.Name).To(Equal("agent"))
		Expect(s.Env).To(Equal(map[string]string{"A": "1", "B": "2"}))
		Expect(s.Command).To(Equal([]string{"run", "-c", "/opt/orb/agent.yaml"}))
		Expect(s.PortMappings).To(HaveLen(1))
		Expect(s.PortMappings[0].HostPort).To(BeEquivalentTo(10853))
		Expect(s.Volumes).To(HaveLen(1))
		Expect(s.Mounts).To(HaveLen(1))
		Expect(s.Mounts[0].Type).To(Equal("bind"))
		Expect(s.Mounts[0].Source).To(Equal("/tmp/agent.yaml"))
		Expect(s.Mounts[0].Destination).To(Equal("/opt/orb/agent.yaml"))
		Expect(s.Mounts[0].Options).To(ConsistOf("rbind", "ro"))
	})

	It("should drop port mappings on the host network", func() {
		s := infra.NewContainerConfig("agent", "img").WithPort(1, 1).WithHostNetwork().Spec()

		Expect(s.NetNS.NSMode).To(Equal(specgen.Host))
		Expect(s.PortMappings).To(BeEmpty())
	})
})

var _ = Describe("Log lines", func() {
	DescribeTable("should split chunks into lines",
		func(chunk string, expected []string) {
			Expect(infra.SplitLines(chunk)).To(Equal(expected))
		},
		Entry("single line", `{"msg":"a"}`+"\n", []string{`{"msg":"a"}`}),
		Entry("several lines", "a\nb\r\n", []string{"a", "b\r"}),
		Entry("empty", "\n", []string(nil)),
	)
})

var _ = Describe("Agent stack", func() {
	var (
		runner *fakeRunner
		stack  *infra.AgentStack
		dir    string
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		runner = newFakeRunner()
		stack = infra.NewAgentStack(runner, testConfiguration(dir))
	})

	// Given agent credentials from the control plane
	// When the agent is started
	// Then the container gets them as environment on the host network
	It("should start an agent from credentials", func() {
		// Act
		id, err := stack.StartWithCredentials(infra.AgentCredentials{ID: "a1", ChannelID: "ch1", Key: "k1"})

		// Assert
		Expect(err).ToNot(HaveOccurred())
		Expect(id).To(Equal("c1"))
		s := runner.started[0].Spec()
		Expect(s.Env).To(HaveKeyWithValue("ORB_CLOUD_ADDRESS", "orb.example.com"))
		Expect(s.Env).To(HaveKeyWithValue("ORB_CLOUD_MQTT_ID", "a1"))
		Expect(s.Env).To(HaveKeyWithValue("ORB_CLOUD_MQTT_CHANNEL_ID", "ch1"))
		Expect(s.Env).To(HaveKeyWithValue("ORB_CLOUD_MQTT_KEY", "k1"))
		Expect(s.Env).To(HaveKeyWithValue("PKTVISOR_PCAP_IFACE_DEFAULT", "eth0"))
		Expect(s.Env).To(HaveKeyWithValue("ORB_TLS_VERIFY", "false"))
		Expect(s.NetNS.NSMode).To(Equal(specgen.Host))
		Expect(s.Name).To(HavePrefix("orb-acceptance-agent-"))
	})

	It("should write and mount the agent config file", func() {
		// Arrange
		file := payload.NewAgentConfigFile("agent_one", "https://orb.example.com", "tls://orb.example.com:8883", false).
			Pktvisor(10853).
			AutoProvision("token")

		// Act
		_, err := stack.StartWithConfigFile(file)

		// Assert
		Expect(err).ToNot(HaveOccurred())
		hostPath := filepath.Join(dir, "agent_one.yaml")
		data, err := os.ReadFile(hostPath)
		Expect(err).ToNot(HaveOccurred())
		var parsed map[string]any
		Expect(yaml.Unmarshal(data, &parsed)).To(Succeed())
		Expect(parsed).To(HaveKeyWithValue("version", "1.0"))

		s := runner.started[0].Spec()
		Expect(s.Command).To(Equal([]string{"run", "-c", file.Path()}))
		Expect(s.Mounts).To(HaveLen(1))
		Expect(s.Mounts[0].Source).To(Equal(hostPath))
		Expect(s.Mounts[0].Destination).To(Equal(file.Path()))
	})

	It("should delegate state and logs", func() {
		id, err := stack.StartWithCredentials(infra.AgentCredentials{ID: "a1"})
		Expect(err).ToNot(HaveOccurred())
		runner.logs[id] = []string{"line"}

		Expect(stack.Stop(id)).To(Succeed())
		state, err := stack.State(id)
		Expect(err).ToNot(HaveOccurred())
		Expect(state).To(Equal(infra.StateExited))

		Expect(stack.Restart(id)).To(Succeed())
		state, _ = stack.State(id)
		Expect(state).To(Equal(infra.StateRunning))

		lines, err := stack.Logs(id)
		Expect(err).ToNot(HaveOccurred())
		Expect(lines).To(ConsistOf("line"))
	})

	// Given several started agents and one failing removal
	// When everything is removed
	// Then the others are removed and the failure is reported
	It("should remove every started agent", func() {
		// Arrange
		for range 3 {
			_, err := stack.StartWithCredentials(infra.AgentCredentials{ID: "a"})
			Expect(err).ToNot(HaveOccurred())
		}
		runner.removeErr["c2"] = errors.New("no such container")

		// Act
		err := stack.RemoveAll()

		// Assert
		Expect(err).To(MatchError(ContainSubstring("removing container c2")))
		Expect(runner.removed).To(ConsistOf("c1", "c3"))
		Expect(stack.Started()).To(BeEmpty())
	})

	It("should reject an orb url without host", func() {
		cfg := testConfiguration(dir)
		cfg.Orb.URL = "not a url"
		stack = infra.NewAgentStack(runner, cfg)

		_, err := stack.StartWithCredentials(infra.AgentCredentials{ID: "a"})

		Expect(err).To(HaveOccurred())
		Expect(runner.started).To(BeEmpty())
	})
})

var _ = Describe("Free port", func() {
	It("should return a port that can be bound", func() {
		port, err := infra.FreePort()
		Expect(err).ToNot(HaveOccurred())
		Expect(port).To(BeNumerically(">", 0))

		l, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
		Expect(err).ToNot(HaveOccurred())
		Expect(l.Close()).To(Succeed())
	})
})
