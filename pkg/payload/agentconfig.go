package payload

import (
	"fmt"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/orb-community/orb-acceptance/pkg/errors"
)

// DefaultConfigDir is where agent config files are mounted inside the container.
const DefaultConfigDir = "/opt/orb"

// AgentConfigFile is the YAML configuration read by a self-provisioning agent.
type AgentConfigFile struct {
	Version string        `yaml:"version"`
	Orb     OrbSection    `yaml:"orb"`
	Visor   *VisorSection `yaml:"visor,omitempty"`

	name string
	err  error
}

type OrbSection struct {
	Backends map[string]Backend `yaml:"backends"`
	Cloud    Cloud              `yaml:"cloud"`
	TLS      TLS                `yaml:"tls"`
	Tags     map[string]string  `yaml:"tags,omitempty"`
}

type Backend struct {
	ConfigFile string `yaml:"config_file,omitempty"`
	APIPort    int    `yaml:"api_port,omitempty"`
	OtlpPort   int    `yaml:"otlp_port,omitempty"`
}

type Cloud struct {
	API    CloudAPI    `yaml:"api"`
	MQTT   CloudMQTT   `yaml:"mqtt"`
	Config CloudConfig `yaml:"config"`
}

type CloudAPI struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token,omitempty"`
}

type CloudMQTT struct {
	Address   string `yaml:"address"`
	ID        string `yaml:"id,omitempty"`
	Key       string `yaml:"key,omitempty"`
	ChannelID string `yaml:"channel_id,omitempty"`
}

type CloudConfig struct {
	AutoProvision bool   `yaml:"auto_provision"`
	AgentName     string `yaml:"agent_name,omitempty"`
}

type TLS struct {
	Verify bool `yaml:"verify"`
}

type VisorSection struct {
	Taps map[string]TapConfig `yaml:"taps"`
}

type TapConfig struct {
	InputType string            `yaml:"input_type"`
	Config    map[string]any    `yaml:"config,omitempty"`
	Tags      map[string]string `yaml:"tags,omitempty"`
}

func NewAgentConfigFile(name, apiAddress, mqttAddress string, tlsVerify bool) *AgentConfigFile {
	return &AgentConfigFile{
		Version: "1.0",
		Orb: OrbSection{
			Backends: map[string]Backend{},
			Cloud: Cloud{
				API:  CloudAPI{Address: apiAddress},
				MQTT: CloudMQTT{Address: mqttAddress},
			},
			TLS: TLS{Verify: tlsVerify},
		},
		name: name,
	}
}

// Path is the location of the file inside the agent container.
func (c *AgentConfigFile) Path() string {
	return path.Join(DefaultConfigDir, c.name+".yaml")
}

// Pktvisor adds the pktvisor backend reading its taps from this same file.
func (c *AgentConfigFile) Pktvisor(apiPort int) *AgentConfigFile {
	c.Orb.Backends[BackendPktvisor] = Backend{ConfigFile: c.Path(), APIPort: apiPort}
	return c
}

func (c *AgentConfigFile) Otel(otlpPort int) *AgentConfigFile {
	c.Orb.Backends[BackendOtel] = Backend{OtlpPort: otlpPort}
	return c
}

// AutoProvision lets the agent register itself using an API token.
func (c *AgentConfigFile) AutoProvision(token string) *AgentConfigFile {
	c.Orb.Cloud.Config = CloudConfig{AutoProvision: true, AgentName: c.name}
	c.Orb.Cloud.API.Token = token
	return c
}

// Provisioned points the agent at existing MQTT credentials.
func (c *AgentConfigFile) Provisioned(id, key, channelID string) *AgentConfigFile {
	c.Orb.Cloud.Config = CloudConfig{AutoProvision: false}
	c.Orb.Cloud.MQTT.ID = id
	c.Orb.Cloud.MQTT.Key = key
	c.Orb.Cloud.MQTT.ChannelID = channelID
	return c
}

// Tags sets the orb tags the agent registers with.
func (c *AgentConfigFile) Tags(tags map[string]string) *AgentConfigFile {
	c.Orb.Tags = tags
	return c
}

// Tap adds a pktvisor tap. Config keys are checked against the input type.
func (c *AgentConfigFile) Tap(name, inputType string, config map[string]any, tags map[string]string) *AgentConfigFile {
	table, ok := inputConfigOptions[inputType]
	if !ok {
		c.setErr(errors.NewInvalidOptionError("agent config tap", "input_type", fmt.Sprintf("unknown input type %q", inputType)))
		return c
	}
	checked := make(map[string]any, len(config))
	for k, v := range config {
		nv, reason := table.check(k, v)
		if reason != "" {
			c.setErr(errors.NewInvalidOptionError(inputType+" tap config", k, reason))
			return c
		}
		checked[k] = nv
	}
	if c.Visor == nil {
		c.Visor = &VisorSection{Taps: map[string]TapConfig{}}
	}
	c.Visor.Taps[name] = TapConfig{InputType: inputType, Config: checked, Tags: tags}
	return c
}

func (c *AgentConfigFile) setErr(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Marshal validates the file and renders it as YAML.
func (c *AgentConfigFile) Marshal() ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.name == "" {
		return nil, errors.NewInvalidOptionError("agent config", "name", "agent name is required")
	}
	if len(c.Orb.Backends) == 0 {
		return nil, errors.NewInvalidOptionError("agent config", "backends", "at least one backend is required")
	}
	cloud := c.Orb.Cloud
	if cloud.Config.AutoProvision && cloud.API.Token == "" {
		return nil, errors.NewInvalidOptionError("agent config", "token", "auto provision requires an api token")
	}
	if !cloud.Config.AutoProvision && (cloud.MQTT.ID == "" || cloud.MQTT.Key == "" || cloud.MQTT.ChannelID == "") {
		return nil, errors.NewInvalidOptionError("agent config", "mqtt", "provisioned agents require id, key and channel_id")
	}

	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling agent config: %w", err)
	}
	return out, nil
}
