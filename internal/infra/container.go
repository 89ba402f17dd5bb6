package infra

import (
	"maps"

	"github.com/containers/podman/v5/pkg/specgen"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	nettypes "go.podman.io/common/libnetwork/types"
)

type bindMount struct {
	source   string
	dest     string
	readOnly bool
}

type ContainerConfig struct {
	name        string
	image       string
	cmd         []string
	ports       map[int]int
	envVars     map[string]string
	volumes     map[string]string
	binds       []bindMount
	hostNetwork bool
}

// NewContainerConfig creates a new ContainerConfig with mandatory name and image.
func NewContainerConfig(name, image string) *ContainerConfig {
	return &ContainerConfig{
		name:    name,
		image:   image,
		ports:   make(map[int]int),
		envVars: make(map[string]string),
		volumes: make(map[string]string),
	}
}

// WithPort adds a port mapping (hostPort -> containerPort).
func (c *ContainerConfig) WithPort(hostPort, containerPort int) *ContainerConfig {
	c.ports[hostPort] = containerPort
	return c
}

// WithEnvVar adds a single environment variable.
func (c *ContainerConfig) WithEnvVar(key, value string) *ContainerConfig {
	c.envVars[key] = value
	return c
}

// WithEnvVars adds multiple environment variables.
func (c *ContainerConfig) WithEnvVars(envVars map[string]string) *ContainerConfig {
	maps.Copy(c.envVars, envVars)
	return c
}

// WithVolume adds a named volume mapping (volumeName -> containerPath).
func (c *ContainerConfig) WithVolume(volumeName, containerPath string) *ContainerConfig {
	c.volumes[volumeName] = containerPath
	return c
}

// WithBindMount mounts a host path read-only into the container.
func (c *ContainerConfig) WithBindMount(hostPath, containerPath string) *ContainerConfig {
	c.binds = append(c.binds, bindMount{source: hostPath, dest: containerPath, readOnly: true})
	return c
}

// WithCmd sets the command to run in the container.
func (c *ContainerConfig) WithCmd(cmd ...string) *ContainerConfig {
	c.cmd = cmd
	return c
}

// WithHostNetwork shares the host network namespace. Port mappings are
// ignored by podman in this mode.
func (c *ContainerConfig) WithHostNetwork() *ContainerConfig {
	c.hostNetwork = true
	return c
}

func (c *ContainerConfig) Name() string {
	return c.name
}

func (c *ContainerConfig) spec() *specgen.SpecGenerator {
	s := specgen.NewSpecGenerator(c.image, false)
	s.Name = c.name
	s.Command = c.cmd
	s.Env = c.envVars
	if c.hostNetwork {
		s.NetNS = specgen.Namespace{NSMode: specgen.Host}
	}

	if len(c.ports) > 0 && !c.hostNetwork {
		s.PortMappings = make([]nettypes.PortMapping, 0, len(c.ports))
		for hostPort, containerPort := range c.ports {
			s.PortMappings = append(s.PortMappings, nettypes.PortMapping{
				HostPort:      uint16(hostPort),
				ContainerPort: uint16(containerPort),
				Protocol:      "tcp",
			})
		}
	}

	if len(c.volumes) > 0 {
		s.Volumes = make([]*specgen.NamedVolume, 0, len(c.volumes))
		for volumeName, containerPath := range c.volumes {
			s.Volumes = append(s.Volumes, &specgen.NamedVolume{
				Name: volumeName,
				Dest: containerPath,
			})
		}
	}

	for _, b := range c.binds {
		opts := []string{"rbind"}
		if b.readOnly {
			opts = append(opts, "ro")
		}
		s.Mounts = append(s.Mounts, specs.Mount{
			Type:        "bind",
			Source:      b.source,
			Destination: b.dest,
			Options:     opts,
		})
	}

	return s
}
