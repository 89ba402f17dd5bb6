package infra

import "github.com/containers/podman/v5/pkg/specgen"

func (c *ContainerConfig) Spec() *specgen.SpecGenerator {
	return c.spec()
}

var SplitLines = splitLines
