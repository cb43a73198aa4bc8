package cheetah

import (
	"fmt"

	"github.com/beevik/etree"
)

// Config tag paths edited on every scenario.
const (
	sourceFileTag      = "beams/beam/source/sigproc/file"
	sigprocSinkDirTag  = "beams/beam/sinks/sink_configs/sigproc/dir"
	spCandidateDirTag  = "beams/beam/sinks/sink_configs/sp_candidate_data/dir"
	sclCandidateDirTag = "beams/beam/sinks/sink_configs/scl/dir"
)

// Config is a cheetah XML configuration under construction. It starts
// from a template shipped with the plan and is specialised per scenario
// before being written next to the scenario's data products.
type Config struct {
	doc *etree.Document
}

// LoadTemplate parses an XML configuration template.
func LoadTemplate(path string) (*Config, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("reading config template %s: %w", path, err)
	}
	return &Config{doc: doc}, nil
}

// find resolves a slash-separated tag path relative to the root
// element, so paths are written without the <cheetah> prefix.
func (c *Config) find(tagPath string) *etree.Element {
	root := c.doc.Root()
	if root == nil {
		return nil
	}
	return root.FindElement(tagPath)
}

// Set replaces the text of the element at the given slash-separated tag
// path, e.g. "beams/beam/source/sigproc/file".
func (c *Config) Set(tagPath, value string) error {
	el := c.find(tagPath)
	if el == nil {
		return fmt.Errorf("config template has no element %q", tagPath)
	}
	el.SetText(value)
	return nil
}

// Get returns the text of the element at the given tag path.
func (c *Config) Get(tagPath string) (string, error) {
	el := c.find(tagPath)
	if el == nil {
		return "", fmt.Errorf("config template has no element %q", tagPath)
	}
	return el.Text(), nil
}

// SetVector points the sigproc source at a test vector.
func (c *Config) SetVector(path string) error {
	return c.Set(sourceFileTag, path)
}

// SetCandidateDirs points every candidate sink present in the template
// at dir. Sinks the template does not declare are skipped: an SPS
// template has no scl sink and vice versa.
func (c *Config) SetCandidateDirs(dir string) error {
	found := false
	for _, tag := range []string{sigprocSinkDirTag, spCandidateDirTag, sclCandidateDirTag} {
		if el := c.find(tag); el != nil {
			el.SetText(dir)
			found = true
		}
	}
	if !found {
		return fmt.Errorf("config template declares no candidate sinks")
	}
	return nil
}

// Write serialises the configuration to path.
func (c *Config) Write(path string) error {
	c.doc.Indent(2)
	if err := c.doc.WriteToFile(path); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}
