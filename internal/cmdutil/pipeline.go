package cmdutil

import (
	"github.com/opmodel/capwire/internal/config"
	"github.com/opmodel/capwire/internal/pipeline"
	"github.com/opmodel/capwire/internal/unit"
)

// PipelineOptions maps the effective configuration onto build options.
func PipelineOptions(cfg *config.Config, units []unit.Location) pipeline.Options {
	return pipeline.Options{
		Units:        units,
		OutputDir:    cfg.OutputDir,
		ResourcesDir: cfg.ResourcesDir,
		DefaultLazy:  cfg.DefaultLazy,
		Incremental:  cfg.Incremental,
		Workers:      cfg.Workers,
		Packages:     cfg.Packages,
		Archives:     cfg.Archives,
		Ignore:       cfg.Scan.Ignore,
	}
}
