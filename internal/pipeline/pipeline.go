// Package pipeline runs a capwire build over a set of units.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sort"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opmodel/capwire/internal/aggregate"
	"github.com/opmodel/capwire/internal/codegen"
	"github.com/opmodel/capwire/internal/config"
	"github.com/opmodel/capwire/internal/manifest"
	"github.com/opmodel/capwire/internal/output"
	"github.com/opmodel/capwire/internal/repackage"
	"github.com/opmodel/capwire/internal/report"
	"github.com/opmodel/capwire/internal/rewrite"
	"github.com/opmodel/capwire/internal/scan"
	"github.com/opmodel/capwire/internal/unit"
	"github.com/opmodel/capwire/internal/universe"
)

// Options configures a build.
type Options struct {
	// Units lists the input units in input order.
	Units []unit.Location

	// OutputDir receives outputs of units without an explicit output.
	OutputDir string

	// ResourcesDir receives the module-register artifact and the lock file.
	ResourcesDir string

	DefaultLazy bool

	// Incremental keeps the artifact entry of an already recorded module.
	Incremental bool

	// Workers bounds per-unit concurrency. Zero or less means unbounded.
	Workers int

	Packages config.FilterConfig
	Archives config.FilterConfig

	// Ignore holds gitignore-style patterns of entries never scanned.
	Ignore []string
}

// Validate checks that the options can run. dryRun builds need no output
// locations.
func (o *Options) Validate(dryRun bool) error {
	if len(o.Units) == 0 {
		return &OptionsError{Field: "units", Reason: "no input units; pass --unit or set units in the config file"}
	}
	if dryRun {
		return nil
	}
	if o.OutputDir == "" {
		return &OptionsError{Field: "outputDir", Reason: "must be set"}
	}
	if o.ResourcesDir == "" {
		return &OptionsError{Field: "resourcesDir", Reason: "must be set"}
	}
	return nil
}

// UnitReport is the outcome for one unit.
type UnitReport struct {
	Name   string
	Input  string
	Output string

	// Status is one of the output.Status* values.
	Status string

	// Rewritten counts the files whose wired variables were rewritten.
	Rewritten int
}

// Result is the outcome of a build.
type Result struct {
	// Host is the import path of the registry host package.
	Host     string
	Bindings *aggregate.BindingMap
	Wired    []*scan.WiredField
	Lock     *report.Lock

	// Units is in input order.
	Units []UnitReport

	// LockPath and PropertiesPath are empty for dry runs.
	LockPath       string
	PropertiesPath string
}

// Pipeline runs builds.
type Pipeline struct {
	opts Options
}

// New returns a Pipeline for opts.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts}
}

// Build runs every phase and writes the output units, the module-register
// artifact and the lock file.
//
// Phase sequence:
//  1. OPEN:      unit.Open for every location
//  2. COLLECT:   universe.Collect → host unit + other units
//  3. SCAN:      scan.Scanner.Scan → descriptors + wired vars
//  4. AGGREGATE: aggregate.Aggregate → binding map
//  5. REWRITE:   rewrite.Rewriter.Rewrite → edited consumer files
//  6. GENERATE:  codegen.Generate → bootstrap file in the host package
//  7. REPACKAGE: other units concurrently, then the host unit
//  8. RECORD:    module-register artifact + lock file
//
// Phases 1-6 never write. Any error before phase 7 leaves every output
// location untouched.
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	return p.run(ctx, false)
}

// Inspect runs phases 1-6 and reports what Build would do.
func (p *Pipeline) Inspect(ctx context.Context) (*Result, error) {
	return p.run(ctx, true)
}

func (p *Pipeline) run(ctx context.Context, dryRun bool) (*Result, error) {
	if err := p.opts.Validate(dryRun); err != nil {
		return nil, err
	}

	// Phase 1: OPEN
	units, err := openUnits(p.opts.Units)
	if err != nil {
		return nil, err
	}

	// Phase 2: COLLECT
	u, hostUnit, others, err := universe.Collect(ctx, units, universe.WithWorkers(p.opts.Workers))
	if err != nil {
		return nil, err
	}
	defer u.Close()

	// Phase 3: SCAN
	filter, err := scan.NewFilter(p.opts.Packages, p.opts.Archives, p.opts.Ignore)
	if err != nil {
		return nil, err
	}
	validator, err := manifest.NewValidator()
	if err != nil {
		return nil, err
	}
	res, err := scan.New(u, scan.Options{
		Filter:      filter,
		Validator:   validator,
		DefaultLazy: p.opts.DefaultLazy,
		Workers:     p.opts.Workers,
	}).Scan(ctx)
	if err != nil {
		return nil, err
	}

	// Phase 4: AGGREGATE
	bindings, err := aggregate.Aggregate(u, res)
	if err != nil {
		return nil, err
	}

	// Phase 5: REWRITE
	edits, err := rewrite.New(u).Rewrite(res)
	if err != nil {
		return nil, err
	}

	// Phase 6: GENERATE
	gen, err := codegen.Generate(u, bindings)
	if err != nil {
		return nil, err
	}

	plans := make(map[*unit.Unit]*repackage.Plan, len(units))
	for _, un := range u.Units() {
		plan := repackage.NewPlan(un, un.Location.OutputPath(un.Index, p.opts.OutputDir))
		for name, data := range edits[un] {
			plan.Put(name, data, true)
		}
		plans[un] = plan
	}
	if changed, err := bootstrapChanged(hostUnit, gen); err != nil {
		return nil, err
	} else if changed {
		plans[hostUnit].Put(gen.Entry, gen.Data, gen.Replaced)
	}

	result := &Result{
		Host:     u.Host().ImportPath,
		Bindings: bindings,
		Wired:    res.Wired(),
	}
	result.Lock = report.NewLock(result.Host, bindings, result.Wired)
	result.Units = unitReports(u.Units(), plans, edits, hostUnit)

	output.Debug("build planned",
		"host", result.Host,
		"bindings", bindings.Len(),
		"wired", len(result.Wired),
		"dryRun", dryRun,
	)
	if dryRun {
		return result, nil
	}

	// Phase 7: REPACKAGE
	otherPlans := make([]*repackage.Plan, 0, len(others))
	for _, un := range others {
		otherPlans = append(otherPlans, plans[un])
	}
	var errs []error
	if err := repackage.WriteAll(ctx, otherPlans, p.opts.Workers); err != nil {
		errs = append(errs, err)
	}
	if err := repackage.Write(ctx, plans[hostUnit]); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		markFailed(result.Units, errs)
		return result, utilerrors.NewAggregate(errs)
	}

	// Phase 8: RECORD
	result.PropertiesPath = filepath.Join(p.opts.ResourcesDir, manifest.PropertiesFile)
	if err := p.record(result.PropertiesPath, res); err != nil {
		return result, err
	}
	result.LockPath = filepath.Join(p.opts.ResourcesDir, report.LockFile)
	if _, err := report.WriteLock(result.LockPath, result.Lock); err != nil {
		return result, err
	}

	output.Debug("build complete", "lock", result.LockPath)
	return result, nil
}

func openUnits(locs []unit.Location) ([]*unit.Unit, error) {
	units := make([]*unit.Unit, 0, len(locs))
	for i, loc := range locs {
		un, err := unit.Open(i, loc)
		if err != nil {
			for _, opened := range units {
				_ = opened.Close()
			}
			return nil, err
		}
		units = append(units, un)
	}
	return units, nil
}

// bootstrapChanged reports whether gen differs from the host unit's current
// bootstrap file.
func bootstrapChanged(host *unit.Unit, gen *codegen.Output) (bool, error) {
	if !gen.Replaced {
		return true, nil
	}
	old, err := host.ReadEntry(gen.Entry)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(old, gen.Data), nil
}

func unitReports(units []*unit.Unit, plans map[*unit.Unit]*repackage.Plan, edits map[*unit.Unit]rewrite.Edits, host *unit.Unit) []UnitReport {
	ordered := append([]*unit.Unit(nil), units...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	out := make([]UnitReport, 0, len(ordered))
	for _, un := range ordered {
		plan := plans[un]
		r := UnitReport{
			Name:      un.Name(),
			Input:     un.Location.Path,
			Output:    plan.Output,
			Status:    output.StatusCopied,
			Rewritten: len(edits[un]),
		}
		switch {
		case plan.Untouched():
		case un == host && len(edits[un]) < len(plan.Modified)+len(plan.Added):
			r.Status = output.StatusGenerated
		default:
			r.Status = output.StatusRewritten
		}
		out = append(out, r)
	}
	return out
}

// markFailed sets the status of every unit named by a repackage failure.
func markFailed(reports []UnitReport, errs []error) {
	failed := sets.New[string]()
	for _, err := range utilerrors.Flatten(utilerrors.NewAggregate(errs)).Errors() {
		var we *repackage.WriteError
		if errors.As(err, &we) {
			failed.Insert(we.Output)
		}
	}
	for i := range reports {
		if failed.Has(reports[i].Output) {
			reports[i].Status = output.StatusFailed
		}
	}
}

// record adds the build's descriptors to the module-register artifact. In
// incremental mode an already recorded module keeps its entry.
func (p *Pipeline) record(path string, res *scan.Result) error {
	props, err := manifest.ReadProperties(path)
	if err != nil {
		return err
	}
	byModule := make(map[string][]string)
	for _, reg := range res.Registers() {
		byModule[reg.Module] = append(byModule[reg.Module], reg.Name)
	}
	for module, names := range byModule {
		if p.opts.Incremental && props.Has(module) {
			output.Debug("module already registered", "module", module)
			continue
		}
		props.Set(module, names)
	}
	return manifest.WriteProperties(path, props)
}
