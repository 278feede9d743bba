package registry

import "context"

// Namespace is the export namespace of an executed module.
type Namespace = map[string]any

// Unit is a finalized module handed to an Executor.
type Unit struct {
	URL         string
	ResponseURL string
	Handle      string
	Code        string
	Exports     []string
}

// Executor runs the finalized graph rooted at a unit and returns the root's
// namespace. The registry calls it at most once per module instance.
type Executor interface {
	Execute(ctx context.Context, unit Unit) (Namespace, error)
}

// ShellUpdater is implemented by executors that can run a cycle shell's
// update function. After an import runs, it is called once for every module
// in the imported graph whose shell no importer links to its real unit.
type ShellUpdater interface {
	UpdateShell(ctx context.Context, shell Unit, module Namespace) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, unit Unit) (Namespace, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, unit Unit) (Namespace, error) {
	return f(ctx, unit)
}

// AnalysisExecutor executes nothing. The namespace it returns maps every
// statically known export name of the unit to the unit URL, which is all a
// host-less run of the loader can know about a module.
type AnalysisExecutor struct{}

// Execute implements Executor.
func (e AnalysisExecutor) Execute(_ context.Context, unit Unit) (Namespace, error) {
	ns := make(Namespace, len(unit.Exports))
	for _, name := range unit.Exports {
		ns[name] = unit.URL
	}

	return ns, nil
}

// UpdateShell implements ShellUpdater as a no-op; the shell's bindings are
// the export names it already carries.
func (e AnalysisExecutor) UpdateShell(context.Context, Unit, Namespace) error {
	return nil
}
