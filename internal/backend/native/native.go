package native

import (
	"strings"

	"github.com/fieldbook-labs/fieldbook/internal/backend"
	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/pkg/formula"
)

// Backend compiles plans to loadable native modules.
type Backend struct{}

// New creates the native code backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the registry key.
func (b *Backend) Name() string { return "native" }

// Supports reports the constructs the compiler translates. Function
// calls have no runtime helpers, so every Call node is rejected.
func (b *Backend) Supports(kind formula.NodeKind) bool {
	return kind != formula.KindCall && kind != formula.KindLiteralFloat
}

// Compile links the plan into a module and returns its encoded form as
// the artifact.
func (b *Backend) Compile(p *plan.Plan) (*backend.Result, error) {
	m, unsupported, err := Link(p)
	if err != nil {
		return nil, err
	}

	base := strings.ToLower(strings.ReplaceAll(p.Table.Name, " ", "_"))
	return &backend.Result{
		Backend: b.Name(),
		Artifacts: []backend.Artifact{{
			Name:     base + ".fbmod",
			Contents: m.Encode(),
		}},
		Unsupported: unsupported,
	}, nil
}

// Link compiles every supported derived field and seals the module.
// Unsupported fields, and fields depending on them, are skipped the
// same way the textual backends skip them.
func Link(p *plan.Plan) (*Module, map[string]*backend.UnsupportedConstructError, error) {
	b := New()
	unsupported := backend.CheckSupport(b, p)
	fields := backend.EmittedFields(p, unsupported)

	layout := ComputeLayout(p.Table)
	lk := newLinker()
	for _, field := range fields {
		code, err := compileField(p, layout, lk, field)
		if err != nil {
			return nil, nil, err
		}
		lk.add(field, code)
	}
	return lk.seal(), unsupported, nil
}
