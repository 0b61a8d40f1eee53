package ir

// Linkage is the linkage class of a global value.
type Linkage byte

const (
	ExternalLinkage Linkage = iota
	InternalLinkage
	PrivateLinkage
	CommonLinkage
)

// String implements fmt.Stringer.
func (l Linkage) String() string {
	switch l {
	case ExternalLinkage:
		return "external"
	case InternalLinkage:
		return "internal"
	case PrivateLinkage:
		return "private"
	case CommonLinkage:
		return "common"
	default:
		panic(int(l))
	}
}

// ThreadLocalMode is the thread-local storage model of a global variable.
type ThreadLocalMode byte

const (
	NotThreadLocal ThreadLocalMode = iota
	GeneralDynamicTLS
	LocalDynamicTLS
	InitialExecTLS
	LocalExecTLS
)

// GlobalVariable is a module-level variable. A global with a nil Initializer
// is a declaration. The value of a GlobalVariable used as an operand is its
// address, so its Type is a pointer to ValueType.
type GlobalVariable struct {
	Name        string
	ValueType   Type
	Const       bool
	Linkage     Linkage
	TLMode      ThreadLocalMode
	AddrSpace   uint32
	Initializer Constant
	// Attrs carries opaque attribute strings (e.g. "unnamed_addr",
	// alignment annotations) copied verbatim between modules.
	Attrs []string
}

// Type implements Value.Type.
func (g *GlobalVariable) Type() Type {
	return &PointerType{Elem: g.ValueType, AddrSpace: g.AddrSpace}
}

func (g *GlobalVariable) constant() {}

// IsDeclaration reports whether g has no initializer.
func (g *GlobalVariable) IsDeclaration() bool { return g.Initializer == nil }

// CopyAttributesFrom copies the attribute set of other onto g.
func (g *GlobalVariable) CopyAttributesFrom(other *GlobalVariable) {
	g.Attrs = append(g.Attrs[:0], other.Attrs...)
}
