package lowering

import (
	"fmt"
	"strings"
)

// Mangle derives the stable IR name for a function entry point. The name
// combines the base name with kind, uncurry-level and foreign-ness
// discriminators so distinct entry points never collide. A non-empty
// baseName overrides the declaration's own name: callers use it to
// qualify members with their owning type and to name anonymous closures.
func Mangle(ref FuncRef, baseName string) string {
	var sb strings.Builder
	sb.WriteString("q$")

	name := baseName
	if name == "" {
		name = ref.Name()
	}
	if name == "" {
		panic("lowering: mangling a closure without an anonymous name")
	}
	sb.WriteString(name)

	switch ref.Kind {
	case RefFunc:
		// No suffix for the plain entry.
	case RefGetter:
		sb.WriteString("$get")
	case RefSetter:
		sb.WriteString("$set")
	case RefAllocator:
		sb.WriteString("$alloc")
	case RefInitializer:
		sb.WriteString("$init")
	case RefEnumElement:
		sb.WriteString("$elt")
	case RefDestructor:
		sb.WriteString("$dtor")
	case RefGlobalAccessor:
		sb.WriteString("$acc")
	case RefDefaultArg:
		fmt.Fprintf(&sb, "$defarg%d", ref.DefaultArg)
	default:
		panic(fmt.Errorf("lowering: mangling unknown ref kind %d", ref.Kind))
	}

	// Level 0 still needs the suffix: for a multi-list definition the
	// level-0 thunk and the natural entry are distinct functions.
	if ref.Uncurry != NaturalUncurry {
		fmt.Fprintf(&sb, "$u%d", ref.Uncurry)
	}
	if ref.Foreign {
		sb.WriteString("$f")
	}
	return sb.String()
}
