package spool

import (
	"fmt"
	"slices"
)

// ParamKind describes how a declared parameter may be supplied.
type ParamKind uint8

const (
	// Positional parameters may be passed by position or by keyword.
	Positional ParamKind = iota
	// KeywordOnly parameters may only be passed by keyword.
	KeywordOnly
	// VarPositional collects positional arguments beyond the declared ones.
	VarPositional
	// VarKeyword collects keyword arguments that match no declared parameter.
	VarKeyword
)

func (k ParamKind) String() string {
	switch k {
	case Positional:
		return "positional"
	case KeywordOnly:
		return "keyword-only"
	case VarPositional:
		return "var-positional"
	case VarKeyword:
		return "var-keyword"
	default:
		return fmt.Sprintf("ParamKind(%d)", uint8(k))
	}
}

// keyword reports whether a parameter of this kind can be filled by name.
func (k ParamKind) keyword() bool {
	return k == Positional || k == KeywordOnly
}

// Param is one entry of a task's declared parameter list.
type Param struct {
	Name     string
	Kind     ParamKind
	Required bool
}

// Arg declares a required positional-or-keyword parameter.
func Arg(name string) Param {
	return Param{Name: name, Kind: Positional, Required: true}
}

// OptionalArg declares a positional-or-keyword parameter with a default.
func OptionalArg(name string) Param {
	return Param{Name: name, Kind: Positional}
}

// Kwarg declares an optional keyword-only parameter.
func Kwarg(name string) Param {
	return Param{Name: name, Kind: KeywordOnly}
}

// RequiredKwarg declares a keyword-only parameter that must be passed.
func RequiredKwarg(name string) Param {
	return Param{Name: name, Kind: KeywordOnly, Required: true}
}

// VarArgs declares a catch-all for extra positional arguments.
func VarArgs(name string) Param {
	return Param{Name: name, Kind: VarPositional}
}

// VarKwargs declares a catch-all for extra keyword arguments.
func VarKwargs(name string) Param {
	return Param{Name: name, Kind: VarKeyword}
}

// signature is the validated, indexed form of a parameter list.
type signature struct {
	params     []Param
	positional []string
	byName     map[string]Param
	varArgs    string
	varKwargs  string
}

func newSignature(params []Param) (*signature, error) {
	sig := &signature{
		params: slices.Clone(params),
		byName: make(map[string]Param, len(params)),
	}
	for _, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: parameter without a name", ErrInvalidSignature)
		}
		if _, dup := sig.byName[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate parameter %q", ErrInvalidSignature, p.Name)
		}
		switch p.Kind {
		case Positional:
			sig.positional = append(sig.positional, p.Name)
		case KeywordOnly:
		case VarPositional:
			if sig.varArgs != "" {
				return nil, fmt.Errorf("%w: more than one var-positional parameter", ErrInvalidSignature)
			}
			sig.varArgs = p.Name
		case VarKeyword:
			if sig.varKwargs != "" {
				return nil, fmt.Errorf("%w: more than one var-keyword parameter", ErrInvalidSignature)
			}
			sig.varKwargs = p.Name
		default:
			return nil, fmt.Errorf("%w: parameter %q has unknown kind %s", ErrInvalidSignature, p.Name, p.Kind)
		}
		sig.byName[p.Name] = p
	}
	return sig, nil
}

// acceptsKeyword reports whether name is an explicitly declared keyword-capable parameter.
func (s *signature) acceptsKeyword(name string) bool {
	p, ok := s.byName[name]
	return ok && p.Kind.keyword()
}

// bind checks that args and kwargs could be passed to a function with this
// signature. reserved names (the envelope parameter) may not be supplied.
func (s *signature) bind(args []any, kwargs map[string]any, reserved string) error {
	if len(args) > len(s.positional) && s.varArgs == "" {
		return fmt.Errorf("%w: takes %d positional arguments but %d were given",
			ErrInvalidArguments, len(s.positional), len(args))
	}

	filled := make(map[string]bool, len(s.params))
	for i := 0; i < len(args) && i < len(s.positional); i++ {
		filled[s.positional[i]] = true
	}

	for name := range kwargs {
		if reserved != "" && name == reserved {
			return fmt.Errorf("%w: %q is reserved for the execution envelope", ErrInvalidArguments, name)
		}
		if s.acceptsKeyword(name) {
			if filled[name] {
				return fmt.Errorf("%w: multiple values for argument %q", ErrInvalidArguments, name)
			}
			filled[name] = true
			continue
		}
		if s.varKwargs == "" {
			return fmt.Errorf("%w: unexpected keyword argument %q", ErrInvalidArguments, name)
		}
	}

	for _, p := range s.params {
		if p.Required && p.Kind.keyword() && !filled[p.Name] && p.Name != reserved {
			return fmt.Errorf("%w: missing required argument %q", ErrInvalidArguments, p.Name)
		}
	}
	return nil
}
