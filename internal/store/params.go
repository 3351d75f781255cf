package store

import "sort"

// Params is a set of statement parameters, bound with Stmt.BindParams.
// A nil Params binds nothing.
type Params interface {
	bindTo(s *Stmt) error
}

// Positional binds values to parameters 1..n in order. Each element is
// converted with ValueOf.
type Positional []any

func (p Positional) bindTo(s *Stmt) error {
	for i, v := range p {
		if err := s.Bind(i+1, ValueOf(v)); err != nil {
			return err
		}
	}
	return nil
}

// Named binds values by parameter name. Keys may carry the ":", "@" or "$"
// prefix or omit it; see Stmt.BindNamed. Each value is converted with ValueOf.
type Named map[string]any

func (n Named) bindTo(s *Stmt) error {
	names := make([]string, 0, len(n))
	for name := range n {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.BindNamed(name, ValueOf(n[name])); err != nil {
			return err
		}
	}
	return nil
}

// Row is one result row keyed by column name.
type Row map[string]Value
