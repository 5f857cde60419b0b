// Copyright 2026 The ListDB Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package query evaluates Datalog over the database. Entities are exposed
// through three base predicates:
//
//	entity(Space, Id)
//	field(Space, Id, Name, Value)
//	located(Space, Id, Partition)
//
// Rules derive new predicates from those; queries are single atoms against
// any declared predicate.
package query

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
	"github.com/google/mangle/unionfind"
)

const baseSchema = `
Decl entity(Space, Id) bound [/string, /number].
Decl field(Space, Id, Name, Value) bound [/string, /number, /string, /string].
Decl located(Space, Id, Partition) bound [/string, /number, /number].
`

const defaultTimeoutS = 5

type Config struct {
	TimeoutS int `json:"timeout_s"`
}

// Fact is one base fact handed to the engine.
type Fact struct {
	Predicate string
	Args      []interface{}
}

// Result holds the variable bindings of one query, one row per derived
// fact, keyed by the variable names of the query atom.
type Result struct {
	Bindings []map[string]interface{}
	Duration time.Duration
}

type Engine struct {
	cfg Config

	mu           sync.RWMutex
	store        factstore.FactStore
	programInfo  *analysis.ProgramInfo
	queryContext *mengine.QueryContext
	predicates   map[string]ast.PredicateSym
	fragments    []parse.SourceUnit
	facts        []ast.Atom
}

func NewEngine(cfg *Config) (*Engine, error) {
	if cfg.TimeoutS <= 0 {
		cfg.TimeoutS = defaultTimeoutS
	}
	e := &Engine{
		cfg:   *cfg,
		store: factstore.NewSimpleInMemoryStore(),
	}
	if err := e.loadUnit(baseSchema); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadRules compiles a Datalog fragment of rules and declarations on top
// of the base schema. Fragments accumulate.
func (e *Engine) LoadRules(rules string) error {
	return e.loadUnit(rules)
}

func (e *Engine) loadUnit(src string) error {
	unit, err := parse.Unit(strings.NewReader(src))
	if err != nil {
		return errors.Info(err, "parse rules failed")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.fragments = append(e.fragments, unit)
	if err := e.rebuildProgramLocked(); err != nil {
		e.fragments = e.fragments[:len(e.fragments)-1]
		return errors.Info(err, "analyze rules failed")
	}
	return e.evalLocked()
}

func (e *Engine) rebuildProgramLocked() error {
	var merged parse.SourceUnit
	for _, fragment := range e.fragments {
		merged.Clauses = append(merged.Clauses, fragment.Clauses...)
		merged.Decls = append(merged.Decls, fragment.Decls...)
	}

	programInfo, err := analysis.AnalyzeOneUnit(merged, nil)
	if err != nil {
		return err
	}

	predToDecl := make(map[ast.PredicateSym]*ast.Decl, len(programInfo.Decls))
	predicates := make(map[string]ast.PredicateSym, len(programInfo.Decls))
	for sym, decl := range programInfo.Decls {
		predicates[sym.Symbol] = sym
		predToDecl[sym] = decl
	}
	predToRules := make(map[ast.PredicateSym][]ast.Clause)
	for _, clause := range programInfo.Rules {
		predToRules[clause.Head.Predicate] = append(predToRules[clause.Head.Predicate], clause)
	}

	e.programInfo = programInfo
	e.predicates = predicates
	e.queryContext = &mengine.QueryContext{
		PredToRules: predToRules,
		PredToDecl:  predToDecl,
		Store:       e.store,
	}
	return nil
}

// Replace swaps the whole base fact set and re-derives every rule. The
// engine has no incremental path; callers rebuild from storage.
func (e *Engine) Replace(ctx context.Context, facts []Fact) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	atoms := make([]ast.Atom, 0, len(facts))
	for i := range facts {
		atom, err := e.factToAtomLocked(&facts[i])
		if err != nil {
			return err
		}
		atoms = append(atoms, atom)
	}

	e.facts = atoms
	return e.evalLocked()
}

func (e *Engine) evalLocked() error {
	store := factstore.NewSimpleInMemoryStore()
	for _, atom := range e.facts {
		store.Add(atom)
	}
	e.store = store
	e.queryContext.Store = store

	if _, err := mengine.EvalProgramWithStats(e.programInfo, e.store); err != nil {
		return errors.Info(err, "evaluate rules failed")
	}
	return nil
}

// Query evaluates one atom, e.g. `open_item(L, I)`, and returns the
// bindings of its variables.
func (e *Engine) Query(ctx context.Context, query string) (*Result, error) {
	atom, vars, err := parseQuery(query)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	queryContext := e.queryContext
	decl, ok := queryContext.PredToDecl[atom.Predicate]
	if !ok {
		e.mu.RUnlock()
		return nil, errors.Newf("predicate %s is not declared", atom.Predicate.Symbol)
	}
	// plain `Decl ... bound [...]` declarations carry no mode descriptors;
	// treat every argument as free in that case
	var mode ast.Mode
	if modes := decl.Modes(); len(modes) > 0 {
		mode = modes[0]
	} else {
		mode = make(ast.Mode, len(atom.Args))
		for i := range mode {
			mode[i] = ast.ArgModeInputOutput
		}
	}
	e.mu.RUnlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.TimeoutS)*time.Second)
		defer cancel()
	}

	start := time.Now()
	resultChan := make(chan []map[string]interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		e.mu.RLock()
		defer e.mu.RUnlock()

		var rows []map[string]interface{}
		err := queryContext.EvalQuery(atom, mode, unionfind.New(), func(fact ast.Atom) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			row := make(map[string]interface{}, len(vars))
			for name, idx := range vars {
				row[name] = termToValue(fact.Args[idx])
			}
			rows = append(rows, row)
			return nil
		})
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- rows
	}()

	select {
	case rows := <-resultChan:
		return &Result{Bindings: rows, Duration: time.Since(start)}, nil
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, errors.Info(ctx.Err(), "query evaluation timed out")
	}
}

// FactCount reports the size of the current base fact set.
func (e *Engine) FactCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.facts)
}

func (e *Engine) factToAtomLocked(fact *Fact) (ast.Atom, error) {
	sym, ok := e.predicates[fact.Predicate]
	if !ok {
		return ast.Atom{}, errors.Newf("predicate %s is not declared", fact.Predicate)
	}
	if len(fact.Args) != sym.Arity {
		return ast.Atom{}, errors.Newf("predicate %s expects %d args, got %d", fact.Predicate, sym.Arity, len(fact.Args))
	}

	args := make([]ast.BaseTerm, len(fact.Args))
	for i, raw := range fact.Args {
		term, err := valueToTerm(raw)
		if err != nil {
			return ast.Atom{}, errors.Info(err, "convert fact argument failed")
		}
		args[i] = term
	}
	return ast.Atom{Predicate: sym, Args: args}, nil
}

func parseQuery(query string) (ast.Atom, map[string]int, error) {
	clean := strings.TrimSpace(query)
	clean = strings.TrimPrefix(clean, "?")
	clean = strings.TrimSuffix(strings.TrimSpace(clean), ".")
	if clean == "" {
		return ast.Atom{}, nil, errors.New("empty query")
	}

	atom, err := parse.Atom(clean)
	if err != nil {
		atom, err = parse.Atom(clean + ".")
		if err != nil {
			return ast.Atom{}, nil, errors.Info(err, "parse query failed")
		}
	}

	vars := make(map[string]int, len(atom.Args))
	for idx, arg := range atom.Args {
		if variable, ok := arg.(ast.Variable); ok {
			vars[variable.Symbol] = idx
		}
	}
	return atom, vars, nil
}

func valueToTerm(value interface{}) (ast.BaseTerm, error) {
	switch v := value.(type) {
	case ast.BaseTerm:
		return v, nil
	case string:
		if strings.HasPrefix(v, "/") {
			name, err := ast.Name(v)
			if err != nil {
				return nil, err
			}
			return name, nil
		}
		return ast.String(v), nil
	case []byte:
		return ast.String(string(v)), nil
	case int:
		return ast.Number(int64(v)), nil
	case int64:
		return ast.Number(v), nil
	case uint64:
		return ast.Number(int64(v)), nil
	case uint32:
		return ast.Number(int64(v)), nil
	case float64:
		return ast.Float64(v), nil
	case bool:
		if v {
			return ast.TrueConstant, nil
		}
		return ast.FalseConstant, nil
	default:
		return nil, errors.Newf("unsupported fact argument type %T", value)
	}
}

func termToValue(term ast.BaseTerm) interface{} {
	constant, ok := term.(ast.Constant)
	if !ok {
		return term.String()
	}
	switch constant.Type {
	case ast.StringType, ast.NameType:
		return constant.Symbol
	case ast.NumberType:
		return constant.NumValue
	default:
		return constant.String()
	}
}
