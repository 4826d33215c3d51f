package kv

// RelationSpec names the pair of core identifiers a symmetric relation
// is stored under: PrimaryCore on the key being mutated directly, and
// ReciprocalCore on the neighbor keys WITH_REL chains into (e.g. group
// membership's "#GMB"/"#GIN" pair, or a partition layer's own pair).
type RelationSpec struct {
	PrimaryCore    string
	ReciprocalCore string
}

func (r RelationSpec) swapped() RelationSpec {
	return RelationSpec{PrimaryCore: r.ReciprocalCore, ReciprocalCore: r.PrimaryCore}
}

// SetVector applies verb to the vector stored at spec, committing the
// merge-walk's final vector, updating that key's abs_delta ledger, and,
// when withRel is true, chaining a WITH_DIFF-only reciprocal mutation
// onto every neighbor named in the local delta (spec.md §4.3). Each
// vector item is itself the rendered prefix of another key; rel names
// the core fields that connect a key to its reciprocal. initialFlags
// seeds the record's flags the first time spec's key is created; an
// existing record keeps its own flags across updates.
func (s *Store) SetVector(op string, spec KeySpec, verb Verb, items [][]byte, owner string, initialFlags Flags, rel *RelationSpec, withRel bool) (DeltaResult, error) {
	key := Compose(spec)

	var oldItems [][]byte
	if old, ok := s.Peek(key); ok {
		oldItems = old.Items
	}

	result := Delta(verb, oldItems, SortItems(items))

	old := s.records[key]

	if len(result.Final) == 0 {
		if old != nil {
			if err := s.Unset(key, deltaUnsetPolicy(op, owner)); err != nil {
				return result, err
			}
		}
	} else {
		proposed := &Record{
			Kind:       KindVector,
			Owner:      owner,
			Generation: generationOf(old),
			Sequence:   sequenceOf(old) + 1,
			Items:      result.Final,
		}
		if old != nil {
			proposed.Flags = old.Flags
		} else {
			proposed.Flags = initialFlags
		}
		if _, err := s.Set(key, proposed, OverwritePolicy(op, owner)); err != nil {
			return result, err
		}
	}

	s.updateAbsDelta(spec, result.Plus, result.Minus)

	if withRel && rel != nil {
		if err := s.chainReciprocal(op, spec, result, owner, initialFlags, rel); err != nil {
			return result, err
		}
	}

	return result, nil
}

func generationOf(r *Record) uint64 {
	if r == nil {
		return 0
	}
	return r.Generation
}

func sequenceOf(r *Record) uint64 {
	if r == nil {
		return 0
	}
	return r.Sequence
}

// deltaUnsetPolicy gates a vector key's removal (the merge-walk emptied
// it out) behind the same ownership rules as a direct overwrite.
func deltaUnsetPolicy(op, caller string) UpdateFunc {
	return func(old, _ *Record, arg *UpdateArg) {
		if refusal := ownershipRefusal(op, old, caller); refusal != nil {
			arg.Decision = Abort
			arg.Refusal = refusal
			return
		}
		arg.Decision = Commit
	}
}

// updateAbsDelta folds one mutation's local plus/minus into the
// cumulative abs_delta ledgers held on spec's "+" and "-" op siblings.
func (s *Store) updateAbsDelta(spec KeySpec, localPlus, localMinus [][]byte) {
	plusKey := Compose(spec.WithOp(OpPlus))
	minusKey := Compose(spec.WithOp(OpMinus))

	var prior AbsDelta
	if rec, ok := s.Peek(plusKey); ok {
		prior.Plus = rec.Items
	}
	if rec, ok := s.Peek(minusKey); ok {
		prior.Minus = rec.Items
	}

	next := applyAbsDelta(prior, localPlus, localMinus)

	if len(next.Plus) > 0 {
		s.Set(plusKey, &Record{Kind: KindVector, Items: next.Plus}, nil)
	} else {
		s.Unset(plusKey, nil)
	}
	if len(next.Minus) > 0 {
		s.Set(minusKey, &Record{Kind: KindVector, Items: next.Minus}, nil)
	} else {
		s.Unset(minusKey, nil)
	}
}

// AbsDeltaFor returns the cumulative abs_delta ledger currently recorded
// for spec's relation key.
func (s *Store) AbsDeltaFor(spec KeySpec) AbsDelta {
	var ad AbsDelta
	if rec, ok := s.Peek(Compose(spec.WithOp(OpPlus))); ok {
		ad.Plus = rec.Items
	}
	if rec, ok := s.Peek(Compose(spec.WithOp(OpMinus))); ok {
		ad.Minus = rec.Items
	}
	return ad
}

// chainReciprocal performs the WITH_REL fan-out: for every neighbor
// named in result.Plus/Minus, it opens a nested SetVector on the
// neighbor's reciprocal key whose sole payload item is this key's own
// prefix, with withRel forced false to bound the recursion to one hop.
func (s *Store) chainReciprocal(op string, spec KeySpec, result DeltaResult, owner string, initialFlags Flags, rel *RelationSpec) error {
	selfPrefix := []byte(ComposePrefix(spec))
	reciprocal := rel.swapped()

	for _, item := range result.Plus {
		neighbor, err := ParsePrefix(string(item))
		if err != nil {
			continue
		}
		neighborSpec := neighbor.WithCore(rel.ReciprocalCore)
		if _, err := s.SetVector(op, neighborSpec, VerbPlus, [][]byte{selfPrefix}, owner, initialFlags, &reciprocal, false); err != nil {
			return err
		}
	}
	for _, item := range result.Minus {
		neighbor, err := ParsePrefix(string(item))
		if err != nil {
			continue
		}
		neighborSpec := neighbor.WithCore(rel.ReciprocalCore)
		if _, err := s.SetVector(op, neighborSpec, VerbMinus, [][]byte{selfPrefix}, owner, initialFlags, &reciprocal, false); err != nil {
			return err
		}
	}
	return nil
}
