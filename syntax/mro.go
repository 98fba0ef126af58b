package syntax

import "fmt"

// CalculateMRO computes the C3 linearization of info's base classes and
// stores it on info.MRO. It returns an error when no consistent ordering
// exists or when the class appears in its own ancestor chain.
func CalculateMRO(info *TypeInfo) error {
	return calculateMRO(info, map[*TypeInfo]bool{})
}

func calculateMRO(info *TypeInfo, active map[*TypeInfo]bool) error {
	if active[info] {
		return fmt.Errorf("cannot determine consistent method resolution order for %s: cyclic inheritance", info.Fullname)
	}
	active[info] = true
	defer delete(active, info)

	sequences := [][]*TypeInfo{{info}}
	for _, base := range info.Bases {
		if base.Info == nil {
			continue
		}
		if len(base.Info.MRO) == 0 {
			if err := calculateMRO(base.Info, active); err != nil {
				return err
			}
		}
		sequences = append(sequences, append([]*TypeInfo{}, base.Info.MRO...))
	}
	var tail []*TypeInfo
	for _, base := range info.Bases {
		if base.Info != nil {
			tail = append(tail, base.Info)
		}
	}
	sequences = append(sequences, tail)

	mro, err := mergeMRO(sequences)
	if err != nil {
		return fmt.Errorf("cannot determine consistent method resolution order for %s: %w", info.Fullname, err)
	}
	info.MRO = mro
	return nil
}

func mergeMRO(sequences [][]*TypeInfo) ([]*TypeInfo, error) {
	var result []*TypeInfo
	for {
		nonEmpty := sequences[:0]
		for _, seq := range sequences {
			if len(seq) > 0 {
				nonEmpty = append(nonEmpty, seq)
			}
		}
		sequences = nonEmpty
		if len(sequences) == 0 {
			return result, nil
		}

		next := pickHead(sequences)
		if next == nil {
			return nil, fmt.Errorf("inconsistent hierarchy")
		}
		result = append(result, next)
		for i, seq := range sequences {
			if len(seq) > 0 && seq[0] == next {
				sequences[i] = seq[1:]
			}
		}
	}
}

// pickHead finds a candidate that appears in the tail of no sequence.
func pickHead(sequences [][]*TypeInfo) *TypeInfo {
	for _, seq := range sequences {
		candidate := seq[0]
		inTail := false
		for _, other := range sequences {
			for _, member := range other[1:] {
				if member == candidate {
					inTail = true
					break
				}
			}
			if inTail {
				break
			}
		}
		if !inTail {
			return candidate
		}
	}
	return nil
}
