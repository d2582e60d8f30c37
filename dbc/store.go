package dbc

// Store indexes decoded records by id.
type Store[T any] struct {
	records []T
	byID    map[int32]int
}

// NewStore indexes records with id. Later records with an existing id are
// ignored.
func NewStore[T any](records []T, id func(rec *T) int32) *Store[T] {
	s := &Store[T]{records: records, byID: make(map[int32]int, len(records))}
	for i := range records {
		k := id(&records[i])
		if _, ok := s.byID[k]; !ok {
			s.byID[k] = i
		}
	}
	return s
}

// Get returns the record with id.
func (s *Store[T]) Get(id int32) (*T, bool) {
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.records[i], true
}

// Has reports whether a record has id.
func (s *Store[T]) Has(id int32) bool {
	_, ok := s.byID[id]
	return ok
}

// Len returns the number of records.
func (s *Store[T]) Len() int { return len(s.records) }

// Records returns the records in file order.
func (s *Store[T]) Records() []T { return s.records }

// IDSet is a set of record ids, such as a Store.
type IDSet interface {
	Has(id int32) bool
}

// FieldReference is a column holding ids of records of another table.
type FieldReference[T any] struct {
	Column string
	Value  func(rec *T) int32
}

// Score returns the share of non-zero values of the column found in target.
// It is 0 when every value is zero.
func (f FieldReference[T]) Score(records []T, target IDSet) float64 {
	total, found := 0, 0
	for i := range records {
		v := f.Value(&records[i])
		if v == 0 {
			continue
		}
		total++
		if target.Has(v) {
			found++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(found) / float64(total)
}
