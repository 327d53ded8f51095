package appointment

import (
	"sort"
	"sync"
)

// Store is the client side cache of appointment records. It keeps records
// unique by id and sorted by (date, start time) after every mutation.
//
// Only the Mutator and the realtime engine should call the mutating methods;
// everything else reads Snapshot-derived views.
type Store struct {
	mu      sync.RWMutex
	records []Appointment

	// version counts mutations; touched holds the version at which each id
	// was last written or removed, until a Reset covers it.
	version uint64
	touched map[string]uint64
}

func NewStore() *Store {
	return &Store{touched: make(map[string]uint64)}
}

// Version returns the current mutation count. Pass it to Reset to keep
// records changed after the moment it was read.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns a copy of the collection in canonical order.
func (s *Store) Snapshot() []Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Appointment, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Get(id string) (Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.records[i], true
	}
	return Appointment{}, false
}

// OnDate returns the records booked on date, in start time order.
func (s *Store) OnDate(date string) []Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Appointment
	for _, a := range s.records {
		if a.Date == date {
			out = append(out, a)
		}
	}
	return out
}

// Upsert inserts the record or replaces the one with the same id.
func (s *Store) Upsert(a Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(normalize(a))
	s.touch(a.ID)
	s.sort()
}

// InsertIfFree inserts the record if check accepts the current records. The
// check and the insert happen under one lock. check must not keep or modify
// the slice it is given.
func (s *Store) InsertIfFree(a Appointment, check func(existing []Appointment) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := check(s.records); err != nil {
		return err
	}
	s.put(normalize(a))
	s.touch(a.ID)
	s.sort()
	return nil
}

// InsertIfAbsent inserts the record only when its id is unknown and reports
// whether it did.
func (s *Store) InsertIfAbsent(a Appointment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(a.ID) >= 0 {
		return false
	}
	s.records = append(s.records, normalize(a))
	s.touch(a.ID)
	s.sort()
	return true
}

// Remove deletes the record with id. Removing an unknown id is a no-op.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	s.touch(id)
	return true
}

// Replace swaps oldID for the record in a single step. If the new id is
// already present (a realtime insert beat the create response) the two
// collapse into one record.
func (s *Store) Replace(oldID string, a Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(oldID); i >= 0 {
		s.records = append(s.records[:i], s.records[i+1:]...)
		s.touch(oldID)
	}
	s.put(normalize(a))
	s.touch(a.ID)
	s.sort()
}

// Reset replaces the durable records with records, a listing read after
// Version returned since. Ids written or removed after since keep their
// local state since the listing may predate that change. Provisional records
// belong to creates still in flight and are kept.
func (s *Store) Reset(records []Appointment, since uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newer := func(id string) bool { return s.touched[id] > since }

	next := make([]Appointment, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, a := range records {
		if _, dup := seen[a.ID]; dup || newer(a.ID) {
			continue
		}
		seen[a.ID] = struct{}{}
		next = append(next, normalize(a))
	}
	for _, a := range s.records {
		if IsProvisional(a.ID) || newer(a.ID) {
			next = append(next, a)
		}
	}
	for id, v := range s.touched {
		if v <= since {
			delete(s.touched, id)
		}
	}
	s.records = next
	s.sort()
}

func (s *Store) touch(id string) {
	if s.touched == nil {
		s.touched = make(map[string]uint64)
	}
	s.version++
	s.touched[id] = s.version
}

func (s *Store) put(a Appointment) {
	if i := s.indexOf(a.ID); i >= 0 {
		s.records[i] = a
		return
	}
	s.records = append(s.records, a)
}

func (s *Store) indexOf(id string) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) sort() {
	sort.SliceStable(s.records, func(i, j int) bool {
		return less(s.records[i], s.records[j])
	})
}

// less is the canonical order: date, start time, then id as a tie breaker.
func less(a, b Appointment) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	if a.StartTime != b.StartTime {
		return a.StartTime < b.StartTime
	}
	return a.ID < b.ID
}

// Sorted reports whether records are in canonical order.
func Sorted(records []Appointment) bool {
	return sort.SliceIsSorted(records, func(i, j int) bool {
		return less(records[i], records[j])
	})
}
