package casefile

// AnnotationStore maps section name to position to reviewer comment text.
// Invariant: a position key exists only while its comment is non-empty, so
// repeated edit/clear cycles never accumulate hollow entries.
type AnnotationStore map[string]map[int]string

// Set stores the comment at a position, or deletes the entry when text is
// empty.
func (a AnnotationStore) Set(section string, position int, text string) {
	if text == "" {
		positions, ok := a[section]
		if !ok {
			return
		}
		delete(positions, position)
		if len(positions) == 0 {
			delete(a, section)
		}
		return
	}
	positions, ok := a[section]
	if !ok {
		positions = make(map[int]string)
		a[section] = positions
	}
	positions[position] = text
}

// Get returns the comment at a position, or "" when none is stored.
func (a AnnotationStore) Get(section string, position int) string {
	return a[section][position]
}

// Reindex drops the comment at the removed position and shifts every comment
// at a greater position down by one, keeping comments attached to the same
// findings after a removal shortens the section.
func (a AnnotationStore) Reindex(section string, removed int) {
	positions, ok := a[section]
	if !ok {
		return
	}
	shifted := make(map[int]string, len(positions))
	for position, text := range positions {
		switch {
		case position < removed:
			shifted[position] = text
		case position > removed:
			shifted[position-1] = text
		}
	}
	if len(shifted) == 0 {
		delete(a, section)
		return
	}
	a[section] = shifted
}

// Clone returns a deep copy of the store.
func (a AnnotationStore) Clone() AnnotationStore {
	cloned := make(AnnotationStore, len(a))
	for section, positions := range a {
		inner := make(map[int]string, len(positions))
		for position, text := range positions {
			inner[position] = text
		}
		cloned[section] = inner
	}
	return cloned
}
