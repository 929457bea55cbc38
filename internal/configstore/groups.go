package configstore

// WriteGroups persists groups.json: group name -> { device name ->
// true } (spec §6.3).
func (s *Store) WriteGroups(groups map[string]map[string]bool) error {
	return s.writeJSON(GroupsFile, groups)
}

// ReadGroups loads groups.json.
func (s *Store) ReadGroups() (map[string]map[string]bool, error) {
	out := make(map[string]map[string]bool)
	if err := s.readJSON(GroupsFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}
