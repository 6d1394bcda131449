package monitor

// DiffSkills compares two skill snapshots and returns the human-relevant
// changes. It is a pure function: no I/O, no hidden state.
//
// For each skill present in after:
//   - present in before with a different trained level: completed
//   - absent from before with trained level 0: injected
//   - absent from before with trained level > 0: completed (covers
//     characters that onboard mid-training)
//
// Skills present in before but absent from after are ignored: the game
// does not support un-training, so absence is unexpected but must not
// break the comparison.
func DiffSkills(before, after []Skill) []Change {
	if len(after) == 0 {
		return nil
	}
	prev := make(map[int32]Skill, len(before))
	for _, s := range before {
		prev[s.SkillID] = s
	}

	var changes []Change
	for _, s := range after {
		old, ok := prev[s.SkillID]
		switch {
		case ok && old.TrainedSkillLevel != s.TrainedSkillLevel:
			changes = append(changes, Change{Kind: ChangeCompleted, SkillID: s.SkillID, Level: s.TrainedSkillLevel})
		case !ok && s.TrainedSkillLevel == 0:
			changes = append(changes, Change{Kind: ChangeInjected, SkillID: s.SkillID})
		case !ok && s.TrainedSkillLevel > 0:
			changes = append(changes, Change{Kind: ChangeCompleted, SkillID: s.SkillID, Level: s.TrainedSkillLevel})
		}
	}
	return changes
}
