package monitor

import "time"

// Reconcile overlays completed queue items onto a freshly fetched skill
// snapshot. The skills endpoint can lag the queue endpoint: a skill whose
// queue item finished moments ago may still show the old trained level, so
// for every queue item whose finish date is in the past the matching
// skill's trained level is overwritten with the item's finished level.
//
// Items are ordered by queue position, so the scan stops at the first item
// that has not finished yet (a paused item, with no finish date, also
// stops the scan; it can only be last).
func Reconcile(skills []Skill, queue []QueueItem, now time.Time) []Skill {
	out := make([]Skill, len(skills))
	copy(out, skills)

	byID := make(map[int32]int, len(out))
	for i, s := range out {
		byID[s.SkillID] = i
	}

	for _, item := range queue {
		if item.FinishDate == nil || item.FinishDate.After(now) {
			break
		}
		if i, ok := byID[item.SkillID]; ok {
			out[i].TrainedSkillLevel = item.FinishedLevel
		}
	}
	return out
}
