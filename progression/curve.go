/*
curve.go - Level thresholds and inverse lookup

PURPOSE:
  Pure, stateless leveling curve. XPForLevel gives the cumulative XP
  required to reach a level; LevelForXP is its inverse.

THE CURVE:
  Level 1 costs nothing. The increment from level i-1 to i (i >= 2) is

      100 + 50 * floor((i-2)/10)

  i.e. 100 XP per level for levels 2-11, 150 for 12-21, 200 for 22-31,
  and so on. Reaching level 11 therefore costs exactly 1000 XP and the
  150-per-level tier starts with level 12 (threshold 1150). Early
  levels come fast, late levels cost more.

WHY SUMMATION, NOT A CLOSED FORM:
  The tier boundary every 10 levels must be exact. Integer summation keeps
  it exact for all inputs; a closed-form float expression would drift at
  the boundaries. An earlier revision of this system shipped a
  sqrt-based closed form that disagreed with the displayed thresholds -
  that curve is superseded, not blended in.
*/
package progression

// levelIncrement is the XP cost of going from level-1 to level, level >= 2.
func levelIncrement(level int) int {
	return 100 + 50*((level-2)/10)
}

// XPForLevel returns the cumulative XP required to reach level.
// XPForLevel(1) == 0. Strictly increasing for level >= 1.
func XPForLevel(level int) int {
	total := 0
	for i := 2; i <= level; i++ {
		total += levelIncrement(i)
	}
	return total
}

// LevelForXP returns the largest level L >= 1 with XPForLevel(L) <= xp.
// Defined for all xp; negative xp maps to level 1.
func LevelForXP(xp int) int {
	level := 1
	threshold := 0
	for {
		threshold += levelIncrement(level + 1)
		if threshold > xp {
			return level
		}
		level++
	}
}

// XPIntoLevel returns progress within the current level,
// always in [0, XPToNextLevel(xp)).
func XPIntoLevel(xp int) int {
	if xp < 0 {
		return 0
	}
	return xp - XPForLevel(LevelForXP(xp))
}

// XPToNextLevel returns the size of the current level, i.e. the XP span
// between the current level's threshold and the next one.
func XPToNextLevel(xp int) int {
	return levelIncrement(LevelForXP(xp) + 1)
}
